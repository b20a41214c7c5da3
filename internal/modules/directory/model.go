// README: User directory entries used to resolve escalation recipients.
package directory

type Entry struct {
	ID    string
	Email string
	Phone string
}
