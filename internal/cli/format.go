// README: Colored terminal output helpers.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"relialimo/internal/modules/farmout"
)

var (
	headerColor = color.New(color.Bold)
	labelColor  = color.New(color.FgCyan)
	okColor     = color.New(color.FgHiGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
)

func errorText(s string) string {
	return errColor.Sprint("error: ") + s
}

func printSettings(w io.Writer, s farmout.Settings) {
	fmt.Fprintln(w, headerColor.Sprint("Farm-out automation settings"))
	fmt.Fprintf(w, "  %s %d minute(s)\n", labelColor.Sprint("dispatch interval:"), s.DispatchIntervalMinutes)
	if len(s.Recipients) == 0 {
		fmt.Fprintf(w, "  %s %s\n", labelColor.Sprint("recipients:"), warnColor.Sprint("none (escalations are not sent)"))
		return
	}
	fmt.Fprintf(w, "  %s\n", labelColor.Sprint("recipients:"))
	for _, r := range s.Recipients {
		var parts []string
		if r.Email != "" {
			parts = append(parts, r.Email)
		}
		if r.Phone != "" {
			parts = append(parts, r.Phone)
		}
		line := r.Identifier
		if len(parts) > 0 {
			line += " (" + strings.Join(parts, ", ") + ")"
		}
		if r.UserID != nil {
			line += " " + okColor.Sprintf("[user %s]", *r.UserID)
		}
		fmt.Fprintf(w, "    - %s\n", line)
	}
}
