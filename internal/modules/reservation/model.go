// README: Reservation aggregate, farm-out mode/status definitions and lifecycle events.
package reservation

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"relialimo/internal/types"
)

type FarmoutMode string

const (
	ModeManual    FarmoutMode = "manual"
	ModeAutomatic FarmoutMode = "automatic"
)

// ParseMode accepts "manual"/"automatic" in any case; anything else is rejected.
func ParseMode(s string) (FarmoutMode, bool) {
	switch FarmoutMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeManual:
		return ModeManual, true
	case ModeAutomatic:
		return ModeAutomatic, true
	}
	return "", false
}

// Farm-out statuses written by this service. Any other value is accepted from
// dispatchers and stored in its normalized form.
const (
	StatusUnassigned              = "unassigned"
	StatusOffered                 = "offered"
	StatusAssigned                = "assigned"
	StatusAffiliateAssigned       = "affiliate_assigned"
	StatusAffiliateDriverAssigned = "affiliate_driver_assigned"
	StatusDeclined                = "declined"
	StatusCompleted               = "completed"
	StatusCancelled               = "cancelled"
	StatusCancelledByAffiliate    = "cancelled_by_affiliate"
	StatusLateCancel              = "late_cancel"
	StatusLateCancelled           = "late_cancelled"
	StatusNoShow                  = "no_show"
	StatusInHouse                 = "in_house"
)

var terminalStatuses = map[string]struct{}{
	StatusAssigned:                {},
	StatusAffiliateAssigned:       {},
	StatusAffiliateDriverAssigned: {},
	StatusDeclined:                {},
	StatusCompleted:               {},
	StatusCancelled:               {},
	StatusCancelledByAffiliate:    {},
	StatusLateCancel:              {},
	StatusLateCancelled:           {},
	StatusNoShow:                  {},
	StatusInHouse:                 {},
}

// IsTerminal reports whether no further automatic farm-out action applies.
func IsTerminal(status string) bool {
	_, ok := terminalStatuses[NormalizeStatus(status)]
	return ok
}

// TerminalStatuses lists the terminal statuses in sorted order.
func TerminalStatuses() []string {
	out := make([]string, 0, len(terminalStatuses))
	for st := range terminalStatuses {
		out = append(out, st)
	}
	sort.Strings(out)
	return out
}

// NormalizeStatus converts free-form status text to snake_case:
// "Affiliate Assigned", "affiliateAssigned" and "AFFILIATE-ASSIGNED" all
// become "affiliate_assigned".
func NormalizeStatus(s string) string {
	var b strings.Builder
	sep := false
	prevLower := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsUpper(r):
			if prevLower && !sep {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			sep, prevLower = false, false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			sep, prevLower = false, true
		default:
			if b.Len() > 0 && !sep {
				b.WriteByte('_')
				sep = true
			}
			prevLower = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

type Reservation struct {
	ID                 types.ID
	ConfirmationNumber string
	PassengerName      string
	PickupAt           *time.Time
	PickupLocation     string
	DropoffLocation    string
	Pickup             types.Point
	FarmoutMode        FarmoutMode
	FarmoutStatus      string
	FarmoutDriverID    *types.ID
	FarmoutDriverName  *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AutomationEligible reports whether the reservation should have an active
// automatic dispatch sequence.
func (r Reservation) AutomationEligible() bool {
	return r.FarmoutMode == ModeAutomatic && !IsTerminal(r.FarmoutStatus)
}

type EventKind string

const (
	EventCreated        EventKind = "created"
	EventUpdated        EventKind = "updated"
	EventDriverAssigned EventKind = "farmout_driver_assigned"
	EventDriverCleared  EventKind = "farmout_driver_cleared"
	EventModeChanged    EventKind = "farmout_mode_changed"
	EventStatusChanged  EventKind = "farmout_status_changed"
)

// Event is published to subscribers after a reservation change is persisted.
type Event struct {
	Kind        EventKind
	Reservation Reservation
	DriverID    *types.ID
	DriverName  string
}
