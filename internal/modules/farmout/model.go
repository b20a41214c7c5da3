// README: Farm-out automation jobs, settings, recipients and escalation events.
package farmout

import (
	"time"

	"relialimo/internal/modules/reservation"
	"relialimo/internal/types"
)

type TimeoutPurpose string

const (
	PurposeOffer    TimeoutPurpose = "offer"
	PurposeEscalate TimeoutPurpose = "escalate"
)

const JobStatusRunning = "running"

const (
	// DefaultIntervalMinutes applies when no valid interval was ever configured.
	DefaultIntervalMinutes = 5
	MinIntervalMinutes     = 1
	MaxIntervalMinutes     = 60
)

// Activity log lines.
const (
	ReasonEscalationTriggered = "Escalation triggered."
	ReasonReservationGone     = "Reservation no longer available."
	ReasonModeManual          = "Farm-out mode switched to manual."

	msgAutomationStarted      = "Automatic farm-out started."
	msgNoAvailableDrivers     = "No available drivers for automatic farm-out."
	msgEscalationNoRecipients = "Escalation skipped: no recipients configured."
	msgEscalationSentTemplate = "Escalation sent to %s"
	msgOfferTemplate          = "Offer sent to driver %s%s."
	msgStepRetryTemplate      = "Automatic farm-out %s step failed; retrying in %d minute(s)."
	statusLineIdle            = "Automation idle"
	statusLineRunningTemplate = "Automation running for %d reservation(s)"
)

// Job is the automatic dispatch sequence for one reservation. attempted only grows.
type Job struct {
	ReservationID types.ID
	Status        string
	Purpose       TimeoutPurpose
	NextAttemptAt *time.Time
	LastAttemptAt *time.Time

	attempted    map[types.ID]struct{}
	attemptOrder []types.ID
	timer        Handle
	token        uint64
	// seeded is set once the offer ledger has been merged into attempted.
	seeded bool
}

func newJob(id types.ID) *Job {
	return &Job{
		ReservationID: id,
		Status:        JobStatusRunning,
		attempted:     make(map[types.ID]struct{}),
	}
}

func (j *Job) hasAttempted(id types.ID) bool {
	_, ok := j.attempted[id]
	return ok
}

func (j *Job) markAttempted(id types.ID) {
	if j.hasAttempted(id) {
		return
	}
	j.attempted[id] = struct{}{}
	j.attemptOrder = append(j.attemptOrder, id)
}

func (j *Job) view() JobView {
	attempted := make([]types.ID, len(j.attemptOrder))
	copy(attempted, j.attemptOrder)
	return JobView{
		ReservationID:      j.ReservationID,
		Status:             j.Status,
		AttemptedDriverIDs: attempted,
		TimeoutPurpose:     j.Purpose,
		NextAttemptAt:      copyTime(j.NextAttemptAt),
		LastAttemptAt:      copyTime(j.LastAttemptAt),
	}
}

// JobView is an immutable snapshot of a Job.
type JobView struct {
	ReservationID      types.ID       `json:"reservation_id"`
	Status             string         `json:"status"`
	AttemptedDriverIDs []types.ID     `json:"attempted_driver_ids"`
	TimeoutPurpose     TimeoutPurpose `json:"timeout_purpose,omitempty"`
	NextAttemptAt      *time.Time     `json:"next_attempt_at"`
	LastAttemptAt      *time.Time     `json:"last_attempt_at"`
}

type Recipient struct {
	Identifier string  `json:"identifier"`
	Email      string  `json:"email,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	UserID     *string `json:"userId,omitempty"`
}

// Label is the human-readable target used in activity lines.
func (r Recipient) Label() string {
	switch {
	case r.Email != "":
		return r.Email
	case r.Phone != "":
		return r.Phone
	}
	return r.Identifier
}

type Settings struct {
	DispatchIntervalMinutes int         `json:"dispatchIntervalMinutes"`
	RecipientsRaw           string      `json:"recipientsRaw"`
	Recipients              []Recipient `json:"recipients"`
}

func DefaultSettings() Settings {
	return Settings{DispatchIntervalMinutes: DefaultIntervalMinutes, Recipients: []Recipient{}}
}

// Interval is the delay between sequencer steps.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.DispatchIntervalMinutes) * time.Minute
}

func (s Settings) clone() Settings {
	out := s
	out.Recipients = make([]Recipient, len(s.Recipients))
	copy(out.Recipients, s.Recipients)
	return out
}

// SettingsUpdate is a partial update; nil fields are left unchanged.
// DispatchIntervalMinutes accepts any decoded JSON value and falls back to
// the default when it is not a valid interval.
type SettingsUpdate struct {
	DispatchIntervalMinutes any
	Recipients              *string
}

// EscalationEvent is broadcast once per job when no driver accepted.
type EscalationEvent struct {
	ID          string
	Reservation reservation.Reservation
	Recipients  []Recipient
	Summary     string
	At          time.Time
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
