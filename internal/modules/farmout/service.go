// README: Farm-out automation service; owns the job map, runs offer/escalate steps on timers, reacts to reservation events.
package farmout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"relialimo/internal/modules/driver"
	"relialimo/internal/modules/reservation"
	"relialimo/internal/types"
)

type ReservationSource interface {
	List(ctx context.Context) ([]reservation.Reservation, error)
	Get(ctx context.Context, id types.ID) (*reservation.Reservation, error)
	UpdateFarmoutStatus(ctx context.Context, id types.ID, status string) error
}

type DriverSource interface {
	ListAvailable(ctx context.Context) ([]driver.Driver, error)
}

// Deps carries the collaborators. Activity, Scheduler, StepTimeout and Now
// have defaults; Settings, Ledger and Directory are optional.
type Deps struct {
	Reservations ReservationSource
	Drivers      DriverSource
	Directory    DirectoryLookup
	Activity     ActivityLog
	Settings     SettingsStore
	Ledger       OfferLedger
	Scheduler    Scheduler
	Log          zerolog.Logger
	StepTimeout  time.Duration
	Now          func() time.Time
}

type Service struct {
	reservations ReservationSource
	drivers      DriverSource
	directory    DirectoryLookup
	activity     ActivityLog
	store        SettingsStore
	ledger       OfferLedger
	scheduler    Scheduler
	log          zerolog.Logger
	stepTimeout  time.Duration
	now          func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	jobs   map[types.ID]*Job
	closed bool

	saveMu     sync.Mutex
	settingsMu sync.RWMutex
	settings   Settings

	subMu       sync.RWMutex
	subscribers []func(EscalationEvent)
}

func NewService(deps Deps) *Service {
	log := deps.Log.With().Str("module", "farmout").Logger()
	s := &Service{
		reservations: deps.Reservations,
		drivers:      deps.Drivers,
		directory:    deps.Directory,
		activity:     deps.Activity,
		store:        deps.Settings,
		ledger:       deps.Ledger,
		scheduler:    deps.Scheduler,
		log:          log,
		stepTimeout:  deps.StepTimeout,
		now:          deps.Now,
		jobs:         make(map[types.ID]*Job),
		settings:     DefaultSettings(),
	}
	if s.activity == nil {
		s.activity = NewLogSink(deps.Log)
	}
	if s.scheduler == nil {
		s.scheduler = NewTimerScheduler()
	}
	if s.stepTimeout <= 0 {
		s.stepTimeout = 15 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// LoadSettings reads the persisted record; missing or malformed data yields defaults.
func (s *Service) LoadSettings(ctx context.Context) Settings {
	settings := DefaultSettings()
	if s.store != nil {
		data, err := s.store.Load(ctx)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("load farm-out settings failed; using defaults")
		case len(data) > 0:
			loaded, ok := decodeSettings(data)
			if !ok {
				s.log.Warn().Msg("malformed farm-out settings record; using defaults")
			}
			settings = loaded
		}
	}
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()
	return settings.clone()
}

func (s *Service) Settings() Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings.clone()
}

// UpdateSettings applies a partial update and persists the full record.
// The in-memory settings change even when saving fails.
func (s *Service) UpdateSettings(ctx context.Context, upd SettingsUpdate) (Settings, error) {
	var recipients []Recipient
	if upd.Recipients != nil {
		recipients = ParseRecipients(ctx, *upd.Recipients, s.directory)
	}
	return s.mutateSettings(ctx, func(next *Settings) {
		if upd.DispatchIntervalMinutes != nil {
			next.DispatchIntervalMinutes = NormalizeInterval(upd.DispatchIntervalMinutes)
		}
		if upd.Recipients != nil {
			next.RecipientsRaw = *upd.Recipients
			next.Recipients = recipients
		}
	})
}

// EditInterval applies a dispatcher's interval edit; invalid input keeps the current value.
func (s *Service) EditInterval(ctx context.Context, raw string) (Settings, error) {
	return s.mutateSettings(ctx, func(next *Settings) {
		next.DispatchIntervalMinutes = ApplyIntervalEdit(next.DispatchIntervalMinutes, raw)
	})
}

// mutateSettings applies fn to the latest persisted record, so an edit made
// by another process (limoctl) is not overwritten by a stale in-memory copy.
func (s *Service) mutateSettings(ctx context.Context, fn func(*Settings)) (Settings, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.refreshSettings(ctx)

	s.settingsMu.Lock()
	next := s.settings.clone()
	fn(&next)
	s.settings = next
	s.settingsMu.Unlock()

	if s.store == nil {
		return next.clone(), nil
	}
	data, err := encodeSettings(next)
	if err != nil {
		return next.clone(), fmt.Errorf("encode farm-out settings: %w", err)
	}
	if err := s.store.Save(ctx, data); err != nil {
		return next.clone(), fmt.Errorf("save farm-out settings: %w", err)
	}
	return next.clone(), nil
}

// syncSettings picks up edits persisted by other processes; each step calls
// it so the next scheduling decision sees them.
func (s *Service) syncSettings(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.refreshSettings(ctx)
}

// refreshSettings replaces the in-memory settings with the persisted record;
// the caller holds saveMu. Unlike LoadSettings it keeps the current value
// when the store fails, is empty or holds a malformed record.
func (s *Service) refreshSettings(ctx context.Context) {
	if s.store == nil {
		return
	}
	data, err := s.store.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("refresh farm-out settings failed; keeping current")
		return
	}
	if len(data) == 0 {
		return
	}
	loaded, ok := decodeSettings(data)
	if !ok {
		return
	}
	s.settingsMu.Lock()
	s.settings = loaded
	s.settingsMu.Unlock()
}

// OnEscalation registers fn for every escalation raised after this call.
func (s *Service) OnEscalation(fn func(EscalationEvent)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// ---------------------------------------------------------------------------
// Job map
// ---------------------------------------------------------------------------

// EnsureJob starts automatic dispatch for r unless a job already exists.
// The first offer (or an immediate escalation) runs before it returns.
func (s *Service) EnsureJob(ctx context.Context, r reservation.Reservation) {
	if r.ID == "" {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.jobs[r.ID]; ok {
		s.mu.Unlock()
		s.logStatus()
		return
	}
	job := newJob(r.ID)
	s.jobs[r.ID] = job
	token := job.token
	s.mu.Unlock()

	s.activity.Log(ctx, r.ID, msgAutomationStarted)
	s.step(ctx, job, token, PurposeOffer)
}

// StopJob cancels the job's timer and removes it. reason, when set, goes to
// the activity log; nothing is logged if no job existed.
func (s *Service) StopJob(ctx context.Context, id types.ID, reason string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		s.removeLocked(job)
	}
	s.mu.Unlock()
	s.logStatus()
	if !ok {
		return
	}
	s.execute(ctx, stopEffects(id, reason))
}

// HandleReservationEvent keeps the job map in sync with a reservation change.
func (s *Service) HandleReservationEvent(ctx context.Context, ev reservation.Event) {
	r := ev.Reservation
	switch {
	case ev.Kind == reservation.EventDriverAssigned:
		s.StopJob(ctx, r.ID, acceptedReason(ev))
	case r.AutomationEligible():
		s.EnsureJob(ctx, r)
	default:
		s.StopJob(ctx, r.ID, ineligibleReason(r))
	}
}

// Bootstrap ensures a job for every automatic, non-terminal reservation.
func (s *Service) Bootstrap(ctx context.Context) error {
	list, err := s.reservations.List(ctx)
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}
	started := 0
	for _, r := range list {
		if !r.AutomationEligible() {
			continue
		}
		s.EnsureJob(ctx, r)
		started++
	}
	s.log.Info().Int("eligible", started).Msg("farm-out automation bootstrapped")
	return nil
}

// Jobs returns a snapshot of the active jobs ordered by reservation id.
func (s *Service) Jobs() []JobView {
	s.mu.Lock()
	out := make([]JobView, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.view())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return compareIDs(out[i].ReservationID, out[j].ReservationID) < 0 })
	return out
}

func (s *Service) Job(id types.ID) (JobView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return JobView{}, false
	}
	return job.view(), true
}

func (s *Service) Status() string {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	if n == 0 {
		return statusLineIdle
	}
	return fmt.Sprintf(statusLineRunningTemplate, n)
}

// Close cancels every pending timer and drops all jobs without touching the
// offer ledger, so a restarted process resumes where this one stopped.
func (s *Service) Close() {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	for id, job := range s.jobs {
		s.scheduler.Cancel(job.timer)
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if c, ok := s.scheduler.(interface{ Close() }); ok {
		c.Close()
	}
}

// ---------------------------------------------------------------------------
// Sequencer
// ---------------------------------------------------------------------------

func (s *Service) fire(job *Job, token uint64, purpose TimeoutPurpose) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.stepTimeout)
	defer cancel()
	s.step(ctx, job, token, purpose)
}

// step runs one offer or escalate decision. Collaborator reads happen
// without the lock; the job is re-validated before any state change.
func (s *Service) step(ctx context.Context, job *Job, token uint64, purpose TimeoutPurpose) {
	if !s.current(job, token) {
		return
	}
	id := job.ReservationID

	r, err := s.reservations.Get(ctx, id)
	if errors.Is(err, reservation.ErrNotFound) {
		s.stopIfCurrent(ctx, job, token, ReasonReservationGone)
		return
	}
	if err != nil {
		s.retry(ctx, job, token, purpose, err)
		return
	}
	if !r.AutomationEligible() {
		s.stopIfCurrent(ctx, job, token, ineligibleReason(*r))
		return
	}

	var (
		prior  []types.ID
		seeded bool
	)
	if s.ledger != nil && !s.ledgerSeeded(job) {
		if prior, err = s.ledger.Attempted(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("reservation_id", string(id)).Msg("offer ledger read failed")
			prior = nil
		} else {
			seeded = true
		}
	}

	s.syncSettings(ctx)

	var drivers []driver.Driver
	if purpose == PurposeOffer {
		if drivers, err = s.drivers.ListAvailable(ctx); err != nil {
			s.retry(ctx, job, token, purpose, err)
			return
		}
	}

	s.mu.Lock()
	if !s.currentLocked(job, token) {
		s.mu.Unlock()
		return
	}
	for _, d := range prior {
		job.markAttempted(d)
	}
	if seeded {
		job.seeded = true
	}
	var effs []effect
	if purpose == PurposeEscalate {
		effs = s.escalateLocked(job, *r)
	} else {
		effs = s.offerLocked(job, *r, drivers)
	}
	s.mu.Unlock()

	s.execute(ctx, effs)
	s.logStatus()
}

func (s *Service) offerLocked(job *Job, r reservation.Reservation, drivers []driver.Driver) []effect {
	remaining := remainingDrivers(drivers, job)
	if len(remaining) == 0 {
		effs := []effect{activityEffect{ReservationID: job.ReservationID, Message: msgNoAvailableDrivers}}
		return append(effs, s.escalateLocked(job, r)...)
	}

	d := remaining[0]
	now := s.now()
	job.markAttempted(d.ID)
	job.LastAttemptAt = &now
	next := PurposeOffer
	if len(remaining) == 1 {
		next = PurposeEscalate
	}
	s.scheduleLocked(job, next)

	s.log.Info().
		Str("reservation_id", string(job.ReservationID)).
		Str("driver_id", string(d.ID)).
		Str("next", string(next)).
		Msg("farm-out offer sent")
	return []effect{
		offeredEffect{ReservationID: job.ReservationID, DriverID: d.ID, At: now},
		activityEffect{ReservationID: job.ReservationID, Message: offerMessage(d)},
	}
}

// escalateLocked removes the job and returns the notification effects.
func (s *Service) escalateLocked(job *Job, r reservation.Reservation) []effect {
	s.removeLocked(job)
	settings := s.Settings()
	id := job.ReservationID

	var effs []effect
	if len(settings.Recipients) == 0 {
		s.log.Warn().Str("reservation_id", string(id)).Msg("farm-out escalation has no recipients")
		effs = append(effs, activityEffect{ReservationID: id, Message: msgEscalationNoRecipients})
	} else {
		for _, rc := range settings.Recipients {
			effs = append(effs, activityEffect{ReservationID: id, Message: fmt.Sprintf(msgEscalationSentTemplate, rc.Label())})
		}
		effs = append(effs, escalationEffect{Event: EscalationEvent{
			ID:          uuid.NewString(),
			Reservation: r,
			Recipients:  settings.Recipients,
			Summary:     BuildSummary(r),
			At:          s.now(),
		}})
	}
	return append(effs, stopEffects(id, ReasonEscalationTriggered)...)
}

// scheduleLocked replaces the job's pending timer. The interval is read now;
// later settings changes do not move an already scheduled timer.
func (s *Service) scheduleLocked(job *Job, purpose TimeoutPurpose) time.Duration {
	s.scheduler.Cancel(job.timer)
	interval := s.Settings().Interval()
	job.token++
	token := job.token
	job.Purpose = purpose
	at := s.now().Add(interval)
	job.NextAttemptAt = &at
	job.timer = s.scheduler.Schedule(interval, func() { s.fire(job, token, purpose) })
	return interval
}

// retry reschedules the same purpose after a collaborator failure.
func (s *Service) retry(ctx context.Context, job *Job, token uint64, purpose TimeoutPurpose, cause error) {
	s.mu.Lock()
	if !s.currentLocked(job, token) {
		s.mu.Unlock()
		return
	}
	interval := s.scheduleLocked(job, purpose)
	s.mu.Unlock()

	s.log.Warn().Err(cause).
		Str("reservation_id", string(job.ReservationID)).
		Str("purpose", string(purpose)).
		Dur("retry_in", interval).
		Msg("farm-out step failed")
	s.activity.Log(ctx, job.ReservationID, fmt.Sprintf(msgStepRetryTemplate, purpose, int(interval/time.Minute)))
}

func (s *Service) stopIfCurrent(ctx context.Context, job *Job, token uint64, reason string) {
	s.mu.Lock()
	ok := s.currentLocked(job, token)
	if ok {
		s.removeLocked(job)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.logStatus()
	s.execute(ctx, stopEffects(job.ReservationID, reason))
}

// ledgerSeeded reports whether the job's attempted set already holds the
// drivers recorded in the offer ledger.
func (s *Service) ledgerSeeded(job *Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return job.seeded
}

func (s *Service) current(job *Job, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(job, token)
}

// currentLocked reports whether job is still the live job for its
// reservation and token is its latest schedule.
func (s *Service) currentLocked(job *Job, token uint64) bool {
	return !s.closed && s.jobs[job.ReservationID] == job && job.token == token
}

func (s *Service) removeLocked(job *Job) {
	s.scheduler.Cancel(job.timer)
	job.timer = 0
	job.NextAttemptAt = nil
	delete(s.jobs, job.ReservationID)
}

func (s *Service) logStatus() {
	s.log.Debug().Str("status", s.Status()).Msg("farm-out automation")
}

func stopEffects(id types.ID, reason string) []effect {
	var effs []effect
	if reason != "" {
		effs = append(effs, activityEffect{ReservationID: id, Message: reason})
	}
	return append(effs, ledgerClearEffect{ReservationID: id})
}

// remainingDrivers returns available, not yet attempted drivers ordered by id.
func remainingDrivers(drivers []driver.Driver, job *Job) []driver.Driver {
	seen := make(map[types.ID]struct{}, len(drivers))
	out := make([]driver.Driver, 0, len(drivers))
	for _, d := range drivers {
		if d.ID == "" || !d.Available() || job.hasAttempted(d.ID) {
			continue
		}
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return compareIDs(out[i].ID, out[j].ID) < 0 })
	return out
}

// compareIDs puts integer ids first in numeric order, then every other id in
// lexical order. Mixed sets still get a total order.
func compareIDs(a, b types.ID) int {
	ai, aerr := strconv.ParseInt(string(a), 10, 64)
	bi, berr := strconv.ParseInt(string(b), 10, 64)
	aNum, bNum := aerr == nil, berr == nil
	switch {
	case aNum && bNum:
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return strings.Compare(string(a), string(b))
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(string(a), string(b))
}

func offerMessage(d driver.Driver) string {
	name := d.Name
	if name == "" {
		name = string(d.ID)
	}
	phone := ""
	if d.Phone != "" {
		phone = " (" + d.Phone + ")"
	}
	return fmt.Sprintf(msgOfferTemplate, name, phone)
}

func acceptedReason(ev reservation.Event) string {
	name := ev.DriverName
	if name == "" && ev.DriverID != nil {
		name = string(*ev.DriverID)
	}
	if name == "" {
		return "Farm-out driver accepted."
	}
	return fmt.Sprintf("Driver %s accepted the farm-out.", name)
}

func ineligibleReason(r reservation.Reservation) string {
	if r.FarmoutMode != reservation.ModeAutomatic {
		return ReasonModeManual
	}
	return fmt.Sprintf("Farm-out status changed to %s.", r.FarmoutStatus)
}
