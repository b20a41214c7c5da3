// README: In-memory collaborators and a manual scheduler shared by farm-out tests.
package farmout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relialimo/internal/modules/directory"
	"relialimo/internal/modules/driver"
	"relialimo/internal/modules/reservation"
	"relialimo/internal/types"
)

// manualScheduler only runs callbacks when a test fires them.
type manualScheduler struct {
	mu        sync.Mutex
	next      Handle
	pending   map[Handle]scheduledCall
	scheduled int
	delays    []time.Duration
}

type scheduledCall struct {
	delay time.Duration
	fn    func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{pending: make(map[Handle]scheduledCall)}
}

func (m *manualScheduler) Schedule(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.pending[m.next] = scheduledCall{delay: d, fn: fn}
	m.scheduled++
	m.delays = append(m.delays, d)
	return m.next
}

func (m *manualScheduler) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, h)
}

func (m *manualScheduler) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *manualScheduler) scheduledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduled
}

// only returns the single pending call; it fails the test otherwise.
func (m *manualScheduler) only(t *testing.T) scheduledCall {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) != 1 {
		t.Fatalf("pending timers = %d, want 1", len(m.pending))
	}
	for _, c := range m.pending {
		return c
	}
	return scheduledCall{}
}

// fire runs the single pending callback as if its delay elapsed.
func (m *manualScheduler) fire(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	if len(m.pending) != 1 {
		n := len(m.pending)
		m.mu.Unlock()
		t.Fatalf("pending timers = %d, want 1", n)
	}
	var fn func()
	for h, c := range m.pending {
		fn = c.fn
		delete(m.pending, h)
	}
	m.mu.Unlock()
	fn()
}

// fireAny runs one pending callback, if any, without a *testing.T.
func (m *manualScheduler) fireAny() bool {
	m.mu.Lock()
	var fn func()
	for h, c := range m.pending {
		fn = c.fn
		delete(m.pending, h)
		break
	}
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

type memReservations struct {
	mu      sync.Mutex
	rows    map[types.ID]reservation.Reservation
	updates []string
	getErr  error
	// onUpdate runs after a status update, outside the lock.
	onUpdate func(reservation.Reservation)
}

func newMemReservations(rs ...reservation.Reservation) *memReservations {
	m := &memReservations{rows: make(map[types.ID]reservation.Reservation)}
	for _, r := range rs {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memReservations) List(_ context.Context) ([]reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]reservation.Reservation, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memReservations) Get(_ context.Context, id types.ID) (*reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return &r, nil
}

func (m *memReservations) UpdateFarmoutStatus(_ context.Context, id types.ID, status string) error {
	m.mu.Lock()
	r, ok := m.rows[id]
	if !ok {
		m.mu.Unlock()
		return reservation.ErrNotFound
	}
	r.FarmoutStatus = status
	m.rows[id] = r
	m.updates = append(m.updates, string(id)+":"+status)
	hook := m.onUpdate
	m.mu.Unlock()
	if hook != nil {
		hook(r)
	}
	return nil
}

func (m *memReservations) set(r reservation.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = r
}

func (m *memReservations) remove(id types.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
}

func (m *memReservations) statusUpdates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.updates...)
}

type memDrivers struct {
	mu      sync.Mutex
	drivers []driver.Driver
	err     error
}

func newMemDrivers(ids ...string) *memDrivers {
	m := &memDrivers{}
	for _, id := range ids {
		m.drivers = append(m.drivers, driver.Driver{
			ID:     types.ID(id),
			Name:   "Driver " + id,
			Phone:  "555-01" + id,
			Status: driver.StatusAvailable,
		})
	}
	return m
}

func (m *memDrivers) ListAvailable(_ context.Context) ([]driver.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []driver.Driver
	for _, d := range m.drivers {
		if d.Available() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDrivers) setStatus(id string, st driver.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.drivers {
		if m.drivers[i].ID == types.ID(id) {
			m.drivers[i].Status = st
		}
	}
}

func (m *memDrivers) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type recordingActivity struct {
	mu    sync.Mutex
	lines map[types.ID][]string
}

func newRecordingActivity() *recordingActivity {
	return &recordingActivity{lines: make(map[types.ID][]string)}
}

func (a *recordingActivity) Log(_ context.Context, id types.ID, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines[id] = append(a.lines[id], msg)
}

func (a *recordingActivity) linesFor(id types.ID) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.lines[id]...)
}

func (a *recordingActivity) contains(id types.ID, substr string) bool {
	for _, l := range a.linesFor(id) {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func (a *recordingActivity) count(id types.ID, substr string) int {
	n := 0
	for _, l := range a.linesFor(id) {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

type memSettingsStore struct {
	mu   sync.Mutex
	data []byte
	err  error
}

func (m *memSettingsStore) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]byte(nil), m.data...), nil
}

func (m *memSettingsStore) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data = append([]byte(nil), data...)
	return nil
}

type memLedger struct {
	mu      sync.Mutex
	offered map[types.ID][]types.ID
	cleared []types.ID
}

func newMemLedger() *memLedger {
	return &memLedger{offered: make(map[types.ID][]types.ID)}
}

func (l *memLedger) RecordOffer(_ context.Context, rid, did types.ID, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offered[rid] = append(l.offered[rid], did)
	return nil
}

func (l *memLedger) Attempted(_ context.Context, rid types.ID) ([]types.ID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.ID(nil), l.offered[rid]...), nil
}

func (l *memLedger) Clear(_ context.Context, rid types.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.offered, rid)
	l.cleared = append(l.cleared, rid)
	return nil
}

type stubDirectory map[string]directory.Entry

func (d stubDirectory) Lookup(_ context.Context, identifier string) *directory.Entry {
	for _, e := range d {
		if strings.EqualFold(e.ID, identifier) || strings.EqualFold(e.Email, identifier) {
			entry := e
			return &entry
		}
	}
	return nil
}

type escalationRecorder struct {
	mu     sync.Mutex
	events []EscalationEvent
}

func (r *escalationRecorder) record(ev EscalationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *escalationRecorder) all() []EscalationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EscalationEvent(nil), r.events...)
}

type harness struct {
	svc          *Service
	sched        *manualScheduler
	reservations *memReservations
	drivers      *memDrivers
	activity     *recordingActivity
	settings     *memSettingsStore
	escalations  *escalationRecorder
}

var errUnavailable = errors.New("collaborator unavailable")

var testNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, drivers *memDrivers, rs ...reservation.Reservation) *harness {
	t.Helper()
	h := &harness{
		sched:        newManualScheduler(),
		reservations: newMemReservations(rs...),
		drivers:      drivers,
		activity:     newRecordingActivity(),
		settings:     &memSettingsStore{},
		escalations:  &escalationRecorder{},
	}
	h.svc = NewService(Deps{
		Reservations: h.reservations,
		Drivers:      h.drivers,
		Activity:     h.activity,
		Settings:     h.settings,
		Scheduler:    h.sched,
		Log:          zerolog.Nop(),
		Now:          func() time.Time { return testNow },
	})
	h.svc.LoadSettings(context.Background())
	h.svc.OnEscalation(h.escalations.record)
	t.Cleanup(h.svc.Close)
	return h
}

func (h *harness) setInterval(t *testing.T, minutes int) {
	t.Helper()
	if _, err := h.svc.UpdateSettings(context.Background(), SettingsUpdate{DispatchIntervalMinutes: minutes}); err != nil {
		t.Fatalf("update interval: %v", err)
	}
}

func (h *harness) setRecipients(t *testing.T, raw string) {
	t.Helper()
	if _, err := h.svc.UpdateSettings(context.Background(), SettingsUpdate{Recipients: &raw}); err != nil {
		t.Fatalf("update recipients: %v", err)
	}
}

func automaticReservation(id string) reservation.Reservation {
	pickup := time.Date(2026, 10, 20, 14, 30, 0, 0, time.UTC)
	return reservation.Reservation{
		ID:                 types.ID(id),
		ConfirmationNumber: "C-" + id,
		PassengerName:      "Passenger " + id,
		PickupAt:           &pickup,
		PickupLocation:     "JFK Terminal 4",
		FarmoutMode:        reservation.ModeAutomatic,
		FarmoutStatus:      reservation.StatusUnassigned,
	}
}

func attemptedIDs(v JobView) []string {
	out := make([]string, len(v.AttemptedDriverIDs))
	for i, id := range v.AttemptedDriverIDs {
		out[i] = string(id)
	}
	return out
}

func mustJob(t *testing.T, svc *Service, id types.ID) JobView {
	t.Helper()
	v, ok := svc.Job(id)
	if !ok {
		t.Fatalf("expected job for %s", id)
	}
	return v
}
