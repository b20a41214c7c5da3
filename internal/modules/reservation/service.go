// README: Reservation service handles farm-out mode/status/driver changes and publishes lifecycle events.
package reservation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relialimo/internal/types"
)

var (
	ErrNotFound     = errors.New("reservation not found")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidState = errors.New("invalid farm-out state")
	ErrConflict     = errors.New("farm-out driver already assigned")
)

// Geocoder resolves a pickup address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

// Listener receives events after the change is persisted.
type Listener func(ctx context.Context, ev Event)

type Service struct {
	store    Repository
	geocoder Geocoder
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

func NewService(store Repository, geocoder Geocoder, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		geocoder: geocoder,
		log:      log.With().Str("module", "reservation").Logger(),
		now:      time.Now,
	}
}

// Subscribe registers l for every subsequent reservation event.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

type CreateCommand struct {
	ConfirmationNumber string
	PassengerName      string
	PickupAt           *time.Time
	PickupLocation     string
	DropoffLocation    string
	FarmoutMode        string
	FarmoutStatus      string
}

type SetModeCommand struct {
	ReservationID types.ID
	Mode          string
}

type AssignDriverCommand struct {
	ReservationID types.ID
	DriverID      types.ID
	DriverName    string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Reservation, error) {
	if strings.TrimSpace(cmd.PassengerName) == "" {
		return nil, ErrBadRequest
	}
	mode := ModeManual
	if cmd.FarmoutMode != "" {
		m, ok := ParseMode(cmd.FarmoutMode)
		if !ok {
			return nil, ErrBadRequest
		}
		mode = m
	}
	status := NormalizeStatus(cmd.FarmoutStatus)
	if status == "" {
		status = StatusUnassigned
	}

	now := s.now()
	r := &Reservation{
		ID:                 newID(),
		ConfirmationNumber: strings.TrimSpace(cmd.ConfirmationNumber),
		PassengerName:      strings.TrimSpace(cmd.PassengerName),
		PickupAt:           cmd.PickupAt,
		PickupLocation:     strings.TrimSpace(cmd.PickupLocation),
		DropoffLocation:    strings.TrimSpace(cmd.DropoffLocation),
		FarmoutMode:        mode,
		FarmoutStatus:      status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if s.geocoder != nil && r.PickupLocation != "" {
		p, err := s.geocoder.Geocode(ctx, r.PickupLocation)
		if err != nil {
			s.log.Warn().Err(err).Str("pickup", r.PickupLocation).Msg("pickup geocode failed")
		} else {
			r.Pickup = p
		}
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Kind: EventCreated, Reservation: *r})
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Reservation, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Reservation, error) {
	return s.store.List(ctx)
}

func (s *Service) SetFarmoutMode(ctx context.Context, cmd SetModeCommand) (*Reservation, error) {
	mode, ok := ParseMode(cmd.Mode)
	if !ok || cmd.ReservationID == "" {
		return nil, ErrBadRequest
	}
	updated, err := s.store.UpdateFarmoutMode(ctx, cmd.ReservationID, mode)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrNotFound
	}
	r, err := s.store.Get(ctx, cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Kind: EventModeChanged, Reservation: *r})
	return r, nil
}

// UpdateFarmoutStatus stores the normalized status and publishes a status event.
// "offered" goes through MarkOffered so it never overwrites an accepted driver.
func (s *Service) UpdateFarmoutStatus(ctx context.Context, id types.ID, status string) error {
	var err error
	if NormalizeStatus(status) == StatusOffered {
		_, err = s.MarkOffered(ctx, id)
	} else {
		_, err = s.SetFarmoutStatus(ctx, id, status)
	}
	return err
}

// MarkOffered sets the status to offered while the reservation is automatic,
// has no farm-out driver and is not terminal. Otherwise ErrInvalidState.
func (s *Service) MarkOffered(ctx context.Context, id types.ID) (*Reservation, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	ok, err := s.store.MarkOffered(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := s.store.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidState
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Kind: EventStatusChanged, Reservation: *r})
	return r, nil
}

func (s *Service) SetFarmoutStatus(ctx context.Context, id types.ID, status string) (*Reservation, error) {
	status = NormalizeStatus(status)
	if id == "" || status == "" {
		return nil, ErrBadRequest
	}
	updated, err := s.store.UpdateFarmoutStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrNotFound
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Kind: EventStatusChanged, Reservation: *r})
	return r, nil
}

// AssignFarmoutDriver records a driver's acceptance of the farm-out.
func (s *Service) AssignFarmoutDriver(ctx context.Context, cmd AssignDriverCommand) (*Reservation, error) {
	if cmd.ReservationID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	current, err := s.store.Get(ctx, cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	if current.FarmoutDriverID != nil {
		return nil, ErrConflict
	}
	if IsTerminal(current.FarmoutStatus) {
		return nil, ErrInvalidState
	}
	ok, err := s.store.AssignFarmoutDriver(ctx, cmd.ReservationID, cmd.DriverID, cmd.DriverName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	r, err := s.store.Get(ctx, cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	driverID := cmd.DriverID
	s.publish(ctx, Event{
		Kind:        EventDriverAssigned,
		Reservation: *r,
		DriverID:    &driverID,
		DriverName:  cmd.DriverName,
	})
	return r, nil
}

// ClearFarmoutDriver removes the farm-out driver and resets the status to unassigned.
func (s *Service) ClearFarmoutDriver(ctx context.Context, id types.ID) (*Reservation, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	ok, err := s.store.ClearFarmoutDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Kind: EventDriverCleared, Reservation: *r})
	return r, nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	s.log.Debug().
		Str("reservation_id", string(ev.Reservation.ID)).
		Str("event", string(ev.Kind)).
		Msg("reservation event")
	for _, l := range listeners {
		l(ctx, ev)
	}
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
