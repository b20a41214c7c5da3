// README: Side effects collected under the job lock and executed after it is released.
package farmout

import (
	"context"
	"errors"
	"time"

	"relialimo/internal/modules/reservation"
	"relialimo/internal/types"
)

// effect describes I/O decided by a sequencer step. Executing one may
// re-enter the service (status updates publish reservation events), so
// effects never run while s.mu is held.
type effect interface {
	effectType() string
}

type activityEffect struct {
	ReservationID types.ID
	Message       string
}

func (activityEffect) effectType() string { return "activity" }

type offeredEffect struct {
	ReservationID types.ID
	DriverID      types.ID
	At            time.Time
}

func (offeredEffect) effectType() string { return "offered" }

type ledgerClearEffect struct {
	ReservationID types.ID
}

func (ledgerClearEffect) effectType() string { return "ledger_clear" }

type escalationEffect struct {
	Event EscalationEvent
}

func (escalationEffect) effectType() string { return "escalation" }

func (s *Service) execute(ctx context.Context, effs []effect) {
	for _, eff := range effs {
		s.executeOne(ctx, eff)
	}
}

func (s *Service) executeOne(ctx context.Context, eff effect) {
	switch e := eff.(type) {
	case activityEffect:
		s.activity.Log(ctx, e.ReservationID, e.Message)
	case offeredEffect:
		err := s.reservations.UpdateFarmoutStatus(ctx, e.ReservationID, reservation.StatusOffered)
		switch {
		case err == nil:
		case errors.Is(err, reservation.ErrInvalidState), errors.Is(err, reservation.ErrNotFound):
			s.log.Debug().Err(err).Str("reservation_id", string(e.ReservationID)).Msg("offered status not applied")
		default:
			s.log.Warn().Err(err).Str("reservation_id", string(e.ReservationID)).Msg("offered status update failed")
		}
		if s.ledger != nil {
			if err := s.ledger.RecordOffer(ctx, e.ReservationID, e.DriverID, e.At); err != nil {
				s.log.Warn().Err(err).Str("reservation_id", string(e.ReservationID)).Msg("offer ledger write failed")
			}
		}
	case ledgerClearEffect:
		if s.ledger == nil {
			return
		}
		if err := s.ledger.Clear(ctx, e.ReservationID); err != nil {
			s.log.Warn().Err(err).Str("reservation_id", string(e.ReservationID)).Msg("offer ledger clear failed")
		}
	case escalationEffect:
		s.broadcast(e.Event)
	default:
		s.log.Error().Str("effect", eff.effectType()).Msg("unknown farm-out effect")
	}
}

func (s *Service) broadcast(ev EscalationEvent) {
	s.subMu.RLock()
	subs := make([]func(EscalationEvent), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
