// README: Escalation summary and the Postgres outbox consumed by the email/SMS delivery worker.
package farmout

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"relialimo/internal/modules/reservation"
	"relialimo/internal/types"
)

const summaryTimeLayout = "Mon Jan 2, 2006 3:04 PM"

// BuildSummary renders a one-line description of r for dispatchers.
// Missing parts are left out.
func BuildSummary(r reservation.Reservation) string {
	label := "Reservation " + string(r.ID)
	if r.ConfirmationNumber != "" {
		label = "Reservation #" + r.ConfirmationNumber
	}
	parts := []string{}
	if name := strings.TrimSpace(r.PassengerName); name != "" {
		parts = append(parts, name)
	}
	if r.PickupAt != nil {
		parts = append(parts, r.PickupAt.Format(summaryTimeLayout))
	}
	if loc := strings.TrimSpace(r.PickupLocation); loc != "" {
		parts = append(parts, loc)
	}
	if len(parts) == 0 {
		return label
	}
	return label + ": " + strings.Join(parts, " | ")
}

type OutboxEntry struct {
	ID            string      `json:"id"`
	ReservationID types.ID    `json:"reservation_id"`
	Summary       string      `json:"summary"`
	Recipients    []Recipient `json:"recipients"`
	CreatedAt     time.Time   `json:"created_at"`
	DeliveredAt   *time.Time  `json:"delivered_at"`
}

// EscalationOutbox stores escalation events until the delivery worker marks them sent.
type EscalationOutbox struct {
	db      *pgxpool.Pool
	log     zerolog.Logger
	timeout time.Duration
}

func NewEscalationOutbox(db *pgxpool.Pool, log zerolog.Logger, timeout time.Duration) *EscalationOutbox {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EscalationOutbox{
		db:      db,
		log:     log.With().Str("module", "farmout_outbox").Logger(),
		timeout: timeout,
	}
}

func (o *EscalationOutbox) Record(ctx context.Context, ev EscalationEvent) error {
	recipients, err := json.Marshal(ev.Recipients)
	if err != nil {
		return err
	}
	_, err = o.db.Exec(ctx, `
		INSERT INTO farmout_escalations (id, reservation_id, summary, recipients, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, string(ev.Reservation.ID), ev.Summary, recipients, ev.At,
	)
	return err
}

// Consume is an escalation subscriber; failures are logged.
func (o *EscalationOutbox) Consume(ev EscalationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if err := o.Record(ctx, ev); err != nil {
		o.log.Error().Err(err).
			Str("escalation_id", ev.ID).
			Str("reservation_id", string(ev.Reservation.ID)).
			Msg("escalation outbox insert failed")
	}
}

// Pending returns undelivered escalations, oldest first.
func (o *EscalationOutbox) Pending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := o.db.Query(ctx, `
		SELECT id, reservation_id, summary, recipients, created_at, delivered_at
		FROM farmout_escalations
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []OutboxEntry{}
	for rows.Next() {
		var e OutboxEntry
		var rid string
		var raw []byte
		if err := rows.Scan(&e.ID, &rid, &e.Summary, &raw, &e.CreatedAt, &e.DeliveredAt); err != nil {
			return nil, err
		}
		e.ReservationID = types.ID(rid)
		if err := json.Unmarshal(raw, &e.Recipients); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (o *EscalationOutbox) MarkDelivered(ctx context.Context, id string) (bool, error) {
	tag, err := o.db.Exec(ctx, `
		UPDATE farmout_escalations SET delivered_at = NOW()
		WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
