// README: Farm-out activity log (human-visible audit lines per reservation).
package farmout

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"relialimo/internal/types"
)

// ActivityLog records audit lines; implementations must not fail the caller.
type ActivityLog interface {
	Log(ctx context.Context, reservationID types.ID, message string)
}

type ActivityEntry struct {
	ID            int64     `json:"id"`
	ReservationID types.ID  `json:"reservation_id"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

// LogSink writes activity to the process logger only.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("module", "farmout_activity").Logger()}
}

func (s *LogSink) Log(_ context.Context, reservationID types.ID, message string) {
	s.log.Info().Str("reservation_id", string(reservationID)).Msg(message)
}

// ActivityStore persists activity to Postgres and mirrors it to the logger.
type ActivityStore struct {
	db   *pgxpool.Pool
	sink *LogSink
}

func NewActivityStore(db *pgxpool.Pool, log zerolog.Logger) *ActivityStore {
	return &ActivityStore{db: db, sink: NewLogSink(log)}
}

func (s *ActivityStore) Log(ctx context.Context, reservationID types.ID, message string) {
	s.sink.Log(ctx, reservationID, message)
	_, err := s.db.Exec(ctx, `
		INSERT INTO farmout_activity (reservation_id, message, created_at)
		VALUES ($1, $2, NOW())`, string(reservationID), message)
	if err != nil {
		s.sink.log.Warn().Err(err).Str("reservation_id", string(reservationID)).Msg("activity insert failed")
	}
}

// List returns the activity for one reservation, oldest first.
func (s *ActivityStore) List(ctx context.Context, reservationID types.ID, limit int) ([]ActivityEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, reservation_id, message, created_at
		FROM farmout_activity
		WHERE reservation_id = $1
		ORDER BY created_at, id
		LIMIT $2`, string(reservationID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ActivityEntry{}
	for rows.Next() {
		var e ActivityEntry
		var rid string
		if err := rows.Scan(&e.ID, &rid, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ReservationID = types.ID(rid)
		out = append(out, e)
	}
	return out, rows.Err()
}
