// README: Reservation store backed by PostgreSQL.
package reservation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relialimo/internal/types"
)

// Repository is the persistence contract the service depends on; *Store implements it.
type Repository interface {
	Create(ctx context.Context, r *Reservation) error
	Get(ctx context.Context, id types.ID) (*Reservation, error)
	List(ctx context.Context) ([]Reservation, error)
	UpdatePickupPoint(ctx context.Context, id types.ID, p types.Point) error
	UpdateFarmoutMode(ctx context.Context, id types.ID, mode FarmoutMode) (bool, error)
	UpdateFarmoutStatus(ctx context.Context, id types.ID, status string) (bool, error)
	MarkOffered(ctx context.Context, id types.ID) (bool, error)
	AssignFarmoutDriver(ctx context.Context, id, driverID types.ID, driverName string) (bool, error)
	ClearFarmoutDriver(ctx context.Context, id types.ID) (bool, error)
}

var _ Repository = (*Store)(nil)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, confirmation_number, passenger_name, pickup_at, pickup_location, dropoff_location,
	pickup_lat, pickup_lng, farmout_mode, farmout_status, farmout_driver_id, farmout_driver_name,
	created_at, updated_at`

func (s *Store) Create(ctx context.Context, r *Reservation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO reservations (
			id, confirmation_number, passenger_name, pickup_at, pickup_location, dropoff_location,
			pickup_lat, pickup_lng, farmout_mode, farmout_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(r.ID),
		r.ConfirmationNumber,
		r.PassengerName,
		r.PickupAt,
		r.PickupLocation,
		r.DropoffLocation,
		r.Pickup.Lat, r.Pickup.Lng,
		string(r.FarmoutMode),
		r.FarmoutStatus,
		r.CreatedAt,
		r.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Reservation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM reservations WHERE id = $1`, string(id))
	r, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) List(ctx context.Context) ([]Reservation, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+` FROM reservations ORDER BY pickup_at NULLS LAST, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePickupPoint(ctx context.Context, id types.ID, p types.Point) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reservations SET pickup_lat = $1, pickup_lng = $2, updated_at = NOW()
		WHERE id = $3`, p.Lat, p.Lng, string(id))
	return err
}

func (s *Store) UpdateFarmoutMode(ctx context.Context, id types.ID, mode FarmoutMode) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reservations SET farmout_mode = $1, updated_at = NOW()
		WHERE id = $2`, string(mode), string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateFarmoutStatus(ctx context.Context, id types.ID, status string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reservations SET farmout_status = $1, updated_at = NOW()
		WHERE id = $2`, status, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkOffered(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reservations SET farmout_status = 'offered', updated_at = NOW()
		WHERE id = $1
		  AND farmout_mode = 'automatic'
		  AND farmout_driver_id IS NULL
		  AND farmout_status <> ALL($2)`, string(id), TerminalStatuses())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AssignFarmoutDriver succeeds only while no farm-out driver is set, so two
// concurrent accepts cannot both win.
func (s *Store) AssignFarmoutDriver(ctx context.Context, id, driverID types.ID, driverName string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reservations
		SET farmout_driver_id = $1,
		    farmout_driver_name = $2,
		    farmout_status = 'assigned',
		    updated_at = NOW()
		WHERE id = $3 AND farmout_driver_id IS NULL`,
		string(driverID), driverName, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ClearFarmoutDriver(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reservations
		SET farmout_driver_id = NULL,
		    farmout_driver_name = NULL,
		    farmout_status = 'unassigned',
		    updated_at = NOW()
		WHERE id = $1`, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	var id, mode string
	var driverID *string
	err := row.Scan(
		&id, &r.ConfirmationNumber, &r.PassengerName, &r.PickupAt, &r.PickupLocation, &r.DropoffLocation,
		&r.Pickup.Lat, &r.Pickup.Lng, &mode, &r.FarmoutStatus, &driverID, &r.FarmoutDriverName,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(id)
	r.FarmoutMode = FarmoutMode(mode)
	if driverID != nil {
		d := types.ID(*driverID)
		r.FarmoutDriverID = &d
	}
	return &r, nil
}
