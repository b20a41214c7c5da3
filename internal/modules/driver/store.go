// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relialimo/internal/types"
)

type Repository interface {
	List(ctx context.Context) ([]Driver, error)
	ListByStatus(ctx context.Context, status Status) ([]Driver, error)
	Get(ctx context.Context, id types.ID) (*Driver, error)
	UpdateStatus(ctx context.Context, id types.ID, status Status) (bool, error)
}

var _ Repository = (*Store)(nil)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) List(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, phone, status, updated_at FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, phone, status, updated_at
		FROM drivers
		WHERE status = $1
		ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, phone, status, updated_at FROM drivers WHERE id = $1`, string(id))
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, status Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func collect(rows pgx.Rows) ([]Driver, error) {
	defer rows.Close()
	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	var id, status string
	if err := row.Scan(&id, &d.Name, &d.Phone, &status, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID = types.ID(id)
	d.Status = Status(status)
	return &d, nil
}
