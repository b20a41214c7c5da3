// README: User directory store backed by PostgreSQL.
package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	// FindByIDOrEmail matches identifier case-insensitively against id or email.
	// It returns (nil, nil) when nothing matches.
	FindByIDOrEmail(ctx context.Context, identifier string) (*Entry, error)
}

var _ Repository = (*Store)(nil)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) FindByIDOrEmail(ctx context.Context, identifier string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRow(ctx, `
		SELECT id, email, phone
		FROM user_directory
		WHERE lower(id) = lower($1) OR lower(email) = lower($1)
		ORDER BY (lower(id) = lower($1)) DESC
		LIMIT 1`, identifier,
	).Scan(&e.ID, &e.Email, &e.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
