// README: Driver service exposes the directory and the available-driver source used by farm-out automation.
package driver

import (
	"context"
	"errors"

	"relialimo/internal/types"
)

var (
	ErrNotFound   = errors.New("driver not found")
	ErrBadRequest = errors.New("bad request")
)

type Service struct {
	store Repository
}

func NewService(store Repository) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context) ([]Driver, error) {
	return s.store.List(ctx)
}

// ListAvailable returns only drivers whose status is available.
func (s *Service) ListAvailable(ctx context.Context) ([]Driver, error) {
	drivers, err := s.store.ListByStatus(ctx, StatusAvailable)
	if err != nil {
		return nil, err
	}
	out := drivers[:0]
	for _, d := range drivers {
		if d.Available() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.store.Get(ctx, id)
}

func (s *Service) SetStatus(ctx context.Context, id types.ID, raw string) (*Driver, error) {
	status, ok := ParseStatus(raw)
	if !ok || id == "" {
		return nil, ErrBadRequest
	}
	updated, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, id)
}
