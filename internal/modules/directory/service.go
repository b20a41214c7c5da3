// README: Directory lookup; failures are treated as "no match".
package directory

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

type Service struct {
	store Repository
	log   zerolog.Logger
}

func NewService(store Repository, log zerolog.Logger) *Service {
	return &Service{store: store, log: log.With().Str("module", "directory").Logger()}
}

// Lookup resolves identifier by id or email. A nil result means no match;
// store errors are logged and also reported as no match.
func (s *Service) Lookup(ctx context.Context, identifier string) *Entry {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || s.store == nil {
		return nil
	}
	e, err := s.store.FindByIDOrEmail(ctx, identifier)
	if err != nil {
		s.log.Warn().Err(err).Str("identifier", identifier).Msg("directory lookup failed")
		return nil
	}
	if e == nil || (e.ID == "" && e.Email == "") {
		return nil
	}
	return e
}
