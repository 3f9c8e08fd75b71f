package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// Startup drives StartupConnect -> StartupConnected -> StartupDone. The view
// preloads its lists on StartupConnected and the supervisor starts the
// watchers on StartupDone.
type Startup struct {
	store ports.Store
	done  bool
}

func NewStartup(store ports.Store) *Startup {
	return &Startup{store: store}
}

func (s *Startup) Update(ctx context.Context, a domain.Action) (domain.Action, error) {
	switch a {
	case domain.StartupConnect:
		if s.done {
			return nil, nil
		}
		if err := s.store.Migrate(ctx); err != nil {
			return nil, errors.Wrap(err, errors.KindStorage, "prepare schema")
		}
		log.Debug().Msg("Store schema ready")
		return domain.StartupConnected, nil
	case domain.StartupConnected:
		return domain.StartupDone, nil
	case domain.StartupDone:
		s.done = true
		log.Info().Msg("Startup complete")
	}
	return nil, nil
}

// Done reports whether startup has completed.
func (s *Startup) Done() bool {
	return s.done
}
