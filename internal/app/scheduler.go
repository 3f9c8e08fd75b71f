package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// Navigation delays. List navigation is deferred so key repeat cannot
// outrun rendering.
const (
	IPNavigationDelay     = 100 * time.Millisecond
	ActionNavigationDelay = 50 * time.Millisecond
)

// Schedule pushes EnterProcessing before returning, then after delay pushes
// a followed by ExitProcessing. If ctx ends first only ExitProcessing is
// pushed, so the processing counter stays balanced.
func Schedule(ctx context.Context, s ports.Sender, a domain.Action, delay time.Duration) error {
	if err := s.Send(domain.EnterProcessing); err != nil {
		return err
	}

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			if err := s.Send(a); err != nil {
				log.Debug().Err(err).Str("action", string(a.Kind())).Msg("Scheduled action dropped")
				return
			}
		case <-ctx.Done():
		}
		if err := s.Send(domain.ExitProcessing); err != nil {
			log.Debug().Err(err).Msg("Scheduled ExitProcessing dropped")
		}
	}()
	return nil
}
