package ports

import (
	"context"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

// LineSource streams raw lines from one log source until Stop is called,
// ctx ends or the source fails. Both channels are closed when the source
// ends; at most one error is delivered.
type LineSource interface {
	Start(ctx context.Context) (<-chan string, <-chan error)
	Stop() error
	Origin() domain.Origin
}

// Sender is the producer side of the action bus.
type Sender interface {
	Send(a domain.Action) error
}
