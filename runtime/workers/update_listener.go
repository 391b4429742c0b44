package workers

import (
	"context"
	"log/slog"

	"github.com/omkarshukla84/klymo-client/domain"
)

// UpdateListener hands every orchestrator update to handle, in order, until
// the stream closes.
type UpdateListener struct {
	log     *slog.Logger
	updates <-chan domain.Update
	handle  func(domain.Update)
}

func NewUpdateListener(log *slog.Logger, updates <-chan domain.Update, handle func(domain.Update)) *UpdateListener {
	return &UpdateListener{log: log, updates: updates, handle: handle}
}

func (w *UpdateListener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-w.updates:
			if !ok {
				w.log.Debug("Update stream closed")
				return nil
			}
			w.handle(u)
		}
	}
}
