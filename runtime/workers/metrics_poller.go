package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/omkarshukla84/klymo-client/contract"
	"github.com/omkarshukla84/klymo-client/domain"
)

const DefaultMetricsInterval = 5 * time.Second

// MetricsPoller fetches the admin snapshot right away and then on every
// interval. A failed fetch is logged and the last snapshot stays on screen.
type MetricsPoller struct {
	log      *slog.Logger
	source   contract.MetricsSource
	interval time.Duration
	render   func(domain.Metrics)
}

func NewMetricsPoller(log *slog.Logger, source contract.MetricsSource,
	interval time.Duration, render func(domain.Metrics)) *MetricsPoller {
	if interval <= 0 {
		interval = DefaultMetricsInterval
	}
	return &MetricsPoller{log: log, source: source, interval: interval, render: render}
}

func (w *MetricsPoller) Run(ctx context.Context) error {
	w.log.Info("Starting metrics poller", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *MetricsPoller) poll(ctx context.Context) {
	m, err := w.source.Metrics(ctx)
	if err != nil {
		w.log.Warn("Metrics offline", "err", err)
		return
	}
	w.render(m)
}
