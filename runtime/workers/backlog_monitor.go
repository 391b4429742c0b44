package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"
)

const DefaultBacklogInterval = 2 * time.Second

type NamedChannel struct {
	Name    string
	Channel any
}

// BacklogMonitor samples channel fill levels and warns when a consumer falls
// behind. len and cap never block, so sampling does not disturb the channel.
type BacklogMonitor struct {
	log       *slog.Logger
	channels  []NamedChannel
	interval  time.Duration
	threshold float64
}

// NewBacklogMonitor warns once a channel is at least threshold full (0..1).
func NewBacklogMonitor(log *slog.Logger, channels []NamedChannel,
	interval time.Duration, threshold float64) *BacklogMonitor {
	if interval <= 0 {
		interval = DefaultBacklogInterval
	}
	return &BacklogMonitor{log: log, channels: channels, interval: interval, threshold: threshold}
}

func (w *BacklogMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping backlog monitor")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample checks every channel once and returns the names of those over the
// threshold.
func (w *BacklogMonitor) Sample() []string {
	var saturated []string
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		if capacity == 0 {
			continue
		}
		if float64(length)/float64(capacity) >= w.threshold {
			w.log.Warn("Channel backlog", "name", nc.Name, "length", length, "capacity", capacity)
			saturated = append(saturated, nc.Name)
		}
	}
	return saturated
}
