package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestUpdateListener_DeliversInOrder(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	updates := make(chan domain.Update, 3)
	updates <- domain.Update{State: domain.Connecting}
	updates <- domain.Update{State: domain.Queued}
	updates <- domain.Update{State: domain.Matched}
	close(updates)

	var got []domain.State
	w := NewUpdateListener(log, updates, func(u domain.Update) {
		got = append(got, u.State)
	})

	req.NoError(w.Run(context.Background()))
	req.Equal([]domain.State{domain.Connecting, domain.Queued, domain.Matched}, got)
}

func TestUpdateListener_StopsOnCancel(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewUpdateListener(log, make(chan domain.Update), func(domain.Update) {})
	req.ErrorIs(w.Run(ctx), context.Canceled)
}

func TestMetricsPoller_RendersAndSurvivesFailures(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	source := mocks.NewMockMetricsSource(ctrl)

	snapshot := domain.Metrics{Technical: domain.TechnicalMetrics{ActiveSessions: 2}}
	gomock.InOrder(
		source.EXPECT().Metrics(gomock.Any()).Return(domain.Metrics{}, fmt.Errorf("offline")),
		source.EXPECT().Metrics(gomock.Any()).Return(snapshot, nil).MinTimes(1),
	)

	rendered := make(chan domain.Metrics, 8)
	w := NewMetricsPoller(log, source, 5*time.Millisecond, func(m domain.Metrics) {
		rendered <- m
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case m := <-rendered:
		req.Equal(2, m.Technical.ActiveSessions)
	case <-time.After(time.Second):
		t.Fatal("nothing rendered")
	}
	cancel()
	req.ErrorIs(<-done, context.Canceled)
}
