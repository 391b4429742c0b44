package workers

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestBacklogMonitor_Sample(t *testing.T) {
	req := require.New(t)
	busy := make(chan int, 4)
	idle := make(chan int, 4)
	unbuffered := make(chan int)
	for i := 0; i < 3; i++ {
		busy <- i
	}

	monitor := NewBacklogMonitor(logs.GetLoggerFromLevel(slog.LevelDebug), []NamedChannel{
		{Name: "busy", Channel: busy},
		{Name: "idle", Channel: idle},
		{Name: "unbuffered", Channel: unbuffered},
		{Name: "not a channel", Channel: 42},
	}, 0, 0.75)

	req.Equal([]string{"busy"}, monitor.Sample())
}
