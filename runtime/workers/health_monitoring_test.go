package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	calls atomic.Int32
}

func (f *fakeStats) Stats() (int, int) {
	f.calls.Add(1)
	return 3, 5
}

func (f *fakeStats) QueueLen() (int, int) {
	return 2, 16
}

func TestHealthMonitoringWorker_Samples_Gauges(t *testing.T) {
	req := require.New(t)
	stats := &fakeStats{}
	worker := NewHealthMonitoringWorker(slog.Default(), stats, stats, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	// Then the gauges follow the sampled state
	req.Eventually(func() bool { return stats.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	req.Equal(float64(3), testutil.ToFloat64(observability.ActiveConversations))
	req.Equal(float64(2), testutil.ToFloat64(observability.FanoutQueueLength))

	// When the context is cancelled the worker returns cleanly
	cancel()
	req.NoError(<-done)
}
