package chrono

import (
	"context"
	"testing"
	"time"

	"buffcart/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestFakeSleep(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewFake(start)

	require.NoError(t, clock.Sleep(context.Background(), time.Second))
	require.NoError(t, clock.Sleep(context.Background(), 2*time.Second))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	require.Equal(t, start.Add(3*time.Second), clock.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, clock.Sleep(ctx, time.Second), context.Canceled)
}

func TestStandardCronRejectsInvalidSpec(t *testing.T) {
	cron := NewStandardCron(&telemetry.Recorder{})
	defer cron.Stop()

	require.Error(t, cron.Cron("not a spec", func() {}))
	require.NoError(t, cron.Cron("@hourly", func() {}))
}
