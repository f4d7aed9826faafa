package goToken

import (
	"context"
	"testing"
	"time"
)

func sweeperConfig() Config {
	cfg := testConfig()
	cfg.Cleanup.Interval = 5 * time.Millisecond
	cfg.Metrics.Enabled = true
	return cfg
}

func waitDone(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not return", what)
	}
}

func TestStartCleanupRunsAndStops(t *testing.T) {
	engine, _ := newTestEngine(t, sweeperConfig())

	stop := engine.StartCleanup(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for engine.MetricsSnapshot().Counters[MetricCleanupRun] == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never ran Cleanup")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stop()
	waitDone(t, "sweeper after stop", engine.sweepers.Wait)
}

func TestStartCleanupStopsOnContext(t *testing.T) {
	engine, _ := newTestEngine(t, sweeperConfig())

	ctx, cancel := context.WithCancel(context.Background())
	engine.StartCleanup(ctx)
	cancel()
	waitDone(t, "sweeper after cancel", engine.sweepers.Wait)
}

func TestCloseStopsRunningSweeper(t *testing.T) {
	engine, _ := newTestEngine(t, sweeperConfig())

	engine.StartCleanup(context.Background())
	engine.StartCleanup(context.Background())
	waitDone(t, "Close", engine.Close)

	// A sweeper started after Close exits on its own.
	engine.StartCleanup(context.Background())
	waitDone(t, "late sweeper", engine.sweepers.Wait)
}

func TestStartCleanupDisabled(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())

	stop := engine.StartCleanup(context.Background())
	stop()
	if got := engine.MetricsSnapshot().Counters[MetricCleanupRun]; got != 0 {
		t.Fatalf("cleanup runs = %d, want 0", got)
	}

	var zero Engine
	zero.StartCleanup(context.Background())()
}
