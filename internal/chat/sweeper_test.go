package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_StartupSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.createSession(t, CreateParams{})
	require.NoError(t, f.sessions.ExtendExpiry(ctx, stale.SessionID, time.Now().Add(-time.Hour)))

	sweeper := NewSweeper(f.service, time.Hour, 10*time.Millisecond, f.service.log)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Once the startup sweep has run, the stale record is physically gone
	// and a manual cleanup finds nothing left to remove.
	assert.Eventually(t, func() bool {
		removed, err := f.service.Cleanup(ctx)
		return err == nil && removed == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSweeper_StopBeforeStartupDelay(t *testing.T) {
	f := newFixture(t)

	sweeper := NewSweeper(f.service, time.Hour, time.Hour, f.service.log)
	sweeper.Start(context.Background())

	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	f := newFixture(t)
	sweeper := NewSweeper(f.service, time.Hour, time.Hour, f.service.log)
	sweeper.Stop() // no-op when never started
}
