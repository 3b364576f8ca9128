package chat

import (
	"context"
	"time"

	"github.com/ephemerchat/ephemer/internal/logging"
)

// Sweeper periodically deletes expired sessions. It runs one sweep shortly
// after startup, then on a fixed interval. Sweep failures are logged and
// swallowed; the next tick always retries.
type Sweeper struct {
	service      *Service
	interval     time.Duration
	startupDelay time.Duration
	log          *logging.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper over the given service.
func NewSweeper(service *Service, interval, startupDelay time.Duration, log *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		service:      service,
		interval:     interval,
		startupDelay: startupDelay,
		log:          log.Sub("sweeper"),
	}
}

// Start launches the sweep loop in a goroutine. It runs until Stop is
// called or the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		// Startup sweep after a short delay so the store can settle.
		select {
		case <-time.After(s.startupDelay):
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info().Msg("sweeper stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.service.Cleanup(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int64("removed", removed).Msg("sweep complete")
	}
}
