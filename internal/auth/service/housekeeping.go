package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentauth/agentauth/internal/auth/store"
)

// HousekeepingService periodically deletes expired auth requests, tokens and
// verification codes so the store does not grow without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Retention keeps terminal records around for a while after expiry so a
	// late poller still sees "expired" instead of "not found".
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping worker. A non-positive
// interval defaults to 1 hour, a non-positive retention to 24 hours.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: 24 * time.Hour,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one cleanup pass. Exported so tests and operators can trigger
// it directly.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	retention := s.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-retention)

	sweeps := []struct {
		name string
		fn   func(context.Context, time.Time) error
	}{
		{"auth_requests", s.Store.AuthRequests().DeleteExpiredAuthRequests},
		{"tokens", s.Store.Tokens().DeleteExpiredTokens},
		{"refresh_tokens", s.Store.RefreshTokens().DeleteExpiredRefreshTokens},
		{"verification_codes", s.Store.VerificationCodes().DeleteExpiredVerificationCodes},
	}
	for _, sweep := range sweeps {
		if err := sweep.fn(ctx, cutoff); err != nil {
			s.Logger.Error("housekeeping sweep failed",
				slog.String("table", sweep.name),
				slog.Any("error", err),
			)
		}
	}
}
