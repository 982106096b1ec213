package service

import (
	"context"
	"time"

	"eventmarket/pkg/logger"
)

// Sweeper periodically removes expired locks so that waiters are woken even
// when nobody touches the resource again.
type Sweeper struct {
	service  LockService
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(service LockService, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{service: service, interval: interval, log: log}
}

func (s *Sweeper) Name() string {
	return "lock-sweeper"
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.service.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("Lock sweep failed", "error", err)
			}
		}
	}
}
