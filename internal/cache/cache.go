package cache

import (
	"context"
	"time"

	"posledger/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.MonthlyRollup, bool, error)
	Set(ctx context.Context, key string, value *domain.MonthlyRollup, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.MonthlyRollup, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.MonthlyRollup, _ time.Duration) error {
	return nil
}
