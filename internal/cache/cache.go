package cache

import (
	"context"
	"errors"
	"time"

	"kasirinaja/stockledger/internal/domain"
)

// ErrLockBusy is returned when a document lock is still held by another
// request after the retry budget is spent.
var ErrLockBusy = errors.New("document is locked by another request")

// ReportCache stores report projections under an organization generation.
// InvalidateOrg moves the organization to a new generation, so a report
// written under an older one is never served again.
type ReportCache interface {
	Generation(ctx context.Context, orgID string) (int64, error)
	Get(ctx context.Context, orgID string, generation int64, key string) (*domain.StockReport, bool, error)
	Set(ctx context.Context, orgID string, generation int64, key string, value *domain.StockReport, ttl time.Duration) error
	InvalidateOrg(ctx context.Context, orgID string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Generation(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopReportCache) Get(_ context.Context, _ string, _ int64, _ string) (*domain.StockReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ int64, _ string, _ *domain.StockReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) InvalidateOrg(_ context.Context, _ string) error {
	return nil
}

type DocumentLocker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// NoopLocker relies on the database row locks alone.
type NoopLocker struct{}

func (NoopLocker) Lock(_ context.Context, _ string) (func(), error) {
	return func() {}, nil
}
