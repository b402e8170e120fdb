package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"kasirinaja/stockledger/internal/cache"
	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/store/memory"
)

// gatedRepo holds ListOutlets until released and fails it when the caller's
// context is already done, the way a database query would.
type gatedRepo struct {
	store.Repository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepo) ListOutlets(ctx context.Context, orgID string) ([]domain.Outlet, error) {
	r.once.Do(func() { close(r.entered) })
	<-r.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Repository.ListOutlets(ctx, orgID)
}

func TestStockReportSharedBuildSurvivesFirstCallerCancel(t *testing.T) {
	repo := &gatedRepo{
		Repository: memory.NewSeeded(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc := New(repo, Deps{})

	firstCtx, cancelFirst := context.WithCancel(adminCtx())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.StockReport(firstCtx, domain.StockReportQuery{})
		firstErr <- err
	}()
	<-repo.entered

	type outcome struct {
		report domain.StockReport
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		report, err := svc.StockReport(adminCtx(), domain.StockReportQuery{})
		second <- outcome{report, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(repo.release)

	got := <-second
	require.NoError(t, got.err)
	require.Len(t, got.report.Outlets, 2)
}

func TestStockReportBuiltBeforePostingIsNotServedAfter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	reports := cache.NewRedisReportCache(client)

	svc := New(memory.NewSeeded(), Deps{Reports: reports, ReportCacheTTL: time.Minute})
	ctx := adminCtx()

	stale, err := svc.StockReport(ctx, domain.StockReportQuery{OutletIDs: []string{memory.DemoMainOutlet}})
	require.NoError(t, err)
	built, err := reports.Generation(context.Background(), memory.DemoOrgID)
	require.NoError(t, err)

	_, err = svc.CreateWriteOff(ctx, domain.StockAdjustmentCreateRequest{
		OutletID: memory.DemoMainOutlet,
		Items:    []domain.DocumentItemRequest{{VariantID: "var-mie-01", Quantity: 20}},
	})
	require.NoError(t, err)

	// A build that started before the write-off finishes late.
	key := "outlets=" + memory.DemoMainOutlet
	require.NoError(t, reports.Set(context.Background(), memory.DemoOrgID, built, key, &stale, time.Minute))

	fresh, err := svc.StockReport(ctx, domain.StockReportQuery{OutletIDs: []string{memory.DemoMainOutlet}})
	require.NoError(t, err)
	seen := false
	for _, row := range fresh.Rows {
		if row.VariantID == "var-mie-01" {
			seen = true
			require.Equal(t, 100, row.TotalQuantity)
		}
	}
	require.True(t, seen)
}
