package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kasirinaja/stockledger/internal/cache"
	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/store/memory"
)

func TestWriteOffWholeStockLeavesZero(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()

	receiving, err := svc.CreateOtherReceiving(ctx, domain.StockAdjustmentCreateRequest{
		OutletID: memory.DemoMainOutlet,
		Items:    []domain.DocumentItemRequest{{VariantID: "var-sabun-01", Quantity: 5, Reason: "bonus supplier"}},
	})
	require.NoError(t, err)
	require.Equal(t, domain.AdjustmentOtherReceiving, receiving.Kind)
	require.True(t, strings.HasPrefix(receiving.DocumentNumber, "RCV-"))
	require.Equal(t, 5, stockAt(t, svc, memory.DemoMainOutlet, "var-sabun-01"))

	writeOff, err := svc.CreateWriteOff(ctx, domain.StockAdjustmentCreateRequest{
		OutletID: memory.DemoMainOutlet,
		Notes:    "rusak kena air",
		Items:    []domain.DocumentItemRequest{{VariantID: "var-sabun-01", Quantity: 5, Reason: "damaged"}},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(writeOff.DocumentNumber, "WO-"))
	require.Equal(t, 0, stockAt(t, svc, memory.DemoMainOutlet, "var-sabun-01"))

	page, err := svc.GetMovementHistory(ctx, domain.MovementHistoryQuery{VariantID: "var-sabun-01"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	require.Equal(t, domain.MovementWriteOff, page.Entries[0].MovementType)
	require.Equal(t, -5, page.Entries[0].QuantityChange)
	require.Equal(t, writeOff.ID, page.Entries[0].SourceDocumentID)

	got, err := svc.GetStockAdjustment(ctx, writeOff.ID)
	require.NoError(t, err)
	require.Equal(t, "damaged", got.Items[0].Reason)
	requireLedgerMatchesLevels(t, repo)
}

func TestWriteOffShortageRejectsWholeDocument(t *testing.T) {
	svc, repo := newTestService(t)
	before := entryCount(t, repo)

	_, err := svc.CreateWriteOff(adminCtx(), domain.StockAdjustmentCreateRequest{
		OutletID: memory.DemoMainOutlet,
		Items: []domain.DocumentItemRequest{
			{VariantID: "var-mie-01", Quantity: 2},
			{VariantID: "var-susu-01", Quantity: 60},
			{VariantID: "var-susu-01", Quantity: 1},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	require.Equal(t, before, entryCount(t, repo))
	require.Equal(t, 120, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))
	require.Equal(t, 60, stockAt(t, svc, memory.DemoMainOutlet, "var-susu-01"))
}

func TestMovementHistoryPagesNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	for i := 0; i < 4; i++ {
		_, err := svc.CreateWriteOff(ctx, domain.StockAdjustmentCreateRequest{
			OutletID: memory.DemoMainOutlet,
			Items:    []domain.DocumentItemRequest{{VariantID: "var-kopi-01", Quantity: i + 1}},
		})
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	var quantities []int
	cursor := ""
	for pages := 0; pages < 5; pages++ {
		page, err := svc.GetMovementHistory(ctx, domain.MovementHistoryQuery{VariantID: "var-kopi-01", Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		for _, entry := range page.Entries {
			require.False(t, seen[entry.ID], "entry %s returned twice", entry.ID)
			seen[entry.ID] = true
			quantities = append(quantities, entry.QuantityChange)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	require.Equal(t, []int{-4, -3, -2, -1, 200}, quantities)

	_, err := svc.GetMovementHistory(ctx, domain.MovementHistoryQuery{VariantID: "var-kopi-01", Cursor: "%%%"})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.GetMovementHistory(otherOrgCtx(), domain.MovementHistoryQuery{VariantID: "var-kopi-01"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStockReportPivotsAndInvalidatesOnPosting(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	reports := cache.NewRedisReportCache(client)

	repo := memory.NewSeeded()
	svc := New(repo, Deps{Reports: reports, ReportCacheTTL: time.Minute})
	ctx := adminCtx()

	report, err := svc.StockReport(ctx, domain.StockReportQuery{})
	require.NoError(t, err)
	require.Len(t, report.Outlets, 2)
	require.Len(t, report.Rows, 5)

	var gula domain.StockReportRow
	for _, row := range report.Rows {
		if row.VariantID == "var-gula-01" {
			gula = row
		}
	}
	require.Equal(t, 50, gula.TotalQuantity)
	require.Len(t, gula.ByOutlet, 2)
	require.True(t, gula.TotalValue.Equal(decimal.NewFromInt(50*15312)))

	gen, err := reports.Generation(context.Background(), memory.DemoOrgID)
	require.NoError(t, err)
	_, found, err := reports.Get(context.Background(), memory.DemoOrgID, gen, "all")
	require.NoError(t, err)
	require.True(t, found)

	_, err = svc.CreateWriteOff(ctx, domain.StockAdjustmentCreateRequest{
		OutletID: memory.DemoMainOutlet,
		Items:    []domain.DocumentItemRequest{{VariantID: "var-gula-01", Quantity: 10}},
	})
	require.NoError(t, err)
	next, err := reports.Generation(context.Background(), memory.DemoOrgID)
	require.NoError(t, err)
	require.Greater(t, next, gen)
	_, found, err = reports.Get(context.Background(), memory.DemoOrgID, next, "all")
	require.NoError(t, err)
	require.False(t, found)

	report, err = svc.StockReport(ctx, domain.StockReportQuery{OutletIDs: []string{memory.DemoMainOutlet}})
	require.NoError(t, err)
	require.Len(t, report.Outlets, 1)
	for _, row := range report.Rows {
		if row.VariantID == "var-gula-01" {
			require.Equal(t, 40, row.TotalQuantity)
		}
	}

	_, err = svc.StockReport(otherOrgCtx(), domain.StockReportQuery{OutletIDs: []string{memory.DemoMainOutlet}})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOtherReceivingPastMaximumIsValidationError(t *testing.T) {
	svc, repo := newTestService(t)
	before := entryCount(t, repo)

	_, err := svc.CreateOtherReceiving(adminCtx(), domain.StockAdjustmentCreateRequest{
		OutletID: memory.DemoMainOutlet,
		Items:    []domain.DocumentItemRequest{{VariantID: "var-mie-01", Quantity: domain.MaxQuantity}},
	})
	require.ErrorIs(t, err, store.ErrValidation)
	require.NotErrorIs(t, err, store.ErrInsufficientStock)

	require.Equal(t, 120, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))
	require.Equal(t, before, entryCount(t, repo))
}
