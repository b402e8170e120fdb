package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/store/memory"
)

func itemFor(t *testing.T, opname domain.StockOpname, variantID string) domain.OpnameItem {
	t.Helper()
	for _, item := range opname.Items {
		if item.VariantID == variantID {
			return item
		}
	}
	t.Fatalf("variant %s not in opname %s", variantID, opname.ID)
	return domain.OpnameItem{}
}

func count(n int) domain.OpnameCountRequest {
	return domain.OpnameCountRequest{CountedQuantity: &n}
}

func TestOpnameCountBelowBookPostsNegativeAdjustment(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := staffCtx()

	opname, err := svc.StartOpname(ctx, domain.OpnameStartRequest{OutletID: memory.DemoMainOutlet, Notes: "opname bulanan"})
	require.NoError(t, err)
	require.Equal(t, domain.OpnameCounting, opname.Status)
	require.Len(t, opname.Items, 5)
	gula := itemFor(t, opname, "var-gula-01")
	require.Equal(t, 50, gula.SystemQuantity)
	require.Nil(t, gula.CountedQuantity)

	_, err = svc.SubmitCount(ctx, opname.ID, gula.ID, count(45))
	require.NoError(t, err)
	updated, err := svc.SubmitCount(ctx, opname.ID, gula.ID, count(47))
	require.NoError(t, err)
	require.Equal(t, 47, *itemFor(t, updated, "var-gula-01").CountedQuantity)

	mie := itemFor(t, opname, "var-mie-01")
	_, err = svc.SubmitCount(ctx, opname.ID, mie.ID, count(120))
	require.NoError(t, err)

	resp, err := svc.FinalizeOpname(ctx, opname.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OpnameCompleted, resp.Opname.Status)
	require.NotNil(t, resp.Opname.CompletedAt)
	require.Len(t, resp.Entries, 1)
	require.Equal(t, -3, resp.Entries[0].QuantityChange)
	require.Equal(t, domain.MovementOpnameAdjustment, resp.Entries[0].MovementType)
	require.Equal(t, opname.ID, resp.Entries[0].SourceDocumentID)

	require.Equal(t, 47, stockAt(t, svc, memory.DemoMainOutlet, "var-gula-01"))
	require.Equal(t, 120, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))
	require.Equal(t, 40, stockAt(t, svc, memory.DemoMainOutlet, "var-telur-01"), "uncounted lines keep their book quantity")
	requireLedgerMatchesLevels(t, repo)
}

func TestOpnameFinalizeIsExactlyOnce(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()

	opname, err := svc.StartOpname(ctx, domain.OpnameStartRequest{OutletID: memory.DemoMainOutlet})
	require.NoError(t, err)
	_, err = svc.SubmitCount(ctx, opname.ID, itemFor(t, opname, "var-kopi-01").ID, count(190))
	require.NoError(t, err)

	_, err = svc.FinalizeOpname(ctx, opname.ID)
	require.NoError(t, err)
	after := entryCount(t, repo)

	_, err = svc.FinalizeOpname(ctx, opname.ID)
	require.ErrorIs(t, err, store.ErrStateConflict)
	require.Equal(t, after, entryCount(t, repo))
	require.Equal(t, 190, stockAt(t, svc, memory.DemoMainOutlet, "var-kopi-01"))

	_, err = svc.SubmitCount(ctx, opname.ID, itemFor(t, opname, "var-kopi-01").ID, count(1))
	require.ErrorIs(t, err, store.ErrStateConflict)
}

func TestOneCountingOpnamePerOutlet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	first, err := svc.StartOpname(ctx, domain.OpnameStartRequest{OutletID: memory.DemoMainOutlet})
	require.NoError(t, err)

	_, err = svc.StartOpname(ctx, domain.OpnameStartRequest{OutletID: memory.DemoMainOutlet})
	require.ErrorIs(t, err, store.ErrStateConflict)

	_, err = svc.StartOpname(ctx, domain.OpnameStartRequest{OutletID: memory.DemoBranchOutlet})
	require.NoError(t, err)

	_, err = svc.FinalizeOpname(ctx, first.ID)
	require.NoError(t, err)
	_, err = svc.StartOpname(ctx, domain.OpnameStartRequest{OutletID: memory.DemoMainOutlet})
	require.NoError(t, err)
}

func TestAddOpnameItemForVariantWithoutStockRow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	opname, err := svc.StartOpname(ctx, domain.OpnameStartRequest{OutletID: memory.DemoBranchOutlet})
	require.NoError(t, err)
	require.Empty(t, opname.Items)

	withItem, err := svc.AddOpnameItem(ctx, opname.ID, domain.OpnameAddItemRequest{VariantID: "var-sabun-01"})
	require.NoError(t, err)
	sabun := itemFor(t, withItem, "var-sabun-01")
	require.Equal(t, 0, sabun.SystemQuantity)

	_, err = svc.AddOpnameItem(ctx, opname.ID, domain.OpnameAddItemRequest{VariantID: "var-sabun-01"})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.AddOpnameItem(ctx, opname.ID, domain.OpnameAddItemRequest{VariantID: "var-ghost"})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.SubmitCount(ctx, opname.ID, sabun.ID, count(6))
	require.NoError(t, err)
	_, err = svc.SubmitCount(ctx, opname.ID, "opi_missing", count(6))
	require.ErrorIs(t, err, store.ErrNotFound)

	resp, err := svc.FinalizeOpname(ctx, opname.ID)
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)
	require.Equal(t, 6, resp.Entries[0].QuantityChange)
	require.Equal(t, 6, stockAt(t, svc, memory.DemoBranchOutlet, "var-sabun-01"))

	got, err := svc.GetOpname(ctx, opname.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OpnameCompleted, got.Status)
	require.Equal(t, 6, *got.Items[0].CountedQuantity)
}

func TestFinalizeFailsWhenStockDroppedBelowAdjustment(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()

	opname, err := svc.StartOpname(ctx, domain.OpnameStartRequest{OutletID: memory.DemoMainOutlet})
	require.NoError(t, err)
	_, err = svc.SubmitCount(ctx, opname.ID, itemFor(t, opname, "var-telur-01").ID, count(0))
	require.NoError(t, err)

	_, err = svc.CreateWriteOff(ctx, domain.StockAdjustmentCreateRequest{
		OutletID: memory.DemoMainOutlet,
		Items:    []domain.DocumentItemRequest{{VariantID: "var-telur-01", Quantity: 5, Reason: "pecah"}},
	})
	require.NoError(t, err)
	before := entryCount(t, repo)

	_, err = svc.FinalizeOpname(ctx, opname.ID)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	require.Equal(t, before, entryCount(t, repo))

	got, err := svc.GetOpname(ctx, opname.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OpnameCounting, got.Status)
}

func TestSubmitCountRejectsNegative(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	opname, err := svc.StartOpname(ctx, domain.OpnameStartRequest{OutletID: memory.DemoMainOutlet})
	require.NoError(t, err)

	_, err = svc.SubmitCount(ctx, opname.ID, opname.Items[0].ID, count(-1))
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.SubmitCount(ctx, opname.ID, opname.Items[0].ID, domain.OpnameCountRequest{})
	require.ErrorIs(t, err, store.ErrValidation)
}
