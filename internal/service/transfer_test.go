package service

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/store/memory"
)

func createTransfer(t *testing.T, svc *Service, items ...domain.DocumentItemRequest) domain.StockTransfer {
	t.Helper()
	transfer, err := svc.CreateTransfer(adminCtx(), domain.TransferCreateRequest{
		OutletFrom: memory.DemoMainOutlet,
		OutletTo:   memory.DemoBranchOutlet,
		Notes:      "restock cabang",
		Items:      items,
	})
	require.NoError(t, err)
	return transfer
}

func TestTransferSendReceiveRoundTrip(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()

	transfer := createTransfer(t, svc, domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 10})
	require.Equal(t, domain.TransferDraft, transfer.Status)
	require.True(t, strings.HasPrefix(transfer.TransferNumber, "TRF-"))
	require.True(t, strings.HasSuffix(transfer.TransferNumber, "-0001"))
	require.Equal(t, 120, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))

	sent, err := svc.SendTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	require.Equal(t, "admin", sent.SentBy)
	require.Equal(t, 110, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))
	require.Equal(t, 0, stockAt(t, svc, memory.DemoBranchOutlet, "var-mie-01"))

	received, err := svc.ReceiveTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferReceived, received.Status)
	require.Equal(t, 110, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))
	require.Equal(t, 10, stockAt(t, svc, memory.DemoBranchOutlet, "var-mie-01"))

	page, err := svc.GetMovementHistory(ctx, domain.MovementHistoryQuery{VariantID: "var-mie-01"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	require.Equal(t, domain.MovementTransferIn, page.Entries[0].MovementType)
	require.Equal(t, 10, page.Entries[0].QuantityChange)
	require.Equal(t, domain.MovementTransferOut, page.Entries[1].MovementType)
	require.Equal(t, -10, page.Entries[1].QuantityChange)
	require.Equal(t, transfer.ID, page.Entries[0].SourceDocumentID)
	require.Equal(t, transfer.ID, page.Entries[1].SourceDocumentID)

	got, err := svc.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferReceived, got.Status)
	requireLedgerMatchesLevels(t, repo)
}

func TestReceiveBeforeSendIsStateConflict(t *testing.T) {
	svc, repo := newTestService(t)
	transfer := createTransfer(t, svc, domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 10})
	before := entryCount(t, repo)

	_, err := svc.ReceiveTransfer(adminCtx(), transfer.ID)
	var conflict *store.StateConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, "draft", conflict.Status)
	require.Equal(t, "receive", conflict.Action)
	require.Equal(t, before, entryCount(t, repo))
	require.Equal(t, 0, stockAt(t, svc, memory.DemoBranchOutlet, "var-mie-01"))
}

func TestSendRejectsShortStockAndPostsNothing(t *testing.T) {
	svc, repo := newTestService(t)
	transfer := createTransfer(t, svc,
		domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 5},
		domain.DocumentItemRequest{VariantID: "var-telur-01", Quantity: 41},
	)
	before := entryCount(t, repo)

	_, err := svc.SendTransfer(adminCtx(), transfer.ID)
	var short *store.InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.Equal(t, "var-telur-01", short.VariantID)
	require.Equal(t, 40, short.OnHand)
	require.Equal(t, 41, short.Requested)

	require.Equal(t, before, entryCount(t, repo))
	require.Equal(t, 120, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))
	require.Equal(t, 40, stockAt(t, svc, memory.DemoMainOutlet, "var-telur-01"))

	got, err := svc.GetTransfer(adminCtx(), transfer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferDraft, got.Status)
	require.Nil(t, got.SentAt)
}

func TestCancelOnlyFromDraft(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	draft := createTransfer(t, svc, domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 1})
	cancelled, err := svc.CancelTransfer(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.SendTransfer(ctx, draft.ID)
	require.ErrorIs(t, err, store.ErrStateConflict)

	sent := createTransfer(t, svc, domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 1})
	_, err = svc.SendTransfer(ctx, sent.ID)
	require.NoError(t, err)
	_, err = svc.CancelTransfer(ctx, sent.ID)
	require.ErrorIs(t, err, store.ErrStateConflict)
	require.Equal(t, 119, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))
}

func TestCreateTransferValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	_, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OutletFrom: memory.DemoMainOutlet,
		OutletTo:   memory.DemoMainOutlet,
		Items:      []domain.DocumentItemRequest{{VariantID: "var-mie-01", Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OutletFrom: memory.DemoMainOutlet,
		OutletTo:   memory.DemoBranchOutlet,
		Items:      []domain.DocumentItemRequest{{VariantID: "var-mie-01", Quantity: 0}},
	})
	var invalid *store.ValidationError
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, "items[0].quantity", invalid.Field)

	_, err = svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OutletFrom: memory.DemoMainOutlet,
		OutletTo:   memory.DemoBranchOutlet,
	})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OutletFrom: memory.DemoMainOutlet,
		OutletTo:   memory.DemoBranchOutlet,
		Items:      []domain.DocumentItemRequest{{VariantID: "var-ghost", Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	merged := createTransfer(t, svc,
		domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 2},
		domain.DocumentItemRequest{VariantID: "var-kopi-01", Quantity: 1},
		domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 3},
	)
	require.Equal(t, []domain.TransferItem{{VariantID: "var-mie-01", Quantity: 5}, {VariantID: "var-kopi-01", Quantity: 1}}, merged.Items)
	require.True(t, strings.HasSuffix(merged.TransferNumber, "-0001"))

	next := createTransfer(t, svc, domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 1})
	require.True(t, strings.HasSuffix(next.TransferNumber, "-0002"))
}

func TestTransfersAreInvisibleAcrossOrganizations(t *testing.T) {
	svc, _ := newTestService(t)
	transfer := createTransfer(t, svc, domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 1})

	_, err := svc.GetTransfer(otherOrgCtx(), transfer.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.SendTransfer(otherOrgCtx(), transfer.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.CreateTransfer(otherOrgCtx(), domain.TransferCreateRequest{
		OutletFrom: memory.DemoMainOutlet,
		OutletTo:   memory.DemoBranchOutlet,
		Items:      []domain.DocumentItemRequest{{VariantID: "var-mie-01", Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := svc.ListTransfers(otherOrgCtx(), "", 10)
	require.NoError(t, err)
	require.Empty(t, list.Transfers)

	list, err = svc.ListTransfers(adminCtx(), "draft", 10)
	require.NoError(t, err)
	require.Len(t, list.Transfers, 1)

	_, err = svc.ListTransfers(adminCtx(), "shipped", 10)
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestConcurrentSendsOfOneTransferExactlyOneSucceeds(t *testing.T) {
	svc, repo := newTestService(t)
	transfer := createTransfer(t, svc, domain.DocumentItemRequest{VariantID: "var-mie-01", Quantity: 7})

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SendTransfer(adminCtx(), transfer.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrStateConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, conflicts)
	require.Equal(t, 113, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))
	requireLedgerMatchesLevels(t, repo)
}

func TestConcurrentTransfersNeverOversell(t *testing.T) {
	svc, repo := newTestService(t)

	transfers := make([]domain.StockTransfer, 0, 5)
	for i := 0; i < 5; i++ {
		transfers = append(transfers, createTransfer(t, svc, domain.DocumentItemRequest{VariantID: "var-telur-01", Quantity: 10}))
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		sent  int
		short int
	)
	for _, transfer := range transfers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.SendTransfer(adminCtx(), id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sent++
			case errors.Is(err, store.ErrInsufficientStock):
				short++
			}
		}(transfer.ID)
	}
	wg.Wait()

	require.Equal(t, 4, sent)
	require.Equal(t, 1, short)
	require.Equal(t, 0, stockAt(t, svc, memory.DemoMainOutlet, "var-telur-01"))
	requireLedgerMatchesLevels(t, repo)
}

func TestCreateTransferRejectsQuantityOverflow(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminCtx()

	_, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OutletFrom: memory.DemoMainOutlet,
		OutletTo:   memory.DemoBranchOutlet,
		Items: []domain.DocumentItemRequest{
			{VariantID: "var-mie-01", Quantity: domain.MaxQuantity},
			{VariantID: "var-mie-01", Quantity: 2},
		},
	})
	var invalid *store.ValidationError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	require.Equal(t, "quantity", invalid.Field)

	_, err = svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		OutletFrom: memory.DemoMainOutlet,
		OutletTo:   memory.DemoBranchOutlet,
		Items:      []domain.DocumentItemRequest{{VariantID: "var-mie-01", Quantity: domain.MaxQuantity + 1}},
	})
	require.True(t, errors.As(err, &invalid), "got %v", err)
	require.Equal(t, "items[0].quantity", invalid.Field)

	list, err := svc.ListTransfers(ctx, "", 0)
	require.NoError(t, err)
	require.Empty(t, list.Transfers)
	require.Equal(t, 120, stockAt(t, svc, memory.DemoMainOutlet, "var-mie-01"))
	requireLedgerMatchesLevels(t, repo)
}
