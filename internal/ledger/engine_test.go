package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/observability"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/store/memory"
)

const (
	org    = memory.DemoOrgID
	outlet = memory.DemoMainOutlet
)

func post(t *testing.T, repo *memory.Store, engine *Engine, reqs ...MovementRequest) ([]domain.LedgerEntry, error) {
	t.Helper()
	var entries []domain.LedgerEntry
	err := repo.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		posted, err := engine.Post(ctx, tx, Posting{OrgID: org, Actor: "tester", At: time.Now().UTC()}, reqs)
		entries = posted
		return err
	})
	return entries, err
}

func TestPostMovesLevelAndWritesEntries(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, observability.NewMetrics())

	entries, err := post(t, repo, engine,
		WriteOff(outlet, "var-mie-01", 3, "adj_1"),
		OtherReceipt(outlet, "var-sabun-01", 8, "adj_1"),
	)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, -3, entries[0].QuantityChange)
	require.Equal(t, domain.MovementWriteOff, entries[0].MovementType)
	require.Equal(t, "tester", entries[0].CreatedBy)
	require.Equal(t, "adj_1", entries[1].SourceDocumentID)

	qty, err := engine.StockLevel(context.Background(), org, outlet, "var-mie-01")
	require.NoError(t, err)
	require.Equal(t, 117, qty)
	qty, err = engine.StockLevel(context.Background(), org, outlet, "var-sabun-01")
	require.NoError(t, err)
	require.Equal(t, 8, qty)
}

func TestPostChecksNetDeltaPerKey(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, nil)

	_, err := post(t, repo, engine,
		OtherReceipt(outlet, "var-telur-01", 10, "doc_1"),
		WriteOff(outlet, "var-telur-01", 50, "doc_1"),
	)
	require.NoError(t, err)

	qty, err := engine.StockLevel(context.Background(), org, outlet, "var-telur-01")
	require.NoError(t, err)
	require.Equal(t, 0, qty)
}

func TestPostRejectsWholeBatchOnShortage(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, nil)

	_, err := post(t, repo, engine,
		WriteOff(outlet, "var-mie-01", 1, "doc_1"),
		WriteOff(outlet, "var-susu-01", 61, "doc_1"),
	)
	var short *store.InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.Equal(t, "var-susu-01", short.VariantID)
	require.Equal(t, 60, short.OnHand)

	qty, err := engine.StockLevel(context.Background(), org, outlet, "var-mie-01")
	require.NoError(t, err)
	require.Equal(t, 120, qty)
}

func TestPostRejectsMalformedMovements(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, nil)

	cases := map[string]MovementRequest{
		"zero delta":         OpnameAdjustment(outlet, "var-mie-01", 0, "opn_1"),
		"negative write-off": WriteOff(outlet, "var-mie-01", -2, "doc_1"),
		"negative receipt":   POReceipt(outlet, "var-mie-01", -2, "po_1"),
		"missing source":     TransferIn(outlet, "var-mie-01", 2, ""),
		"missing outlet":     TransferOut("", "var-mie-01", 2, "trf_1"),
		"unknown kind":       {kind: "teleport", outletID: outlet, variantID: "var-mie-01", delta: 1, sourceID: "x"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := post(t, repo, engine, req)
			require.ErrorIs(t, err, store.ErrValidation)
		})
	}

	_, err := post(t, repo, engine)
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestHistoryClampsLimitAndPages(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, nil)
	for i := 0; i < 3; i++ {
		_, err := post(t, repo, engine, OtherReceipt(outlet, "var-gula-01", 1, "doc"))
		require.NoError(t, err)
	}

	page, err := engine.History(context.Background(), org, domain.MovementHistoryQuery{VariantID: "var-gula-01", Limit: 1000})
	require.NoError(t, err)
	require.Len(t, page.Entries, 4)
	require.Empty(t, page.NextCursor)

	page, err = engine.History(context.Background(), org, domain.MovementHistoryQuery{VariantID: "var-gula-01", Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	require.NotEmpty(t, page.NextCursor)

	rest, err := engine.History(context.Background(), org, domain.MovementHistoryQuery{VariantID: "var-gula-01", Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Entries, 1)
	require.Equal(t, 50, rest.Entries[0].QuantityChange)

	empty, err := engine.History(context.Background(), org, domain.MovementHistoryQuery{VariantID: "var-sabun-01"})
	require.NoError(t, err)
	require.NotNil(t, empty.Entries)
	require.Empty(t, empty.Entries)

	_, err = engine.History(context.Background(), org, domain.MovementHistoryQuery{})
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 30, 0, 123456000, time.UTC)
	pos, err := DecodeCursor(EncodeCursor(store.LedgerPosition{CreatedAt: at, ID: "le_abc"}))
	require.NoError(t, err)
	require.True(t, pos.CreatedAt.Equal(at))
	require.Equal(t, "le_abc", pos.ID)

	pos, err = DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, pos)

	for _, bad := range []string{"!!", "bm9waXBl", "MTIzfA"} {
		_, err := DecodeCursor(bad)
		require.ErrorIs(t, err, store.ErrValidation, bad)
	}
}

func TestPostRejectsQuantitiesPastMaximum(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, nil)

	_, err := post(t, repo, engine, OtherReceipt(outlet, "var-mie-01", domain.MaxQuantity+1, "doc_1"))
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = post(t, repo, engine, OtherReceipt(outlet, "var-mie-01", domain.MaxQuantity, "doc_2"))
	require.ErrorIs(t, err, store.ErrValidation)
	var short *store.InsufficientStockError
	require.False(t, errors.As(err, &short))

	qty, err := engine.StockLevel(context.Background(), org, outlet, "var-mie-01")
	require.NoError(t, err)
	require.Equal(t, 120, qty)
}
