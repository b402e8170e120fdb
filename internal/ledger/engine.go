package ledger

import (
	"context"
	"fmt"
	"time"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/observability"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/xid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type Posting struct {
	OrgID string
	Actor string
	At    time.Time
}

type Engine struct {
	repo    store.Repository
	metrics *observability.Metrics
}

func NewEngine(repo store.Repository, metrics *observability.Metrics) *Engine {
	return &Engine{repo: repo, metrics: metrics}
}

// Apply posts one movement. It must run inside the caller's transaction so
// the entry commits together with the document change that caused it.
func (e *Engine) Apply(ctx context.Context, tx store.Tx, posting Posting, req MovementRequest) (domain.LedgerEntry, error) {
	entries, err := e.Post(ctx, tx, posting, []MovementRequest{req})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return entries[0], nil
}

// Post writes one ledger entry per request and moves the affected stock
// levels by the same amounts. Levels are locked in key order and checked as
// a batch: if any key would end below zero nothing is written.
func (e *Engine) Post(ctx context.Context, tx store.Tx, posting Posting, reqs []MovementRequest) ([]domain.LedgerEntry, error) {
	if posting.OrgID == "" {
		return nil, store.Invalid("organization_id", "is required")
	}
	if len(reqs) == 0 {
		return nil, store.Invalid("items", "no movements to post")
	}
	if posting.At.IsZero() {
		posting.At = time.Now().UTC()
	}

	net := make(map[store.StockKey]int, len(reqs))
	keys := make([]store.StockKey, 0, len(reqs))
	for _, req := range reqs {
		if err := req.validate(); err != nil {
			return nil, err
		}
		key := req.Key()
		if _, seen := net[key]; !seen {
			keys = append(keys, key)
		}
		net[key] += req.delta
	}
	store.SortStockKeys(keys)

	levels, err := tx.LockStockLevels(ctx, posting.OrgID, keys)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		onHand := levels[key]
		if onHand+net[key] > domain.MaxQuantity {
			return nil, store.Invalid("quantity", fmt.Sprintf("variant %s at outlet %s would exceed %d on hand", key.VariantID, key.OutletID, domain.MaxQuantity))
		}
		if onHand+net[key] < 0 {
			return nil, &store.InsufficientStockError{
				OutletID:  key.OutletID,
				VariantID: key.VariantID,
				OnHand:    onHand,
				Requested: -net[key],
			}
		}
	}

	entries := make([]domain.LedgerEntry, 0, len(reqs))
	for _, req := range reqs {
		entries = append(entries, domain.LedgerEntry{
			ID:               xid.New("le"),
			OrgID:            posting.OrgID,
			OutletID:         req.outletID,
			VariantID:        req.variantID,
			QuantityChange:   req.delta,
			MovementType:     req.kind,
			SourceDocumentID: req.sourceID,
			CreatedAt:        posting.At,
			CreatedBy:        posting.Actor,
		})
	}
	if err := tx.InsertLedgerEntries(ctx, entries); err != nil {
		return nil, err
	}

	for _, key := range keys {
		if net[key] == 0 {
			continue
		}
		if _, err := tx.ApplyStockDelta(ctx, posting.OrgID, key, net[key], posting.At); err != nil {
			return nil, err
		}
	}

	for _, entry := range entries {
		e.metrics.RecordMovement(string(entry.MovementType), entry.QuantityChange)
	}
	return entries, nil
}

func (e *Engine) StockLevel(ctx context.Context, orgID string, outletID string, variantID string) (int, error) {
	return e.repo.GetStockLevel(ctx, orgID, outletID, variantID)
}

// History pages through a variant's movements newest first. The returned
// cursor resumes strictly after the last entry of the page.
func (e *Engine) History(ctx context.Context, orgID string, query domain.MovementHistoryQuery) (domain.MovementHistoryPage, error) {
	if query.VariantID == "" {
		return domain.MovementHistoryPage{}, store.Invalid("variant_id", "is required")
	}
	before, err := DecodeCursor(query.Cursor)
	if err != nil {
		return domain.MovementHistoryPage{}, err
	}
	limit := query.Limit
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := e.repo.ListLedgerEntries(ctx, orgID, store.LedgerQuery{
		VariantID: query.VariantID,
		OutletID:  query.OutletID,
		Before:    before,
		Limit:     limit + 1,
	})
	if err != nil {
		return domain.MovementHistoryPage{}, err
	}

	page := domain.MovementHistoryPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		page.NextCursor = EncodeCursor(store.LedgerPosition{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if page.Entries == nil {
		page.Entries = []domain.LedgerEntry{}
	}
	return page, nil
}
