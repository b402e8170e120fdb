package service

import (
	"context"
	"fmt"
	"strings"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/ledger"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/xid"
)

// CreateWriteOff removes damaged, expired or lost goods. The document and
// its movements are written together; a shortage on any line rejects all.
func (s *Service) CreateWriteOff(ctx context.Context, req domain.StockAdjustmentCreateRequest) (domain.StockAdjustment, error) {
	return s.createAdjustment(ctx, domain.AdjustmentWriteOff, req)
}

func (s *Service) CreateOtherReceiving(ctx context.Context, req domain.StockAdjustmentCreateRequest) (domain.StockAdjustment, error) {
	return s.createAdjustment(ctx, domain.AdjustmentOtherReceiving, req)
}

func (s *Service) createAdjustment(ctx context.Context, kind domain.AdjustmentKind, req domain.StockAdjustmentCreateRequest) (domain.StockAdjustment, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.StockAdjustment{}, s.observe(err)
	}
	outlet, err := s.catalog.Outlet(ctx, actor.OrgID, req.OutletID)
	if err != nil {
		return domain.StockAdjustment{}, s.observe(err)
	}
	items, err := mergeItems(req.Items)
	if err != nil {
		return domain.StockAdjustment{}, s.observe(err)
	}
	if _, err := s.catalog.Variants(ctx, actor.OrgID, variantIDs(items)); err != nil {
		return domain.StockAdjustment{}, s.observe(err)
	}

	now := s.now()
	adjustment := domain.StockAdjustment{
		ID:        xid.New("adj"),
		OrgID:     actor.OrgID,
		Kind:      kind,
		OutletID:  outlet.ID,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		CreatedBy: actor.Username,
		Items:     make([]domain.AdjustmentItem, 0, len(items)),
	}
	reqs := make([]ledger.MovementRequest, 0, len(items))
	for _, item := range items {
		adjustment.Items = append(adjustment.Items, domain.AdjustmentItem{VariantID: item.VariantID, Quantity: item.Quantity, Reason: item.Reason})
		if kind == domain.AdjustmentWriteOff {
			reqs = append(reqs, ledger.WriteOff(outlet.ID, item.VariantID, item.Quantity, adjustment.ID))
		} else {
			reqs = append(reqs, ledger.OtherReceipt(outlet.ID, item.VariantID, item.Quantity, adjustment.ID))
		}
	}

	prefix := kind.NumberPrefix()
	err = s.atomically(ctx, docRef{entity: "stock adjustment", id: adjustment.ID, action: "create"}, func(ctx context.Context, tx store.Tx) error {
		seq, err := tx.NextDocumentNumber(ctx, actor.OrgID, prefix, now)
		if err != nil {
			return err
		}
		adjustment.DocumentNumber = xid.DocumentNumber(prefix, now, seq)
		if _, err := s.ledger.Post(ctx, tx, s.posting(actor, now), reqs); err != nil {
			return err
		}
		return tx.CreateStockAdjustment(ctx, adjustment)
	})
	if err != nil {
		return domain.StockAdjustment{}, s.observe(err)
	}

	s.afterPosting(ctx, actor.OrgID)
	s.logAudit(ctx, actor, string(kind)+"_create", "stock_adjustment", adjustment.ID, fmt.Sprintf("number=%s,outlet=%s,items=%d", adjustment.DocumentNumber, adjustment.OutletID, len(adjustment.Items)))
	return adjustment, nil
}

func (s *Service) GetStockAdjustment(ctx context.Context, adjustmentID string) (domain.StockAdjustment, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	adjustment, err := s.repo.GetStockAdjustment(ctx, actor.OrgID, strings.TrimSpace(adjustmentID))
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	return *adjustment, nil
}
