package service

import (
	"context"
	"strings"
	"time"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
)

// GetStockLevel reads one key. A variant that never moved at the outlet
// reports zero.
func (s *Service) GetStockLevel(ctx context.Context, outletID string, variantID string) (domain.StockLevel, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockLevel{}, err
	}
	outlet, err := s.catalog.Outlet(ctx, actor.OrgID, outletID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	variant, err := s.catalog.Variant(ctx, actor.OrgID, variantID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	qty, err := s.ledger.StockLevel(ctx, actor.OrgID, outlet.ID, variant.ID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	return domain.StockLevel{
		OrgID:          actor.OrgID,
		OutletID:       outlet.ID,
		VariantID:      variant.ID,
		QuantityOnHand: qty,
	}, nil
}

func (s *Service) ListOutletStock(ctx context.Context, outletID string) ([]domain.StockLevel, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	outlet, err := s.catalog.Outlet(ctx, actor.OrgID, outletID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStockLevels(ctx, actor.OrgID, []string{outlet.ID})
}

func (s *Service) GetMovementHistory(ctx context.Context, query domain.MovementHistoryQuery) (domain.MovementHistoryPage, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.MovementHistoryPage{}, err
	}
	variant, err := s.catalog.Variant(ctx, actor.OrgID, query.VariantID)
	if err != nil {
		return domain.MovementHistoryPage{}, err
	}
	query.VariantID = variant.ID
	query.OutletID = strings.TrimSpace(query.OutletID)
	if query.OutletID != "" {
		if _, err := s.catalog.Outlet(ctx, actor.OrgID, query.OutletID); err != nil {
			return domain.MovementHistoryPage{}, err
		}
	}
	return s.ledger.History(ctx, actor.OrgID, query)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	day := s.now()
	if strings.TrimSpace(date) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
		if err != nil {
			return nil, store.Invalid("date", "must be YYYY-MM-DD")
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.ListAuditLogs(ctx, actor.OrgID, from, from.Add(24*time.Hour), clampLimit(limit, 100, 500))
}
