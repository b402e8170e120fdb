package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"kasirinaja/stockledger/internal/domain"
)

// StockReport pivots stock levels into one row per variant with a column per
// outlet, valued at the variant's flat default cost. Results are cached per
// organization until the next posting, and concurrent builds of the same
// report share one computation.
func (s *Service) StockReport(ctx context.Context, query domain.StockReportQuery) (domain.StockReport, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockReport{}, err
	}

	outletIDs := make([]string, 0, len(query.OutletIDs))
	for _, id := range query.OutletIDs {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(outletIDs, id) {
			outletIDs = append(outletIDs, id)
		}
	}
	slices.Sort(outletIDs)
	cacheKey := "all"
	if len(outletIDs) > 0 {
		cacheKey = "outlets=" + strings.Join(outletIDs, ",")
	}

	generation, err := s.reports.Generation(ctx, actor.OrgID)
	cacheable := err == nil
	if err != nil {
		s.log.Warn().Err(err).Str("organization_id", actor.OrgID).Msg("report cache generation read failed")
	}
	if cacheable {
		cached, found, err := s.reports.Get(ctx, actor.OrgID, generation, cacheKey)
		if err != nil {
			s.log.Warn().Err(err).Str("organization_id", actor.OrgID).Msg("report cache read failed")
		}
		if found {
			return *cached, nil
		}
	}

	// Waiters share the build, so it must outlive the caller that started it.
	buildCtx := context.WithoutCancel(ctx)
	flightKey := fmt.Sprintf("%s|%d|%s", actor.OrgID, generation, cacheKey)
	result := s.reportBuilds.DoChan(flightKey, func() (interface{}, error) {
		report, err := s.buildStockReport(buildCtx, actor.OrgID, outletIDs)
		if err != nil {
			return nil, err
		}
		if cacheable {
			if err := s.reports.Set(buildCtx, actor.OrgID, generation, cacheKey, &report, s.reportCacheTTL); err != nil {
				s.log.Warn().Err(err).Str("organization_id", actor.OrgID).Msg("report cache write failed")
			}
		}
		return report, nil
	})
	select {
	case <-ctx.Done():
		return domain.StockReport{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return domain.StockReport{}, res.Err
		}
		return res.Val.(domain.StockReport), nil
	}
}

func (s *Service) buildStockReport(ctx context.Context, orgID string, outletIDs []string) (domain.StockReport, error) {
	outlets := make([]domain.Outlet, 0, len(outletIDs))
	if len(outletIDs) == 0 {
		all, err := s.repo.ListOutlets(ctx, orgID)
		if err != nil {
			return domain.StockReport{}, err
		}
		outlets = all
	} else {
		for _, id := range outletIDs {
			outlet, err := s.catalog.Outlet(ctx, orgID, id)
			if err != nil {
				return domain.StockReport{}, err
			}
			outlets = append(outlets, outlet)
		}
		slices.SortFunc(outlets, func(a, b domain.Outlet) int { return strings.Compare(a.Code, b.Code) })
	}
	columns := make([]string, 0, len(outlets))
	for _, outlet := range outlets {
		columns = append(columns, outlet.ID)
	}

	levels, err := s.repo.ListStockLevels(ctx, orgID, columns)
	if err != nil {
		return domain.StockReport{}, err
	}
	variants, err := s.repo.ListVariants(ctx, orgID)
	if err != nil {
		return domain.StockReport{}, err
	}

	byVariant := make(map[string]map[string]int, len(variants))
	for _, level := range levels {
		if byVariant[level.VariantID] == nil {
			byVariant[level.VariantID] = make(map[string]int, len(columns))
		}
		byVariant[level.VariantID][level.OutletID] = level.QuantityOnHand
	}

	report := domain.StockReport{
		OrgID:       orgID,
		Outlets:     outlets,
		Rows:        make([]domain.StockReportRow, 0, len(byVariant)),
		TotalValue:  decimal.Zero,
		GeneratedAt: s.now(),
	}
	for _, variant := range variants {
		quantities, ok := byVariant[variant.ID]
		if !ok {
			continue
		}
		row := domain.StockReportRow{
			VariantID:   variant.ID,
			SKU:         variant.SKU,
			ProductName: variant.ProductName,
			VariantName: variant.Name,
			ByOutlet:    make([]domain.StockReportCell, 0, len(columns)),
			UnitCost:    variant.DefaultUnitCost,
		}
		for _, outletID := range columns {
			qty := quantities[outletID]
			row.ByOutlet = append(row.ByOutlet, domain.StockReportCell{OutletID: outletID, Quantity: qty})
			row.TotalQuantity += qty
		}
		row.TotalValue = variant.DefaultUnitCost.Mul(decimal.NewFromInt(int64(row.TotalQuantity)))
		report.TotalValue = report.TotalValue.Add(row.TotalValue)
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}
