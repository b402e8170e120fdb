package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
)

// Resolver answers the catalog questions documents need before they are
// written: does this outlet, supplier or variant exist inside the
// organization. Anything owned by another organization reads as missing.
type Resolver struct {
	repo store.Repository
}

func NewResolver(repo store.Repository) *Resolver {
	return &Resolver{repo: repo}
}

func (r *Resolver) Outlet(ctx context.Context, orgID string, outletID string) (domain.Outlet, error) {
	outletID = strings.TrimSpace(outletID)
	if outletID == "" {
		return domain.Outlet{}, store.Invalid("outlet_id", "is required")
	}
	outlet, err := r.repo.GetOutlet(ctx, orgID, outletID)
	if err != nil {
		return domain.Outlet{}, err
	}
	if !outlet.Active {
		return domain.Outlet{}, store.Invalid("outlet_id", "outlet is inactive")
	}
	return *outlet, nil
}

func (r *Resolver) Supplier(ctx context.Context, orgID string, supplierID string) (domain.Supplier, error) {
	supplierID = strings.TrimSpace(supplierID)
	if supplierID == "" {
		return domain.Supplier{}, store.Invalid("supplier_id", "is required")
	}
	supplier, err := r.repo.GetSupplier(ctx, orgID, supplierID)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

// Variants resolves every id or fails with NotFound naming the first missing
// one in sorted order.
func (r *Resolver) Variants(ctx context.Context, orgID string, variantIDs []string) (map[string]domain.Variant, error) {
	unique := make([]string, 0, len(variantIDs))
	seen := make(map[string]struct{}, len(variantIDs))
	for _, id := range variantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, store.Invalid("variant_id", "is required")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	variants, err := r.repo.GetVariants(ctx, orgID, unique)
	if err != nil {
		return nil, err
	}
	for _, id := range unique {
		if _, ok := variants[id]; !ok {
			return nil, store.NotFound("variant", id)
		}
	}
	return variants, nil
}

func (r *Resolver) Variant(ctx context.Context, orgID string, variantID string) (domain.Variant, error) {
	variants, err := r.Variants(ctx, orgID, []string{variantID})
	if err != nil {
		return domain.Variant{}, err
	}
	return variants[strings.TrimSpace(variantID)], nil
}

// UnitCost returns the explicit cost when given, otherwise the variant's
// catalog default. Negative costs are rejected.
func UnitCost(variant domain.Variant, explicit *decimal.Decimal) (decimal.Decimal, error) {
	cost := variant.DefaultUnitCost
	if explicit != nil {
		cost = *explicit
	}
	if cost.IsNegative() {
		return decimal.Zero, store.Invalid("unit_cost", "must not be negative")
	}
	return cost, nil
}
