package service

import (
	"context"
	"strings"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/xid"
)

func (s *Service) CreateOutlet(ctx context.Context, req domain.OutletCreateRequest) (domain.Outlet, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Outlet{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Outlet{}, err
	}

	created, err := s.repo.CreateOutlet(ctx, domain.Outlet{
		ID:        xid.New("out"),
		OrgID:     actor.OrgID,
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:      strings.TrimSpace(req.Name),
		Active:    true,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Outlet{}, err
	}
	s.logAudit(ctx, actor, "outlet_create", "outlet", created.ID, "code="+created.Code)
	return *created, nil
}

func (s *Service) ListOutlets(ctx context.Context) ([]domain.Outlet, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListOutlets(ctx, actor.OrgID)
}

func (s *Service) CreateVariant(ctx context.Context, req domain.VariantCreateRequest) (domain.Variant, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Variant{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Variant{}, err
	}
	if req.DefaultUnitCost.IsNegative() {
		return domain.Variant{}, store.Invalid("default_unit_cost", "must not be negative")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Default"
	}
	created, err := s.repo.CreateVariant(ctx, domain.Variant{
		ID:              xid.New("var"),
		OrgID:           actor.OrgID,
		SKU:             strings.ToUpper(strings.TrimSpace(req.SKU)),
		ProductName:     strings.TrimSpace(req.ProductName),
		Name:            name,
		DefaultUnitCost: req.DefaultUnitCost,
		Active:          true,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return domain.Variant{}, err
	}
	s.afterPosting(ctx, actor.OrgID)
	s.logAudit(ctx, actor, "variant_create", "variant", created.ID, "sku="+created.SKU)
	return *created, nil
}

func (s *Service) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListVariants(ctx, actor.OrgID)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Supplier{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Supplier{}, err
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		OrgID:     actor.OrgID,
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, actor, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx, actor.OrgID)
}
