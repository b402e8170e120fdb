package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/store/memory"
)

func TestResolverScopesLookupsToOrganization(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	_, err := repo.CreateOutlet(ctx, domain.Outlet{ID: "outlet-other", OrgID: "org-other", Code: "X", Name: "Other", Active: true, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	r := NewResolver(repo)

	outlet, err := r.Outlet(ctx, memory.DemoOrgID, memory.DemoMainOutlet)
	require.NoError(t, err)
	require.Equal(t, "PUSAT", outlet.Code)

	_, err = r.Outlet(ctx, memory.DemoOrgID, "outlet-other")
	require.True(t, errors.Is(err, store.ErrNotFound))

	_, err = r.Supplier(ctx, "org-other", memory.DemoSupplierID)
	require.True(t, errors.Is(err, store.ErrNotFound))

	_, err = r.Outlet(ctx, memory.DemoOrgID, " ")
	require.True(t, errors.Is(err, store.ErrValidation))
}

func TestResolverVariantsRequiresEveryID(t *testing.T) {
	repo := memory.NewSeeded()
	r := NewResolver(repo)
	ctx := context.Background()

	variants, err := r.Variants(ctx, memory.DemoOrgID, []string{"var-mie-01", "var-kopi-01", "var-mie-01"})
	require.NoError(t, err)
	require.Len(t, variants, 2)

	_, err = r.Variants(ctx, memory.DemoOrgID, []string{"var-mie-01", "var-ghost"})
	var notFound *store.NotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "var-ghost", notFound.ID)

	_, err = r.Variant(ctx, "org-other", "var-mie-01")
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUnitCostDefaultsToCatalog(t *testing.T) {
	variant := domain.Variant{DefaultUnitCost: decimal.RequireFromString("2730")}

	cost, err := UnitCost(variant, nil)
	require.NoError(t, err)
	require.True(t, cost.Equal(decimal.NewFromInt(2730)))

	explicit := decimal.RequireFromString("2500.5")
	cost, err = UnitCost(variant, &explicit)
	require.NoError(t, err)
	require.True(t, cost.Equal(explicit))

	negative := decimal.NewFromInt(-1)
	_, err = UnitCost(variant, &negative)
	require.True(t, errors.Is(err, store.ErrValidation))
}
