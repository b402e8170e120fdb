package store

import (
	"context"
	"sort"
	"time"

	"kasirinaja/stockledger/internal/domain"
)

type StockKey struct {
	OutletID  string
	VariantID string
}

// SortStockKeys orders keys so every transaction takes row locks in the same
// sequence.
func SortStockKeys(keys []StockKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].OutletID != keys[j].OutletID {
			return keys[i].OutletID < keys[j].OutletID
		}
		return keys[i].VariantID < keys[j].VariantID
	})
}

type LedgerPosition struct {
	CreatedAt time.Time
	ID        string
}

type LedgerQuery struct {
	VariantID string
	OutletID  string
	Before    *LedgerPosition
	Limit     int
}

type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateOutlet(ctx context.Context, outlet domain.Outlet) (*domain.Outlet, error)
	GetOutlet(ctx context.Context, orgID string, outletID string) (*domain.Outlet, error)
	ListOutlets(ctx context.Context, orgID string) ([]domain.Outlet, error)
	CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	GetVariants(ctx context.Context, orgID string, variantIDs []string) (map[string]domain.Variant, error)
	ListVariants(ctx context.Context, orgID string) ([]domain.Variant, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, orgID string, supplierID string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, orgID string) ([]domain.Supplier, error)

	GetStockLevel(ctx context.Context, orgID string, outletID string, variantID string) (int, error)
	ListStockLevels(ctx context.Context, orgID string, outletIDs []string) ([]domain.StockLevel, error)
	ListLedgerEntries(ctx context.Context, orgID string, query LedgerQuery) ([]domain.LedgerEntry, error)

	GetTransfer(ctx context.Context, orgID string, transferID string) (*domain.StockTransfer, error)
	ListTransfers(ctx context.Context, orgID string, status domain.TransferStatus, limit int) ([]domain.StockTransfer, error)
	GetPurchaseOrder(ctx context.Context, orgID string, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, orgID string, status domain.POStatus, limit int) ([]domain.PurchaseOrder, error)
	GetStockAdjustment(ctx context.Context, orgID string, adjustmentID string) (*domain.StockAdjustment, error)
	GetOpname(ctx context.Context, orgID string, opnameID string) (*domain.StockOpname, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, orgID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is the atomic unit every posting transition runs in. Document status
// writes are conditional on the expected pre-state and fail with a
// StateConflictError when another transaction got there first.
type Tx interface {
	NextDocumentNumber(ctx context.Context, orgID string, prefix string, day time.Time) (int, error)

	LockStockLevels(ctx context.Context, orgID string, keys []StockKey) (map[StockKey]int, error)
	ApplyStockDelta(ctx context.Context, orgID string, key StockKey, delta int, at time.Time) (int, error)
	InsertLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error
	ListOutletStock(ctx context.Context, orgID string, outletID string) ([]domain.StockLevel, error)

	CreateTransfer(ctx context.Context, transfer domain.StockTransfer) error
	GetTransferForUpdate(ctx context.Context, orgID string, transferID string) (*domain.StockTransfer, error)
	UpdateTransferStatus(ctx context.Context, transfer domain.StockTransfer, from domain.TransferStatus) error

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error
	GetPurchaseOrderForUpdate(ctx context.Context, orgID string, purchaseOrderID string) (*domain.PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder, from domain.POStatus) error
	CreatePOReceipt(ctx context.Context, orgID string, purchaseOrderID string, receipt domain.POReceipt) error

	CreateStockAdjustment(ctx context.Context, adjustment domain.StockAdjustment) error

	CreateOpname(ctx context.Context, opname domain.StockOpname) error
	GetOpnameForUpdate(ctx context.Context, orgID string, opnameID string) (*domain.StockOpname, error)
	HasCountingOpname(ctx context.Context, orgID string, outletID string) (bool, error)
	AddOpnameItem(ctx context.Context, orgID string, opnameID string, item domain.OpnameItem) error
	UpdateOpnameCount(ctx context.Context, orgID string, opnameID string, item domain.OpnameItem) error
	CompleteOpname(ctx context.Context, opname domain.StockOpname, from domain.OpnameStatus) error
}
