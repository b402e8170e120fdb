package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity bounds document quantities and stock levels. Stock columns are
// 32-bit in Postgres; the validate tags repeat the value.
const MaxQuantity = math.MaxInt32

type Actor struct {
	Username string
	Role     string
	OrgID    string
}

type Outlet struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type OutletCreateRequest struct {
	Code string `json:"code" validate:"required,max=32"`
	Name string `json:"name" validate:"required,max=120"`
}

type Variant struct {
	ID              string          `json:"id"`
	OrgID           string          `json:"organization_id"`
	SKU             string          `json:"sku"`
	ProductName     string          `json:"product_name"`
	Name            string          `json:"name"`
	DefaultUnitCost decimal.Decimal `json:"default_unit_cost"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
}

type VariantCreateRequest struct {
	SKU             string          `json:"sku" validate:"required,max=64"`
	ProductName     string          `json:"product_name" validate:"required,max=160"`
	Name            string          `json:"name" validate:"max=160"`
	DefaultUnitCost decimal.Decimal `json:"default_unit_cost"`
}

type Supplier struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name" validate:"required,max=160"`
	Phone string `json:"phone" validate:"max=32"`
}

type StockLevel struct {
	OrgID          string    `json:"organization_id"`
	OutletID       string    `json:"outlet_id"`
	VariantID      string    `json:"variant_id"`
	QuantityOnHand int       `json:"quantity_on_hand"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type LedgerEntry struct {
	ID               string       `json:"id"`
	OrgID            string       `json:"organization_id"`
	OutletID         string       `json:"outlet_id"`
	VariantID        string       `json:"variant_id"`
	QuantityChange   int          `json:"quantity_change"`
	MovementType     MovementType `json:"movement_type"`
	SourceDocumentID string       `json:"source_document_id"`
	CreatedAt        time.Time    `json:"created_at"`
	CreatedBy        string       `json:"created_by"`
}

type MovementHistoryQuery struct {
	VariantID string
	OutletID  string
	Cursor    string
	Limit     int
}

type MovementHistoryPage struct {
	Entries    []LedgerEntry `json:"entries"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type DocumentItemRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=2147483647"`
	Reason    string `json:"reason,omitempty" validate:"max=200"`
}

type TransferItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type StockTransfer struct {
	ID             string         `json:"id"`
	OrgID          string         `json:"organization_id"`
	TransferNumber string         `json:"transfer_number"`
	Status         TransferStatus `json:"status"`
	OutletFrom     string         `json:"outlet_from"`
	OutletTo       string         `json:"outlet_to"`
	Notes          string         `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CreatedBy      string         `json:"created_by"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	SentBy         string         `json:"sent_by,omitempty"`
	ReceivedAt     *time.Time     `json:"received_at,omitempty"`
	ReceivedBy     string         `json:"received_by,omitempty"`
	CancelledAt    *time.Time     `json:"cancelled_at,omitempty"`
	Items          []TransferItem `json:"items"`
}

type TransferCreateRequest struct {
	OutletFrom string                `json:"outlet_from" validate:"required"`
	OutletTo   string                `json:"outlet_to" validate:"required"`
	Notes      string                `json:"notes" validate:"max=500"`
	Items      []DocumentItemRequest `json:"items" validate:"required,min=1,dive"`
}

type TransferListResponse struct {
	Transfers []StockTransfer `json:"transfers"`
}

type PurchaseOrderItem struct {
	VariantID        string          `json:"variant_id"`
	Quantity         int             `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	ReceivedQuantity int             `json:"received_quantity"`
}

type PurchaseOrder struct {
	ID          string              `json:"id"`
	OrgID       string              `json:"organization_id"`
	PONumber    string              `json:"po_number"`
	Status      POStatus            `json:"status"`
	SupplierID  string              `json:"supplier_id"`
	OutletID    string              `json:"outlet_id"`
	Notes       string              `json:"notes,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CreatedBy   string              `json:"created_by"`
	OrderedAt   *time.Time          `json:"ordered_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	CancelledAt *time.Time          `json:"cancelled_at,omitempty"`
	Items       []PurchaseOrderItem `json:"items"`
	Receipts    []POReceipt         `json:"receipts,omitempty"`
}

type POReceipt struct {
	ID         string        `json:"id"`
	ReceivedAt time.Time     `json:"received_at"`
	ReceivedBy string        `json:"received_by"`
	Notes      string        `json:"notes,omitempty"`
	Items      []ReceiptLine `json:"items"`
}

type ReceiptLine struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type PurchaseOrderItemRequest struct {
	VariantID string           `json:"variant_id" validate:"required"`
	Quantity  int              `json:"quantity" validate:"gt=0,lte=2147483647"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string                     `json:"supplier_id" validate:"required"`
	OutletID   string                     `json:"outlet_id" validate:"required"`
	Notes      string                     `json:"notes" validate:"max=500"`
	Items      []PurchaseOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type PurchaseOrderReceiveRequest struct {
	Notes string                `json:"notes" validate:"max=500"`
	Items []DocumentItemRequest `json:"items" validate:"required,min=1,dive"`
}

type PurchaseOrderListResponse struct {
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type AdjustmentItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason,omitempty"`
}

type StockAdjustment struct {
	ID             string           `json:"id"`
	OrgID          string           `json:"organization_id"`
	Kind           AdjustmentKind   `json:"kind"`
	DocumentNumber string           `json:"document_number"`
	OutletID       string           `json:"outlet_id"`
	Notes          string           `json:"notes,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	CreatedBy      string           `json:"created_by"`
	Items          []AdjustmentItem `json:"items"`
}

type StockAdjustmentCreateRequest struct {
	OutletID string                `json:"outlet_id" validate:"required"`
	Notes    string                `json:"notes" validate:"max=500"`
	Items    []DocumentItemRequest `json:"items" validate:"required,min=1,dive"`
}

type OpnameItem struct {
	ID              string     `json:"id"`
	VariantID       string     `json:"variant_id"`
	SystemQuantity  int        `json:"system_quantity"`
	CountedQuantity *int       `json:"counted_quantity"`
	CountedBy       string     `json:"counted_by,omitempty"`
	CountedAt       *time.Time `json:"counted_at,omitempty"`
}

func (i OpnameItem) Delta() int {
	if i.CountedQuantity == nil {
		return 0
	}
	return *i.CountedQuantity - i.SystemQuantity
}

type StockOpname struct {
	ID           string       `json:"id"`
	OrgID        string       `json:"organization_id"`
	OpnameNumber string       `json:"opname_number"`
	Status       OpnameStatus `json:"status"`
	OutletID     string       `json:"outlet_id"`
	Notes        string       `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	CreatedBy    string       `json:"created_by"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	CompletedBy  string       `json:"completed_by,omitempty"`
	Items        []OpnameItem `json:"items"`
}

type OpnameStartRequest struct {
	OutletID string `json:"outlet_id" validate:"required"`
	Notes    string `json:"notes" validate:"max=500"`
}

type OpnameAddItemRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
}

type OpnameCountRequest struct {
	CountedQuantity *int `json:"counted_quantity" validate:"required,gte=0,lte=2147483647"`
}

type OpnameFinalizeResponse struct {
	Opname  StockOpname   `json:"opname"`
	Entries []LedgerEntry `json:"entries"`
}

type StockReportQuery struct {
	OutletIDs []string
}

type StockReportCell struct {
	OutletID string `json:"outlet_id"`
	Quantity int    `json:"quantity"`
}

type StockReportRow struct {
	VariantID     string            `json:"variant_id"`
	SKU           string            `json:"sku"`
	ProductName   string            `json:"product_name"`
	VariantName   string            `json:"variant_name"`
	ByOutlet      []StockReportCell `json:"by_outlet"`
	TotalQuantity int               `json:"total_quantity"`
	UnitCost      decimal.Decimal   `json:"unit_cost"`
	TotalValue    decimal.Decimal   `json:"total_value"`
}

type StockReport struct {
	OrgID       string           `json:"organization_id"`
	Outlets     []Outlet         `json:"outlets"`
	Rows        []StockReportRow `json:"rows"`
	TotalValue  decimal.Decimal  `json:"total_value"`
	GeneratedAt time.Time        `json:"generated_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"organization_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type UserAccount struct {
	Username  string
	Password  string
	Role      string
	OrgID     string
	Active    bool
	CreatedAt time.Time
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken    string `json:"access_token"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
	ExpiresAt      string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
