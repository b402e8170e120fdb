package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/xid"
)

const (
	DemoOrgID        = "org-demo"
	DemoMainOutlet   = "outlet-pusat"
	DemoBranchOutlet = "outlet-cabang"
	DemoSupplierID   = "sup-sumber-rejeki"
)

type levelKey struct {
	orgID     string
	outletID  string
	variantID string
}

// state holds everything a transaction can touch. WithinTx works on a copy
// and swaps it in on commit, so a failed transaction leaves no trace.
type state struct {
	levels      map[levelKey]domain.StockLevel
	entries     []domain.LedgerEntry
	transfers   map[string]domain.StockTransfer
	orders      map[string]domain.PurchaseOrder
	adjustments map[string]domain.StockAdjustment
	opnames     map[string]domain.StockOpname
	sequences   map[string]int
}

func newState() *state {
	return &state{
		levels:      make(map[levelKey]domain.StockLevel),
		transfers:   make(map[string]domain.StockTransfer),
		orders:      make(map[string]domain.PurchaseOrder),
		adjustments: make(map[string]domain.StockAdjustment),
		opnames:     make(map[string]domain.StockOpname),
		sequences:   make(map[string]int),
	}
}

func (st *state) clone() *state {
	next := &state{
		levels:      make(map[levelKey]domain.StockLevel, len(st.levels)),
		entries:     st.entries[:len(st.entries):len(st.entries)],
		transfers:   make(map[string]domain.StockTransfer, len(st.transfers)),
		orders:      make(map[string]domain.PurchaseOrder, len(st.orders)),
		adjustments: make(map[string]domain.StockAdjustment, len(st.adjustments)),
		opnames:     make(map[string]domain.StockOpname, len(st.opnames)),
		sequences:   make(map[string]int, len(st.sequences)),
	}
	for k, v := range st.levels {
		next.levels[k] = v
	}
	for k, v := range st.transfers {
		next.transfers[k] = v
	}
	for k, v := range st.orders {
		next.orders[k] = v
	}
	for k, v := range st.adjustments {
		next.adjustments[k] = v
	}
	for k, v := range st.opnames {
		next.opnames[k] = v
	}
	for k, v := range st.sequences {
		next.sequences[k] = v
	}
	return next
}

type Store struct {
	mu        sync.RWMutex
	st        *state
	outlets   map[string]domain.Outlet
	variants  map[string]domain.Variant
	suppliers map[string]domain.Supplier
	auditLogs []domain.AuditLog
	users     map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		st:        newState(),
		outlets:   make(map[string]domain.Outlet),
		variants:  make(map[string]domain.Variant),
		suppliers: make(map[string]domain.Supplier),
		users:     make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD, falling back to dev defaults.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			OrgID:     DemoOrgID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

// SeedAccounts returns the bootstrap accounts of the demo organization with
// hashed passwords, for stores that start empty.
func SeedAccounts() []domain.UserAccount {
	users := seedUsers()
	out := make([]domain.UserAccount, 0, len(users))
	for _, user := range users {
		out = append(out, user)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a demo organization: two outlets, a
// supplier, a small catalog and opening stock at the main outlet posted as
// other_receipt entries.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	for _, o := range []domain.Outlet{
		{ID: DemoMainOutlet, OrgID: DemoOrgID, Code: "PUSAT", Name: "Gudang Pusat", Active: true, CreatedAt: now},
		{ID: DemoBranchOutlet, OrgID: DemoOrgID, Code: "CABANG", Name: "Toko Cabang", Active: true, CreatedAt: now},
	} {
		s.outlets[o.ID] = o
	}
	s.suppliers[DemoSupplierID] = domain.Supplier{ID: DemoSupplierID, OrgID: DemoOrgID, Name: "CV Sumber Rejeki", Phone: "0812000111", CreatedAt: now}

	catalog := []struct {
		id      string
		sku     string
		product string
		cost    string
		opening int
	}{
		{"var-mie-01", "SKU-MIE-01", "Mie Goreng Instan", "2730", 120},
		{"var-telur-01", "SKU-TELUR-01", "Telur 10 Butir", "23055", 40},
		{"var-susu-01", "SKU-SUSU-01", "Susu UHT 1L", "13608", 60},
		{"var-kopi-01", "SKU-KOPI-01", "Kopi Sachet", "1716", 200},
		{"var-gula-01", "SKU-GULA-01", "Gula 1kg", "15312", 50},
		{"var-sabun-01", "SKU-SABUN-01", "Sabun Mandi", "5032", 0},
	}
	for _, c := range catalog {
		s.variants[c.id] = domain.Variant{
			ID:              c.id,
			OrgID:           DemoOrgID,
			SKU:             c.sku,
			ProductName:     c.product,
			Name:            "Default",
			DefaultUnitCost: decimal.RequireFromString(c.cost),
			Active:          true,
			CreatedAt:       now,
		}
		if c.opening == 0 {
			continue
		}
		key := levelKey{orgID: DemoOrgID, outletID: DemoMainOutlet, variantID: c.id}
		s.st.levels[key] = domain.StockLevel{OrgID: DemoOrgID, OutletID: DemoMainOutlet, VariantID: c.id, QuantityOnHand: c.opening, UpdatedAt: now}
		s.st.entries = append(s.st.entries, domain.LedgerEntry{
			ID:               xid.New("le"),
			OrgID:            DemoOrgID,
			OutletID:         DemoMainOutlet,
			VariantID:        c.id,
			QuantityChange:   c.opening,
			MovementType:     domain.MovementOtherReceipt,
			SourceDocumentID: "opening-stock",
			CreatedAt:        now,
			CreatedBy:        "system",
		})
	}

	s.users = seedUsers()
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{st: s.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func (s *Store) CreateOutlet(_ context.Context, outlet domain.Outlet) (*domain.Outlet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outlet.ID == "" || outlet.OrgID == "" || outlet.Code == "" {
		return nil, store.Invalid("outlet", "id, organization and code are required")
	}
	for _, existing := range s.outlets {
		if existing.OrgID == outlet.OrgID && strings.EqualFold(existing.Code, outlet.Code) {
			return nil, store.Invalid("code", "already used by another outlet")
		}
	}
	s.outlets[outlet.ID] = outlet
	saved := outlet
	return &saved, nil
}

func (s *Store) GetOutlet(_ context.Context, orgID string, outletID string) (*domain.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outlet, ok := s.outlets[outletID]
	if !ok || outlet.OrgID != orgID {
		return nil, store.NotFound("outlet", outletID)
	}
	return &outlet, nil
}

func (s *Store) ListOutlets(_ context.Context, orgID string) ([]domain.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Outlet, 0, len(s.outlets))
	for _, outlet := range s.outlets {
		if outlet.OrgID == orgID {
			result = append(result, outlet)
		}
	}
	slices.SortFunc(result, func(a, b domain.Outlet) int { return strings.Compare(a.Code, b.Code) })
	return result, nil
}

func (s *Store) CreateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if variant.ID == "" || variant.OrgID == "" || variant.SKU == "" {
		return nil, store.Invalid("variant", "id, organization and sku are required")
	}
	for _, existing := range s.variants {
		if existing.OrgID == variant.OrgID && existing.SKU == variant.SKU {
			return nil, store.Invalid("sku", "already used by another variant")
		}
	}
	s.variants[variant.ID] = variant
	saved := variant
	return &saved, nil
}

func (s *Store) GetVariants(_ context.Context, orgID string, variantIDs []string) (map[string]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Variant, len(variantIDs))
	for _, id := range variantIDs {
		variant, ok := s.variants[id]
		if !ok || variant.OrgID != orgID {
			continue
		}
		result[id] = variant
	}
	return result, nil
}

func (s *Store) ListVariants(_ context.Context, orgID string) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Variant, 0, len(s.variants))
	for _, variant := range s.variants {
		if variant.OrgID == orgID {
			result = append(result, variant)
		}
	}
	slices.SortFunc(result, func(a, b domain.Variant) int { return strings.Compare(a.SKU, b.SKU) })
	return result, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" || supplier.OrgID == "" || supplier.Name == "" {
		return nil, store.Invalid("supplier", "id, organization and name are required")
	}
	s.suppliers[supplier.ID] = supplier
	saved := supplier
	return &saved, nil
}

func (s *Store) GetSupplier(_ context.Context, orgID string, supplierID string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliers[supplierID]
	if !ok || supplier.OrgID != orgID {
		return nil, store.NotFound("supplier", supplierID)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context, orgID string) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Supplier, 0, len(s.suppliers))
	for _, supplier := range s.suppliers {
		if supplier.OrgID == orgID {
			result = append(result, supplier)
		}
	}
	slices.SortFunc(result, func(a, b domain.Supplier) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) GetStockLevel(_ context.Context, orgID string, outletID string, variantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.levels[levelKey{orgID: orgID, outletID: outletID, variantID: variantID}].QuantityOnHand, nil
}

func (s *Store) ListStockLevels(_ context.Context, orgID string, outletIDs []string) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockLevel, 0, len(s.st.levels))
	for key, level := range s.st.levels {
		if key.orgID != orgID {
			continue
		}
		if len(outletIDs) > 0 && !slices.Contains(outletIDs, key.outletID) {
			continue
		}
		result = append(result, level)
	}
	sortLevels(result)
	return result, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, orgID string, query store.LedgerQuery) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LedgerEntry, 0, 16)
	for _, entry := range s.st.entries {
		if entry.OrgID != orgID {
			continue
		}
		if query.VariantID != "" && entry.VariantID != query.VariantID {
			continue
		}
		if query.OutletID != "" && entry.OutletID != query.OutletID {
			continue
		}
		if query.Before != nil && !entryBefore(entry, *query.Before) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.LedgerEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

func entryBefore(entry domain.LedgerEntry, pos store.LedgerPosition) bool {
	if entry.CreatedAt.Before(pos.CreatedAt) {
		return true
	}
	return entry.CreatedAt.Equal(pos.CreatedAt) && entry.ID < pos.ID
}

func (s *Store) GetTransfer(_ context.Context, orgID string, transferID string) (*domain.StockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfer, ok := s.st.transfers[transferID]
	if !ok || transfer.OrgID != orgID {
		return nil, store.NotFound("transfer", transferID)
	}
	copied := cloneTransfer(transfer)
	return &copied, nil
}

func (s *Store) ListTransfers(_ context.Context, orgID string, status domain.TransferStatus, limit int) ([]domain.StockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockTransfer, 0, len(s.st.transfers))
	for _, transfer := range s.st.transfers {
		if transfer.OrgID != orgID || (status != "" && transfer.Status != status) {
			continue
		}
		result = append(result, cloneTransfer(transfer))
	}
	slices.SortFunc(result, func(a, b domain.StockTransfer) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, orgID string, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.st.orders[purchaseOrderID]
	if !ok || po.OrgID != orgID {
		return nil, store.NotFound("purchase order", purchaseOrderID)
	}
	copied := clonePurchaseOrder(po)
	return &copied, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, orgID string, status domain.POStatus, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseOrder, 0, len(s.st.orders))
	for _, po := range s.st.orders {
		if po.OrgID != orgID || (status != "" && po.Status != status) {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetStockAdjustment(_ context.Context, orgID string, adjustmentID string) (*domain.StockAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adjustment, ok := s.st.adjustments[adjustmentID]
	if !ok || adjustment.OrgID != orgID {
		return nil, store.NotFound("stock adjustment", adjustmentID)
	}
	adjustment.Items = slices.Clone(adjustment.Items)
	return &adjustment, nil
}

func (s *Store) GetOpname(_ context.Context, orgID string, opnameID string) (*domain.StockOpname, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opname, ok := s.st.opnames[opnameID]
	if !ok || opname.OrgID != orgID {
		return nil, store.NotFound("opname", opnameID)
	}
	copied := cloneOpname(opname)
	return &copied, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, orgID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.OrgID != orgID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" || user.OrgID == "" {
		return store.Invalid("user", "username, password and organization are required")
	}
	if _, exists := s.users[username]; exists {
		return store.Invalid("username", "already exists")
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.Invalid("password", "is required")
	}
	user, exists := s.users[username]
	if !exists {
		return store.NotFound("user", username)
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func sortLevels(levels []domain.StockLevel) {
	slices.SortFunc(levels, func(a, b domain.StockLevel) int {
		if c := strings.Compare(a.OutletID, b.OutletID); c != 0 {
			return c
		}
		return strings.Compare(a.VariantID, b.VariantID)
	})
}

func cloneTransfer(src domain.StockTransfer) domain.StockTransfer {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dst := src
	dst.Items = slices.Clone(src.Items)
	dst.Receipts = make([]domain.POReceipt, 0, len(src.Receipts))
	for _, receipt := range src.Receipts {
		receipt.Items = slices.Clone(receipt.Items)
		dst.Receipts = append(dst.Receipts, receipt)
	}
	return dst
}

func cloneOpname(src domain.StockOpname) domain.StockOpname {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}
