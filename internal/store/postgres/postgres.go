package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
	numericOutOfRange   = "22003"

	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	lockNotAvailable     = "55P03"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Options struct {
	MaxConns    int32
	MinConns    int32
	LockTimeout time.Duration
}

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func New(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, lockTimeout: opts.LockTimeout}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case serializationFailure, deadlockDetected, lockNotAvailable:
		return fmt.Errorf("%w: %s", store.ErrRetryable, pgErr.Message)
	case uniqueViolation:
		if pgErr.ConstraintName == "stock_opnames_one_counting_idx" {
			return store.Conflict("outlet", "", "", "start a second counting opname")
		}
		return store.Invalid(constraintField(pgErr.ConstraintName), "already exists")
	case foreignKeyViolation:
		return store.Invalid(constraintField(pgErr.ConstraintName), "references an unknown record")
	case numericOutOfRange:
		return store.Invalid("quantity", "out of range")
	case checkViolation:
		if pgErr.ConstraintName == "stock_levels_non_negative" {
			return fmt.Errorf("%w: %s", store.ErrInsufficientStock, pgErr.Message)
		}
		return store.Invalid(constraintField(pgErr.ConstraintName), "violates "+pgErr.ConstraintName)
	}
	return err
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// constraintField turns "stock_transfers_organization_id_transfer_number_key"
// style names into the last meaningful column for error messages.
func constraintField(name string) string {
	name = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(name, "_key"), "_fkey"), "_check")
	for _, column := range []string{"transfer_number", "po_number", "document_number", "opname_number", "sku", "code", "username", "variant_id", "outlet_id", "supplier_id"} {
		if strings.HasSuffix(name, column) {
			return column
		}
	}
	if name == "" {
		return "record"
	}
	return name
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func (s *Store) CreateOutlet(ctx context.Context, outlet domain.Outlet) (*domain.Outlet, error) {
	if outlet.ID == "" || outlet.OrgID == "" || outlet.Code == "" {
		return nil, store.Invalid("outlet", "id, organization and code are required")
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO outlets (id, organization_id, code, name, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		outlet.ID, outlet.OrgID, outlet.Code, outlet.Name, outlet.Active, outlet.CreatedAt,
	).Scan(&outlet.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	outlet.CreatedAt = utc(outlet.CreatedAt)
	return &outlet, nil
}

const outletColumns = `id, organization_id, code, name, active, created_at`

func scanOutlet(row pgx.Row) (domain.Outlet, error) {
	var outlet domain.Outlet
	err := row.Scan(&outlet.ID, &outlet.OrgID, &outlet.Code, &outlet.Name, &outlet.Active, &outlet.CreatedAt)
	outlet.CreatedAt = utc(outlet.CreatedAt)
	return outlet, err
}

func (s *Store) GetOutlet(ctx context.Context, orgID string, outletID string) (*domain.Outlet, error) {
	outlet, err := scanOutlet(s.pool.QueryRow(ctx,
		`SELECT `+outletColumns+` FROM outlets WHERE organization_id = $1 AND id = $2`, orgID, outletID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.NotFound("outlet", outletID)
	}
	if err != nil {
		return nil, fmt.Errorf("get outlet: %w", err)
	}
	return &outlet, nil
}

func (s *Store) ListOutlets(ctx context.Context, orgID string) ([]domain.Outlet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+outletColumns+` FROM outlets WHERE organization_id = $1 ORDER BY code`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list outlets: %w", err)
	}
	defer rows.Close()

	outlets := make([]domain.Outlet, 0)
	for rows.Next() {
		outlet, err := scanOutlet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outlet: %w", err)
		}
		outlets = append(outlets, outlet)
	}
	return outlets, rows.Err()
}

func (s *Store) CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" || variant.OrgID == "" || variant.SKU == "" {
		return nil, store.Invalid("variant", "id, organization and sku are required")
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO variants (id, organization_id, sku, product_name, name, default_unit_cost, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		variant.ID, variant.OrgID, variant.SKU, variant.ProductName, variant.Name,
		variant.DefaultUnitCost, variant.Active, variant.CreatedAt,
	).Scan(&variant.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	variant.CreatedAt = utc(variant.CreatedAt)
	return &variant, nil
}

const variantColumns = `id, organization_id, sku, product_name, name, default_unit_cost, active, created_at`

func scanVariant(row pgx.Row) (domain.Variant, error) {
	var v domain.Variant
	err := row.Scan(&v.ID, &v.OrgID, &v.SKU, &v.ProductName, &v.Name, &v.DefaultUnitCost, &v.Active, &v.CreatedAt)
	v.CreatedAt = utc(v.CreatedAt)
	return v, err
}

func (s *Store) GetVariants(ctx context.Context, orgID string, variantIDs []string) (map[string]domain.Variant, error) {
	result := make(map[string]domain.Variant, len(variantIDs))
	if len(variantIDs) == 0 {
		return result, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE organization_id = $1 AND id = ANY($2)`, orgID, variantIDs)
	if err != nil {
		return nil, fmt.Errorf("get variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		result[v.ID] = v
	}
	return result, rows.Err()
}

func (s *Store) ListVariants(ctx context.Context, orgID string) ([]domain.Variant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE organization_id = $1 ORDER BY sku`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0)
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" || supplier.OrgID == "" || supplier.Name == "" {
		return nil, store.Invalid("supplier", "id, organization and name are required")
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO suppliers (id, organization_id, name, phone, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		supplier.ID, supplier.OrgID, supplier.Name, supplier.Phone, supplier.CreatedAt,
	).Scan(&supplier.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	supplier.CreatedAt = utc(supplier.CreatedAt)
	return &supplier, nil
}

const supplierColumns = `id, organization_id, name, phone, created_at`

func scanSupplier(row pgx.Row) (domain.Supplier, error) {
	var sup domain.Supplier
	err := row.Scan(&sup.ID, &sup.OrgID, &sup.Name, &sup.Phone, &sup.CreatedAt)
	sup.CreatedAt = utc(sup.CreatedAt)
	return sup, err
}

func (s *Store) GetSupplier(ctx context.Context, orgID string, supplierID string) (*domain.Supplier, error) {
	sup, err := scanSupplier(s.pool.QueryRow(ctx,
		`SELECT `+supplierColumns+` FROM suppliers WHERE organization_id = $1 AND id = $2`, orgID, supplierID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.NotFound("supplier", supplierID)
	}
	if err != nil {
		return nil, fmt.Errorf("get supplier: %w", err)
	}
	return &sup, nil
}

func (s *Store) ListSuppliers(ctx context.Context, orgID string) ([]domain.Supplier, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+supplierColumns+` FROM suppliers WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0)
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) GetStockLevel(ctx context.Context, orgID string, outletID string, variantID string) (int, error) {
	var qty int
	err := s.pool.QueryRow(ctx, `
		SELECT quantity_on_hand FROM stock_levels
		WHERE organization_id = $1 AND outlet_id = $2 AND variant_id = $3`,
		orgID, outletID, variantID,
	).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get stock level: %w", err)
	}
	return qty, nil
}

func (s *Store) ListStockLevels(ctx context.Context, orgID string, outletIDs []string) ([]domain.StockLevel, error) {
	query := `SELECT organization_id, outlet_id, variant_id, quantity_on_hand, updated_at
		FROM stock_levels WHERE organization_id = $1`
	args := []any{orgID}
	if len(outletIDs) > 0 {
		query += ` AND outlet_id = ANY($2)`
		args = append(args, outletIDs)
	}
	query += ` ORDER BY outlet_id, variant_id`
	return queryLevels(ctx, s.pool, query, args...)
}

func queryLevels(ctx context.Context, q querier, query string, args ...any) ([]domain.StockLevel, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock levels: %w", err)
	}
	defer rows.Close()

	levels := make([]domain.StockLevel, 0)
	for rows.Next() {
		var level domain.StockLevel
		if err := rows.Scan(&level.OrgID, &level.OutletID, &level.VariantID, &level.QuantityOnHand, &level.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		level.UpdatedAt = utc(level.UpdatedAt)
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

func (s *Store) ListLedgerEntries(ctx context.Context, orgID string, query store.LedgerQuery) ([]domain.LedgerEntry, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, organization_id, outlet_id, variant_id, quantity_change, movement_type,
		source_document_id, created_at, created_by
		FROM ledger_entries WHERE organization_id = $1`)
	args := []any{orgID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if query.VariantID != "" {
		b.WriteString(` AND variant_id = ` + arg(query.VariantID))
	}
	if query.OutletID != "" {
		b.WriteString(` AND outlet_id = ` + arg(query.OutletID))
	}
	if query.Before != nil {
		at := arg(query.Before.CreatedAt)
		id := arg(query.Before.ID)
		b.WriteString(` AND (created_at, id) < (` + at + `, ` + id + `)`)
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if query.Limit > 0 {
		b.WriteString(` LIMIT ` + arg(query.Limit))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.OrgID, &e.OutletID, &e.VariantID, &e.QuantityChange, &e.MovementType,
			&e.SourceDocumentID, &e.CreatedAt, &e.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.CreatedAt = utc(e.CreatedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) GetTransfer(ctx context.Context, orgID string, transferID string) (*domain.StockTransfer, error) {
	return getTransfer(ctx, s.pool, orgID, transferID, false)
}

func (s *Store) ListTransfers(ctx context.Context, orgID string, status domain.TransferStatus, limit int) ([]domain.StockTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM stock_transfers WHERE organization_id = $1`
	args := []any{orgID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	transfers := make([]domain.StockTransfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	for i := range transfers {
		items, err := loadTransferItems(ctx, s.pool, transfers[i].ID)
		if err != nil {
			return nil, err
		}
		transfers[i].Items = items
	}
	return transfers, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, orgID string, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, s.pool, orgID, purchaseOrderID, false)
}

func (s *Store) ListPurchaseOrders(ctx context.Context, orgID string, status domain.POStatus, limit int) ([]domain.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE organization_id = $1`
	args := []any{orgID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list purchase orders: %w", err)
	}
	orders := make([]domain.PurchaseOrder, 0)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		orders = append(orders, po)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list purchase orders: %w", err)
	}
	for i := range orders {
		if err := loadPurchaseOrderDetail(ctx, s.pool, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) GetStockAdjustment(ctx context.Context, orgID string, adjustmentID string) (*domain.StockAdjustment, error) {
	var adj domain.StockAdjustment
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, kind, document_number, outlet_id, notes, created_at, created_by
		FROM stock_adjustments WHERE organization_id = $1 AND id = $2`, orgID, adjustmentID,
	).Scan(&adj.ID, &adj.OrgID, &adj.Kind, &adj.DocumentNumber, &adj.OutletID, &adj.Notes, &adj.CreatedAt, &adj.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.NotFound("stock adjustment", adjustmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("get stock adjustment: %w", err)
	}
	adj.CreatedAt = utc(adj.CreatedAt)

	rows, err := s.pool.Query(ctx, `
		SELECT variant_id, quantity, reason FROM stock_adjustment_items
		WHERE adjustment_id = $1 ORDER BY line_no`, adj.ID)
	if err != nil {
		return nil, fmt.Errorf("load adjustment items: %w", err)
	}
	defer rows.Close()

	adj.Items = make([]domain.AdjustmentItem, 0)
	for rows.Next() {
		var item domain.AdjustmentItem
		if err := rows.Scan(&item.VariantID, &item.Quantity, &item.Reason); err != nil {
			return nil, fmt.Errorf("scan adjustment item: %w", err)
		}
		adj.Items = append(adj.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load adjustment items: %w", err)
	}
	return &adj, nil
}

func (s *Store) GetOpname(ctx context.Context, orgID string, opnameID string) (*domain.StockOpname, error) {
	return getOpname(ctx, s.pool, orgID, opnameID, false)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, organization_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.OrgID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create audit log: %w", mapError(err))
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, orgID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4`, orgID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.OrgID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entry.CreatedAt = utc(entry.CreatedAt)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" || user.OrgID == "" {
		return store.Invalid("user", "username, password and organization are required")
	}
	role := user.Role
	if role == "" {
		role = domain.RoleStaff
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_users (username, password, role, organization_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, $5, $5)`,
		username, user.Password, role, user.OrgID, createdAt,
	)
	if isCode(err, uniqueViolation) {
		return store.Invalid("username", "already exists")
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT username, password, role, organization_id, active, created_at
		FROM app_users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.OrgID, &user.Active, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.CreatedAt = utc(user.CreatedAt)
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.Invalid("password", "is required")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE app_users SET password = $2, updated_at = now() WHERE username = $1`, username, password)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("user", username)
	}
	return nil
}

// SeedUsers inserts the bootstrap accounts when the user table is empty.
func (s *Store) SeedUsers(ctx context.Context, users []domain.UserAccount) error {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM app_users`).Scan(&count); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, user := range users {
		if err := s.CreateUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}
