package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
)

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) NextDocumentNumber(ctx context.Context, orgID string, prefix string, day time.Time) (int, error) {
	day = day.UTC()
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var seq int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO document_sequences (organization_id, prefix, day, last_value)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (organization_id, prefix, day)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, orgID, prefix, date,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next document number: %w", err)
	}
	return seq, nil
}

// LockStockLevels takes row locks in the order of keys. Keys without a row
// report zero; ApplyStockDelta creates them.
func (t *pgTx) LockStockLevels(ctx context.Context, orgID string, keys []store.StockKey) (map[store.StockKey]int, error) {
	levels := make(map[store.StockKey]int, len(keys))
	for _, key := range keys {
		var qty int
		err := t.tx.QueryRow(ctx, `
			SELECT quantity_on_hand FROM stock_levels
			WHERE organization_id = $1 AND outlet_id = $2 AND variant_id = $3
			FOR UPDATE`, orgID, key.OutletID, key.VariantID,
		).Scan(&qty)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lock stock level: %w", err)
		}
		levels[key] = qty
	}
	return levels, nil
}

func (t *pgTx) ApplyStockDelta(ctx context.Context, orgID string, key store.StockKey, delta int, at time.Time) (int, error) {
	var qty int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_levels (organization_id, outlet_id, variant_id, quantity_on_hand, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id, outlet_id, variant_id)
		DO UPDATE SET quantity_on_hand = stock_levels.quantity_on_hand + EXCLUDED.quantity_on_hand,
		              updated_at = EXCLUDED.updated_at
		RETURNING quantity_on_hand`, orgID, key.OutletID, key.VariantID, delta, at,
	).Scan(&qty)
	if isCode(err, checkViolation) {
		return 0, &store.InsufficientStockError{OutletID: key.OutletID, VariantID: key.VariantID, Requested: -delta}
	}
	if err != nil {
		return 0, fmt.Errorf("apply stock delta: %w", err)
	}
	return qty, nil
}

func (t *pgTx) InsertLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"ledger_entries"},
		[]string{"id", "organization_id", "outlet_id", "variant_id", "quantity_change", "movement_type", "source_document_id", "created_at", "created_by"},
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			e := entries[i]
			return []any{e.ID, e.OrgID, e.OutletID, e.VariantID, e.QuantityChange, string(e.MovementType), e.SourceDocumentID, e.CreatedAt, e.CreatedBy}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entries: %w", err)
	}
	return nil
}

func (t *pgTx) ListOutletStock(ctx context.Context, orgID string, outletID string) ([]domain.StockLevel, error) {
	return queryLevels(ctx, t.tx, `
		SELECT organization_id, outlet_id, variant_id, quantity_on_hand, updated_at
		FROM stock_levels WHERE organization_id = $1 AND outlet_id = $2
		ORDER BY variant_id`, orgID, outletID)
}

const transferColumns = `id, organization_id, transfer_number, status, outlet_from, outlet_to, notes,
	created_at, created_by, sent_at, COALESCE(sent_by, ''), received_at, COALESCE(received_by, ''), cancelled_at`

func scanTransfer(row pgx.Row) (domain.StockTransfer, error) {
	var tr domain.StockTransfer
	err := row.Scan(&tr.ID, &tr.OrgID, &tr.TransferNumber, &tr.Status, &tr.OutletFrom, &tr.OutletTo, &tr.Notes,
		&tr.CreatedAt, &tr.CreatedBy, &tr.SentAt, &tr.SentBy, &tr.ReceivedAt, &tr.ReceivedBy, &tr.CancelledAt)
	tr.CreatedAt = utc(tr.CreatedAt)
	tr.SentAt = utcPtr(tr.SentAt)
	tr.ReceivedAt = utcPtr(tr.ReceivedAt)
	tr.CancelledAt = utcPtr(tr.CancelledAt)
	return tr, err
}

func loadTransferItems(ctx context.Context, q querier, transferID string) ([]domain.TransferItem, error) {
	rows, err := q.Query(ctx, `
		SELECT variant_id, quantity FROM stock_transfer_items
		WHERE transfer_id = $1 ORDER BY line_no`, transferID)
	if err != nil {
		return nil, fmt.Errorf("load transfer items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.TransferItem, 0)
	for rows.Next() {
		var item domain.TransferItem
		if err := rows.Scan(&item.VariantID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan transfer item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func getTransfer(ctx context.Context, q querier, orgID string, transferID string, forUpdate bool) (*domain.StockTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM stock_transfers WHERE organization_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	tr, err := scanTransfer(q.QueryRow(ctx, query, orgID, transferID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.NotFound("transfer", transferID)
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	if tr.Items, err = loadTransferItems(ctx, q, tr.ID); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (t *pgTx) CreateTransfer(ctx context.Context, transfer domain.StockTransfer) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO stock_transfers (id, organization_id, transfer_number, status, outlet_from, outlet_to, notes, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		transfer.ID, transfer.OrgID, transfer.TransferNumber, string(transfer.Status),
		transfer.OutletFrom, transfer.OutletTo, transfer.Notes, transfer.CreatedAt, transfer.CreatedBy)
	for i, item := range transfer.Items {
		batch.Queue(`
			INSERT INTO stock_transfer_items (transfer_id, line_no, variant_id, quantity)
			VALUES ($1, $2, $3, $4)`, transfer.ID, i+1, item.VariantID, item.Quantity)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create transfer: %w", mapError(err))
	}
	return nil
}

func (t *pgTx) GetTransferForUpdate(ctx context.Context, orgID string, transferID string) (*domain.StockTransfer, error) {
	return getTransfer(ctx, t.tx, orgID, transferID, true)
}

func (t *pgTx) UpdateTransferStatus(ctx context.Context, transfer domain.StockTransfer, from domain.TransferStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE stock_transfers
		SET status = $4, sent_at = $5, sent_by = $6, received_at = $7, received_by = $8, cancelled_at = $9
		WHERE organization_id = $1 AND id = $2 AND status = $3`,
		transfer.OrgID, transfer.ID, string(from), string(transfer.Status),
		transfer.SentAt, nullIfEmpty(transfer.SentBy), transfer.ReceivedAt, nullIfEmpty(transfer.ReceivedBy), transfer.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return t.statusMismatch(ctx, "stock_transfers", "transfer", transfer.OrgID, transfer.ID)
}

// statusMismatch explains why a conditional status update touched no row.
func (t *pgTx) statusMismatch(ctx context.Context, table string, entity string, orgID string, id string) error {
	var status string
	err := t.tx.QueryRow(ctx, `SELECT status FROM `+table+` WHERE organization_id = $1 AND id = $2`, orgID, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.NotFound(entity, id)
	}
	if err != nil {
		return fmt.Errorf("read %s status: %w", entity, err)
	}
	return store.Conflict(entity, id, status, "update")
}

const purchaseOrderColumns = `id, organization_id, po_number, status, supplier_id, outlet_id, notes,
	created_at, created_by, ordered_at, completed_at, cancelled_at`

func scanPurchaseOrder(row pgx.Row) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := row.Scan(&po.ID, &po.OrgID, &po.PONumber, &po.Status, &po.SupplierID, &po.OutletID, &po.Notes,
		&po.CreatedAt, &po.CreatedBy, &po.OrderedAt, &po.CompletedAt, &po.CancelledAt)
	po.CreatedAt = utc(po.CreatedAt)
	po.OrderedAt = utcPtr(po.OrderedAt)
	po.CompletedAt = utcPtr(po.CompletedAt)
	po.CancelledAt = utcPtr(po.CancelledAt)
	return po, err
}

func loadPurchaseOrderDetail(ctx context.Context, q querier, po *domain.PurchaseOrder) error {
	rows, err := q.Query(ctx, `
		SELECT variant_id, quantity, unit_cost, received_quantity
		FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY line_no`, po.ID)
	if err != nil {
		return fmt.Errorf("load purchase order items: %w", err)
	}
	po.Items = make([]domain.PurchaseOrderItem, 0)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.VariantID, &item.Quantity, &item.UnitCost, &item.ReceivedQuantity); err != nil {
			rows.Close()
			return fmt.Errorf("scan purchase order item: %w", err)
		}
		po.Items = append(po.Items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load purchase order items: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT r.id, r.received_at, r.received_by, r.notes, i.variant_id, i.quantity
		FROM purchase_order_receipts r
		JOIN purchase_order_receipt_items i ON i.receipt_id = r.id
		WHERE r.purchase_order_id = $1
		ORDER BY r.received_at, r.id, i.line_no`, po.ID)
	if err != nil {
		return fmt.Errorf("load purchase order receipts: %w", err)
	}
	defer rows.Close()

	po.Receipts = nil
	for rows.Next() {
		var (
			receipt domain.POReceipt
			line    domain.ReceiptLine
		)
		if err := rows.Scan(&receipt.ID, &receipt.ReceivedAt, &receipt.ReceivedBy, &receipt.Notes, &line.VariantID, &line.Quantity); err != nil {
			return fmt.Errorf("scan purchase order receipt: %w", err)
		}
		if n := len(po.Receipts); n == 0 || po.Receipts[n-1].ID != receipt.ID {
			receipt.ReceivedAt = utc(receipt.ReceivedAt)
			po.Receipts = append(po.Receipts, receipt)
		}
		last := &po.Receipts[len(po.Receipts)-1]
		last.Items = append(last.Items, line)
	}
	return rows.Err()
}

func getPurchaseOrder(ctx context.Context, q querier, orgID string, purchaseOrderID string, forUpdate bool) (*domain.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE organization_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	po, err := scanPurchaseOrder(q.QueryRow(ctx, query, orgID, purchaseOrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.NotFound("purchase order", purchaseOrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	if err := loadPurchaseOrderDetail(ctx, q, &po); err != nil {
		return nil, err
	}
	return &po, nil
}

func (t *pgTx) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO purchase_orders (id, organization_id, po_number, status, supplier_id, outlet_id, notes, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		po.ID, po.OrgID, po.PONumber, string(po.Status), po.SupplierID, po.OutletID, po.Notes, po.CreatedAt, po.CreatedBy)
	for i, item := range po.Items {
		batch.Queue(`
			INSERT INTO purchase_order_items (purchase_order_id, line_no, variant_id, quantity, unit_cost, received_quantity)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			po.ID, i+1, item.VariantID, item.Quantity, item.UnitCost, item.ReceivedQuantity)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create purchase order: %w", mapError(err))
	}
	return nil
}

func (t *pgTx) GetPurchaseOrderForUpdate(ctx context.Context, orgID string, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, t.tx, orgID, purchaseOrderID, true)
}

func (t *pgTx) UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder, from domain.POStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_orders
		SET status = $4, ordered_at = $5, completed_at = $6, cancelled_at = $7
		WHERE organization_id = $1 AND id = $2 AND status = $3`,
		po.OrgID, po.ID, string(from), string(po.Status), po.OrderedAt, po.CompletedAt, po.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("update purchase order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return t.statusMismatch(ctx, "purchase_orders", "purchase order", po.OrgID, po.ID)
	}

	batch := &pgx.Batch{}
	for _, item := range po.Items {
		batch.Queue(`
			UPDATE purchase_order_items SET received_quantity = $3
			WHERE purchase_order_id = $1 AND variant_id = $2`, po.ID, item.VariantID, item.ReceivedQuantity)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update purchase order items: %w", err)
	}
	return nil
}

func (t *pgTx) CreatePOReceipt(ctx context.Context, orgID string, purchaseOrderID string, receipt domain.POReceipt) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO purchase_order_receipts (id, purchase_order_id, received_at, received_by, notes)
		SELECT $1, id, $3, $4, $5 FROM purchase_orders WHERE id = $2 AND organization_id = $6`,
		receipt.ID, purchaseOrderID, receipt.ReceivedAt, receipt.ReceivedBy, receipt.Notes, orgID,
	)
	if err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("purchase order", purchaseOrderID)
	}

	batch := &pgx.Batch{}
	for i, line := range receipt.Items {
		batch.Queue(`
			INSERT INTO purchase_order_receipt_items (receipt_id, line_no, variant_id, quantity)
			VALUES ($1, $2, $3, $4)`, receipt.ID, i+1, line.VariantID, line.Quantity)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create receipt items: %w", err)
	}
	return nil
}

func (t *pgTx) CreateStockAdjustment(ctx context.Context, adj domain.StockAdjustment) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO stock_adjustments (id, organization_id, kind, document_number, outlet_id, notes, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		adj.ID, adj.OrgID, string(adj.Kind), adj.DocumentNumber, adj.OutletID, adj.Notes, adj.CreatedAt, adj.CreatedBy)
	for i, item := range adj.Items {
		batch.Queue(`
			INSERT INTO stock_adjustment_items (adjustment_id, line_no, variant_id, quantity, reason)
			VALUES ($1, $2, $3, $4, $5)`, adj.ID, i+1, item.VariantID, item.Quantity, item.Reason)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create stock adjustment: %w", mapError(err))
	}
	return nil
}

const opnameColumns = `id, organization_id, opname_number, status, outlet_id, notes,
	created_at, created_by, completed_at, COALESCE(completed_by, '')`

func getOpname(ctx context.Context, q querier, orgID string, opnameID string, forUpdate bool) (*domain.StockOpname, error) {
	query := `SELECT ` + opnameColumns + ` FROM stock_opnames WHERE organization_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var op domain.StockOpname
	err := q.QueryRow(ctx, query, orgID, opnameID).Scan(&op.ID, &op.OrgID, &op.OpnameNumber, &op.Status, &op.OutletID,
		&op.Notes, &op.CreatedAt, &op.CreatedBy, &op.CompletedAt, &op.CompletedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.NotFound("opname", opnameID)
	}
	if err != nil {
		return nil, fmt.Errorf("get opname: %w", err)
	}
	op.CreatedAt = utc(op.CreatedAt)
	op.CompletedAt = utcPtr(op.CompletedAt)

	rows, err := q.Query(ctx, `
		SELECT id, variant_id, system_quantity, counted_quantity, COALESCE(counted_by, ''), counted_at
		FROM stock_opname_items WHERE opname_id = $1 ORDER BY line_no`, op.ID)
	if err != nil {
		return nil, fmt.Errorf("load opname items: %w", err)
	}
	defer rows.Close()

	op.Items = make([]domain.OpnameItem, 0)
	for rows.Next() {
		var item domain.OpnameItem
		if err := rows.Scan(&item.ID, &item.VariantID, &item.SystemQuantity, &item.CountedQuantity, &item.CountedBy, &item.CountedAt); err != nil {
			return nil, fmt.Errorf("scan opname item: %w", err)
		}
		item.CountedAt = utcPtr(item.CountedAt)
		op.Items = append(op.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load opname items: %w", err)
	}
	return &op, nil
}

func (t *pgTx) CreateOpname(ctx context.Context, opname domain.StockOpname) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO stock_opnames (id, organization_id, opname_number, status, outlet_id, notes, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		opname.ID, opname.OrgID, opname.OpnameNumber, string(opname.Status), opname.OutletID,
		opname.Notes, opname.CreatedAt, opname.CreatedBy)
	for i, item := range opname.Items {
		batch.Queue(`
			INSERT INTO stock_opname_items (id, opname_id, line_no, variant_id, system_quantity)
			VALUES ($1, $2, $3, $4, $5)`, item.ID, opname.ID, i+1, item.VariantID, item.SystemQuantity)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create opname: %w", mapError(err))
	}
	return nil
}

func (t *pgTx) GetOpnameForUpdate(ctx context.Context, orgID string, opnameID string) (*domain.StockOpname, error) {
	return getOpname(ctx, t.tx, orgID, opnameID, true)
}

func (t *pgTx) HasCountingOpname(ctx context.Context, orgID string, outletID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM stock_opnames
			WHERE organization_id = $1 AND outlet_id = $2 AND status = 'counting'
		)`, orgID, outletID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check counting opname: %w", err)
	}
	return exists, nil
}

func (t *pgTx) opnameStatus(ctx context.Context, orgID string, opnameID string) (domain.OpnameStatus, error) {
	var status domain.OpnameStatus
	err := t.tx.QueryRow(ctx, `SELECT status FROM stock_opnames WHERE organization_id = $1 AND id = $2`, orgID, opnameID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.NotFound("opname", opnameID)
	}
	if err != nil {
		return "", fmt.Errorf("read opname status: %w", err)
	}
	return status, nil
}

func (t *pgTx) AddOpnameItem(ctx context.Context, orgID string, opnameID string, item domain.OpnameItem) error {
	if _, err := t.opnameStatus(ctx, orgID, opnameID); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_opname_items (id, opname_id, line_no, variant_id, system_quantity)
		SELECT $1, $2, COALESCE(MAX(line_no), 0) + 1, $3, $4
		FROM stock_opname_items WHERE opname_id = $2`,
		item.ID, opnameID, item.VariantID, item.SystemQuantity,
	)
	if isCode(err, uniqueViolation) {
		return store.Invalid("variant_id", "already part of this opname")
	}
	if err != nil {
		return fmt.Errorf("add opname item: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateOpnameCount(ctx context.Context, orgID string, opnameID string, item domain.OpnameItem) error {
	status, err := t.opnameStatus(ctx, orgID, opnameID)
	if err != nil {
		return err
	}
	if status != domain.OpnameCounting {
		return store.Conflict("opname", opnameID, string(status), "count")
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE stock_opname_items
		SET counted_quantity = $3, counted_by = $4, counted_at = $5
		WHERE opname_id = $1 AND id = $2`,
		opnameID, item.ID, item.CountedQuantity, nullIfEmpty(item.CountedBy), item.CountedAt,
	)
	if err != nil {
		return fmt.Errorf("update opname count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("opname item", item.ID)
	}
	return nil
}

func (t *pgTx) CompleteOpname(ctx context.Context, opname domain.StockOpname, from domain.OpnameStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE stock_opnames SET status = $4, completed_at = $5, completed_by = $6
		WHERE organization_id = $1 AND id = $2 AND status = $3`,
		opname.OrgID, opname.ID, string(from), string(opname.Status), opname.CompletedAt, nullIfEmpty(opname.CompletedBy),
	)
	if err != nil {
		return fmt.Errorf("complete opname: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return t.statusMismatch(ctx, "stock_opnames", "opname", opname.OrgID, opname.ID)
	}
	return nil
}
