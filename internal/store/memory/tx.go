package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
)

// memoryTx runs with the store's write lock held. It must not call back into
// Store methods.
type memoryTx struct {
	st *state
}

func (tx *memoryTx) NextDocumentNumber(_ context.Context, orgID string, prefix string, day time.Time) (int, error) {
	key := fmt.Sprintf("%s|%s|%s", orgID, prefix, day.UTC().Format("20060102"))
	tx.st.sequences[key]++
	return tx.st.sequences[key], nil
}

func (tx *memoryTx) LockStockLevels(_ context.Context, orgID string, keys []store.StockKey) (map[store.StockKey]int, error) {
	result := make(map[store.StockKey]int, len(keys))
	for _, key := range keys {
		result[key] = tx.st.levels[levelKey{orgID: orgID, outletID: key.OutletID, variantID: key.VariantID}].QuantityOnHand
	}
	return result, nil
}

func (tx *memoryTx) ApplyStockDelta(_ context.Context, orgID string, key store.StockKey, delta int, at time.Time) (int, error) {
	k := levelKey{orgID: orgID, outletID: key.OutletID, variantID: key.VariantID}
	level, ok := tx.st.levels[k]
	if !ok {
		level = domain.StockLevel{OrgID: orgID, OutletID: key.OutletID, VariantID: key.VariantID}
	}
	next := level.QuantityOnHand + delta
	if next < 0 {
		return 0, &store.InsufficientStockError{OutletID: key.OutletID, VariantID: key.VariantID, OnHand: level.QuantityOnHand, Requested: -delta}
	}
	level.QuantityOnHand = next
	level.UpdatedAt = at
	tx.st.levels[k] = level
	return next, nil
}

func (tx *memoryTx) InsertLedgerEntries(_ context.Context, entries []domain.LedgerEntry) error {
	tx.st.entries = append(tx.st.entries, entries...)
	return nil
}

func (tx *memoryTx) ListOutletStock(_ context.Context, orgID string, outletID string) ([]domain.StockLevel, error) {
	result := make([]domain.StockLevel, 0, 16)
	for key, level := range tx.st.levels {
		if key.orgID == orgID && key.outletID == outletID {
			result = append(result, level)
		}
	}
	sortLevels(result)
	return result, nil
}

func (tx *memoryTx) CreateTransfer(_ context.Context, transfer domain.StockTransfer) error {
	if _, exists := tx.st.transfers[transfer.ID]; exists {
		return store.Invalid("id", "transfer already exists")
	}
	for _, existing := range tx.st.transfers {
		if existing.OrgID == transfer.OrgID && existing.TransferNumber == transfer.TransferNumber {
			return store.Invalid("transfer_number", "already exists")
		}
	}
	tx.st.transfers[transfer.ID] = cloneTransfer(transfer)
	return nil
}

func (tx *memoryTx) GetTransferForUpdate(_ context.Context, orgID string, transferID string) (*domain.StockTransfer, error) {
	transfer, ok := tx.st.transfers[transferID]
	if !ok || transfer.OrgID != orgID {
		return nil, store.NotFound("transfer", transferID)
	}
	copied := cloneTransfer(transfer)
	return &copied, nil
}

func (tx *memoryTx) UpdateTransferStatus(_ context.Context, transfer domain.StockTransfer, from domain.TransferStatus) error {
	current, ok := tx.st.transfers[transfer.ID]
	if !ok || current.OrgID != transfer.OrgID {
		return store.NotFound("transfer", transfer.ID)
	}
	if current.Status != from {
		return store.Conflict("transfer", transfer.ID, string(current.Status), "update")
	}
	current.Status = transfer.Status
	current.SentAt = transfer.SentAt
	current.SentBy = transfer.SentBy
	current.ReceivedAt = transfer.ReceivedAt
	current.ReceivedBy = transfer.ReceivedBy
	current.CancelledAt = transfer.CancelledAt
	tx.st.transfers[transfer.ID] = current
	return nil
}

func (tx *memoryTx) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) error {
	if _, exists := tx.st.orders[po.ID]; exists {
		return store.Invalid("id", "purchase order already exists")
	}
	tx.st.orders[po.ID] = clonePurchaseOrder(po)
	return nil
}

func (tx *memoryTx) GetPurchaseOrderForUpdate(_ context.Context, orgID string, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	po, ok := tx.st.orders[purchaseOrderID]
	if !ok || po.OrgID != orgID {
		return nil, store.NotFound("purchase order", purchaseOrderID)
	}
	copied := clonePurchaseOrder(po)
	return &copied, nil
}

func (tx *memoryTx) UpdatePurchaseOrder(_ context.Context, po domain.PurchaseOrder, from domain.POStatus) error {
	current, ok := tx.st.orders[po.ID]
	if !ok || current.OrgID != po.OrgID {
		return store.NotFound("purchase order", po.ID)
	}
	if current.Status != from {
		return store.Conflict("purchase order", po.ID, string(current.Status), "update")
	}
	receipts := current.Receipts
	current = clonePurchaseOrder(po)
	current.Receipts = receipts
	tx.st.orders[po.ID] = current
	return nil
}

func (tx *memoryTx) CreatePOReceipt(_ context.Context, orgID string, purchaseOrderID string, receipt domain.POReceipt) error {
	po, ok := tx.st.orders[purchaseOrderID]
	if !ok || po.OrgID != orgID {
		return store.NotFound("purchase order", purchaseOrderID)
	}
	po = clonePurchaseOrder(po)
	receipt.Items = slices.Clone(receipt.Items)
	po.Receipts = append(po.Receipts, receipt)
	tx.st.orders[purchaseOrderID] = po
	return nil
}

func (tx *memoryTx) CreateStockAdjustment(_ context.Context, adjustment domain.StockAdjustment) error {
	if _, exists := tx.st.adjustments[adjustment.ID]; exists {
		return store.Invalid("id", "stock adjustment already exists")
	}
	adjustment.Items = slices.Clone(adjustment.Items)
	tx.st.adjustments[adjustment.ID] = adjustment
	return nil
}

func (tx *memoryTx) CreateOpname(_ context.Context, opname domain.StockOpname) error {
	if _, exists := tx.st.opnames[opname.ID]; exists {
		return store.Invalid("id", "opname already exists")
	}
	tx.st.opnames[opname.ID] = cloneOpname(opname)
	return nil
}

func (tx *memoryTx) GetOpnameForUpdate(_ context.Context, orgID string, opnameID string) (*domain.StockOpname, error) {
	opname, ok := tx.st.opnames[opnameID]
	if !ok || opname.OrgID != orgID {
		return nil, store.NotFound("opname", opnameID)
	}
	copied := cloneOpname(opname)
	return &copied, nil
}

func (tx *memoryTx) HasCountingOpname(_ context.Context, orgID string, outletID string) (bool, error) {
	for _, opname := range tx.st.opnames {
		if opname.OrgID == orgID && opname.OutletID == outletID && opname.Status == domain.OpnameCounting {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) AddOpnameItem(_ context.Context, orgID string, opnameID string, item domain.OpnameItem) error {
	opname, ok := tx.st.opnames[opnameID]
	if !ok || opname.OrgID != orgID {
		return store.NotFound("opname", opnameID)
	}
	for _, existing := range opname.Items {
		if existing.VariantID == item.VariantID {
			return store.Invalid("variant_id", "already part of this opname")
		}
	}
	opname = cloneOpname(opname)
	opname.Items = append(opname.Items, item)
	tx.st.opnames[opnameID] = opname
	return nil
}

func (tx *memoryTx) UpdateOpnameCount(_ context.Context, orgID string, opnameID string, item domain.OpnameItem) error {
	opname, ok := tx.st.opnames[opnameID]
	if !ok || opname.OrgID != orgID {
		return store.NotFound("opname", opnameID)
	}
	if opname.Status != domain.OpnameCounting {
		return store.Conflict("opname", opnameID, string(opname.Status), "count")
	}
	opname = cloneOpname(opname)
	for i := range opname.Items {
		if opname.Items[i].ID == item.ID {
			opname.Items[i].CountedQuantity = item.CountedQuantity
			opname.Items[i].CountedBy = item.CountedBy
			opname.Items[i].CountedAt = item.CountedAt
			tx.st.opnames[opnameID] = opname
			return nil
		}
	}
	return store.NotFound("opname item", item.ID)
}

func (tx *memoryTx) CompleteOpname(_ context.Context, opname domain.StockOpname, from domain.OpnameStatus) error {
	current, ok := tx.st.opnames[opname.ID]
	if !ok || current.OrgID != opname.OrgID {
		return store.NotFound("opname", opname.ID)
	}
	if current.Status != from {
		return store.Conflict("opname", opname.ID, string(current.Status), "finalize")
	}
	current = cloneOpname(current)
	current.Status = opname.Status
	current.CompletedAt = opname.CompletedAt
	current.CompletedBy = opname.CompletedBy
	tx.st.opnames[opname.ID] = current
	return nil
}
