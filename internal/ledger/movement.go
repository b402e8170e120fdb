package ledger

import (
	"fmt"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
)

// MovementRequest is a single stock change a document asks the ledger to
// post. Build it with one of the constructors below; the movement kind fixes
// the sign of the delta.
type MovementRequest struct {
	kind      domain.MovementType
	outletID  string
	variantID string
	delta     int
	sourceID  string
}

func TransferOut(outletID string, variantID string, qty int, transferID string) MovementRequest {
	return MovementRequest{kind: domain.MovementTransferOut, outletID: outletID, variantID: variantID, delta: -qty, sourceID: transferID}
}

func TransferIn(outletID string, variantID string, qty int, transferID string) MovementRequest {
	return MovementRequest{kind: domain.MovementTransferIn, outletID: outletID, variantID: variantID, delta: qty, sourceID: transferID}
}

func POReceipt(outletID string, variantID string, qty int, purchaseOrderID string) MovementRequest {
	return MovementRequest{kind: domain.MovementPOReceipt, outletID: outletID, variantID: variantID, delta: qty, sourceID: purchaseOrderID}
}

func OtherReceipt(outletID string, variantID string, qty int, documentID string) MovementRequest {
	return MovementRequest{kind: domain.MovementOtherReceipt, outletID: outletID, variantID: variantID, delta: qty, sourceID: documentID}
}

func WriteOff(outletID string, variantID string, qty int, documentID string) MovementRequest {
	return MovementRequest{kind: domain.MovementWriteOff, outletID: outletID, variantID: variantID, delta: -qty, sourceID: documentID}
}

// OpnameAdjustment takes the signed difference between counted and system
// quantity.
func OpnameAdjustment(outletID string, variantID string, delta int, opnameID string) MovementRequest {
	return MovementRequest{kind: domain.MovementOpnameAdjustment, outletID: outletID, variantID: variantID, delta: delta, sourceID: opnameID}
}

func (r MovementRequest) Kind() domain.MovementType { return r.kind }
func (r MovementRequest) Delta() int                { return r.delta }
func (r MovementRequest) SourceID() string          { return r.sourceID }

func (r MovementRequest) Key() store.StockKey {
	return store.StockKey{OutletID: r.outletID, VariantID: r.variantID}
}

func (r MovementRequest) validate() error {
	if !r.kind.Valid() {
		return store.Invalid("movement_type", "unknown movement type")
	}
	if r.outletID == "" || r.variantID == "" {
		return store.Invalid("movement", "outlet and variant are required")
	}
	if r.sourceID == "" {
		return store.Invalid("source_document_id", "is required")
	}
	if r.delta == 0 {
		return store.Invalid("quantity", "must not be zero")
	}
	if r.delta > domain.MaxQuantity || r.delta < -domain.MaxQuantity {
		return store.Invalid("quantity", fmt.Sprintf("must not exceed %d", domain.MaxQuantity))
	}
	switch r.kind {
	case domain.MovementTransferOut, domain.MovementWriteOff:
		if r.delta > 0 {
			return store.Invalid("quantity", "must be positive")
		}
	case domain.MovementTransferIn, domain.MovementPOReceipt, domain.MovementOtherReceipt:
		if r.delta < 0 {
			return store.Invalid("quantity", "must be positive")
		}
	}
	return nil
}
