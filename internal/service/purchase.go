package service

import (
	"context"
	"fmt"
	"strings"

	"kasirinaja/stockledger/internal/catalog"
	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/ledger"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/xid"
)

const purchaseOrderNumberPrefix = "PO"

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.PurchaseOrder{}, s.observe(err)
	}

	supplier, err := s.catalog.Supplier(ctx, actor.OrgID, req.SupplierID)
	if err != nil {
		return domain.PurchaseOrder{}, s.observe(err)
	}
	outlet, err := s.catalog.Outlet(ctx, actor.OrgID, req.OutletID)
	if err != nil {
		return domain.PurchaseOrder{}, s.observe(err)
	}

	ids := make([]string, 0, len(req.Items))
	seen := make(map[string]struct{}, len(req.Items))
	for i := range req.Items {
		req.Items[i].VariantID = strings.TrimSpace(req.Items[i].VariantID)
		if _, dup := seen[req.Items[i].VariantID]; dup {
			return domain.PurchaseOrder{}, s.observe(store.Invalid("items", "variant "+req.Items[i].VariantID+" listed more than once"))
		}
		seen[req.Items[i].VariantID] = struct{}{}
		ids = append(ids, req.Items[i].VariantID)
	}
	variants, err := s.catalog.Variants(ctx, actor.OrgID, ids)
	if err != nil {
		return domain.PurchaseOrder{}, s.observe(err)
	}

	now := s.now()
	po := domain.PurchaseOrder{
		ID:         xid.New("po"),
		OrgID:      actor.OrgID,
		Status:     domain.PODraft,
		SupplierID: supplier.ID,
		OutletID:   outlet.ID,
		Notes:      strings.TrimSpace(req.Notes),
		CreatedAt:  now,
		CreatedBy:  actor.Username,
		Items:      make([]domain.PurchaseOrderItem, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		cost, err := catalog.UnitCost(variants[item.VariantID], item.UnitCost)
		if err != nil {
			return domain.PurchaseOrder{}, s.observe(err)
		}
		po.Items = append(po.Items, domain.PurchaseOrderItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitCost:  cost,
		})
	}

	err = s.atomically(ctx, docRef{entity: "purchase order", id: po.ID, action: "create"}, func(ctx context.Context, tx store.Tx) error {
		seq, err := tx.NextDocumentNumber(ctx, actor.OrgID, purchaseOrderNumberPrefix, now)
		if err != nil {
			return err
		}
		po.PONumber = xid.DocumentNumber(purchaseOrderNumberPrefix, now, seq)
		return tx.CreatePurchaseOrder(ctx, po)
	})
	if err != nil {
		return domain.PurchaseOrder{}, s.observe(err)
	}

	s.logAudit(ctx, actor, "purchase_order_create", "purchase_order", po.ID, fmt.Sprintf("number=%s,supplier=%s,outlet=%s,items=%d", po.PONumber, po.SupplierID, po.OutletID, len(po.Items)))
	return po, nil
}

func (s *Service) MarkPurchaseOrderOrdered(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error) {
	return s.transitionPurchaseOrder(ctx, purchaseOrderID, domain.POActionOrder, func(po *domain.PurchaseOrder, _ domain.Actor) error {
		now := s.now()
		po.OrderedAt = &now
		return nil
	}, nil)
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error) {
	return s.transitionPurchaseOrder(ctx, purchaseOrderID, domain.POActionCancel, func(po *domain.PurchaseOrder, _ domain.Actor) error {
		now := s.now()
		po.CancelledAt = &now
		return nil
	}, nil)
}

// ReceivePO books a delivery against the order. Lines may arrive over
// several receipts; the cumulative received quantity of a line can never
// exceed what was ordered.
func (s *Service) ReceivePO(ctx context.Context, purchaseOrderID string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrder, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.PurchaseOrder{}, s.observe(err)
	}
	lines, err := mergeItems(req.Items)
	if err != nil {
		return domain.PurchaseOrder{}, s.observe(err)
	}
	notes := strings.TrimSpace(req.Notes)

	var reqs []ledger.MovementRequest
	return s.transitionPurchaseOrder(ctx, purchaseOrderID, domain.POActionReceive, func(po *domain.PurchaseOrder, actor domain.Actor) error {
		index := make(map[string]int, len(po.Items))
		for i, item := range po.Items {
			index[item.VariantID] = i
		}

		receipt := domain.POReceipt{
			ID:         xid.New("rcp"),
			ReceivedAt: s.now(),
			ReceivedBy: actor.Username,
			Notes:      notes,
			Items:      make([]domain.ReceiptLine, 0, len(lines)),
		}
		reqs = make([]ledger.MovementRequest, 0, len(lines))
		for _, line := range lines {
			i, ok := index[line.VariantID]
			if !ok {
				return store.Invalid("items", "variant "+line.VariantID+" is not on this purchase order")
			}
			item := &po.Items[i]
			received, err := addQuantity(item.ReceivedQuantity, line.Quantity)
			if err != nil || received > item.Quantity {
				return store.Invalid("items", fmt.Sprintf("variant %s: receiving %d exceeds remaining %d", line.VariantID, line.Quantity, item.Quantity-item.ReceivedQuantity))
			}
			item.ReceivedQuantity = received
			receipt.Items = append(receipt.Items, domain.ReceiptLine{VariantID: line.VariantID, Quantity: line.Quantity})
			reqs = append(reqs, ledger.POReceipt(po.OutletID, line.VariantID, line.Quantity, po.ID))
		}

		fully := true
		for _, item := range po.Items {
			if item.ReceivedQuantity < item.Quantity {
				fully = false
				break
			}
		}
		po.Status = domain.ReceiveOutcome(fully)
		if fully {
			completed := receipt.ReceivedAt
			po.CompletedAt = &completed
		}
		po.Receipts = append(po.Receipts, receipt)
		return nil
	}, func() []ledger.MovementRequest { return reqs })
}

// transitionPurchaseOrder loads the order under lock, checks the move is
// allowed, lets apply mutate it and persists the result. movements, when
// set, is read after apply and posted in the same transaction.
func (s *Service) transitionPurchaseOrder(
	ctx context.Context,
	purchaseOrderID string,
	action domain.POAction,
	apply func(po *domain.PurchaseOrder, actor domain.Actor) error,
	movements func() []ledger.MovementRequest,
) (domain.PurchaseOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	if purchaseOrderID == "" {
		return domain.PurchaseOrder{}, s.observe(store.Invalid("purchase_order_id", "is required"))
	}

	var (
		result domain.PurchaseOrder
		posted int
	)
	ref := docRef{entity: "purchase order", id: purchaseOrderID, action: string(action)}
	err = s.transition(ctx, actor.OrgID, ref, func(ctx context.Context, tx store.Tx) error {
		po, err := tx.GetPurchaseOrderForUpdate(ctx, actor.OrgID, purchaseOrderID)
		if err != nil {
			return err
		}
		from := po.Status
		next, ok := from.Next(action)
		if !ok {
			return store.Conflict("purchase order", purchaseOrderID, string(from), string(action))
		}
		po.Status = next
		receiptsBefore := len(po.Receipts)
		if err := apply(po, actor); err != nil {
			return err
		}

		posted = 0
		if movements != nil {
			reqs := movements()
			if len(reqs) > 0 {
				entries, err := s.ledger.Post(ctx, tx, s.posting(actor, s.now()), reqs)
				if err != nil {
					return err
				}
				posted = len(entries)
			}
		}
		if err := tx.UpdatePurchaseOrder(ctx, *po, from); err != nil {
			return err
		}
		for _, receipt := range po.Receipts[receiptsBefore:] {
			if err := tx.CreatePOReceipt(ctx, actor.OrgID, po.ID, receipt); err != nil {
				return err
			}
		}
		result = *po
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, s.observe(err)
	}

	if posted > 0 {
		s.afterPosting(ctx, actor.OrgID)
	}
	s.logAudit(ctx, actor, "purchase_order_"+string(action), "purchase_order", result.ID, fmt.Sprintf("number=%s,status=%s,entries=%d", result.PONumber, result.Status, posted))
	return result, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.GetPurchaseOrder(ctx, actor.OrgID, strings.TrimSpace(purchaseOrderID))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) (domain.PurchaseOrderListResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	filter := domain.POStatus(strings.ToLower(strings.TrimSpace(status)))
	if filter != "" && !filter.Valid() {
		return domain.PurchaseOrderListResponse{}, store.Invalid("status", "unknown purchase order status")
	}
	orders, err := s.repo.ListPurchaseOrders(ctx, actor.OrgID, filter, clampLimit(limit, 50, 200))
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{PurchaseOrders: orders}, nil
}
