package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/ledger"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/xid"
)

const transferNumberPrefix = "TRF"

func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (domain.StockTransfer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockTransfer{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.StockTransfer{}, s.observe(err)
	}

	req.OutletFrom = strings.TrimSpace(req.OutletFrom)
	req.OutletTo = strings.TrimSpace(req.OutletTo)
	if req.OutletFrom == req.OutletTo {
		return domain.StockTransfer{}, s.observe(store.Invalid("outlet_to", "must differ from outlet_from"))
	}
	if _, err := s.catalog.Outlet(ctx, actor.OrgID, req.OutletFrom); err != nil {
		return domain.StockTransfer{}, s.observe(err)
	}
	if _, err := s.catalog.Outlet(ctx, actor.OrgID, req.OutletTo); err != nil {
		return domain.StockTransfer{}, s.observe(err)
	}
	items, err := mergeItems(req.Items)
	if err != nil {
		return domain.StockTransfer{}, s.observe(err)
	}
	if _, err := s.catalog.Variants(ctx, actor.OrgID, variantIDs(items)); err != nil {
		return domain.StockTransfer{}, s.observe(err)
	}

	now := s.now()
	transfer := domain.StockTransfer{
		ID:         xid.New("trf"),
		OrgID:      actor.OrgID,
		Status:     domain.TransferDraft,
		OutletFrom: req.OutletFrom,
		OutletTo:   req.OutletTo,
		Notes:      strings.TrimSpace(req.Notes),
		CreatedAt:  now,
		CreatedBy:  actor.Username,
		Items:      make([]domain.TransferItem, 0, len(items)),
	}
	for _, item := range items {
		transfer.Items = append(transfer.Items, domain.TransferItem{VariantID: item.VariantID, Quantity: item.Quantity})
	}

	err = s.atomically(ctx, docRef{entity: "transfer", id: transfer.ID, action: "create"}, func(ctx context.Context, tx store.Tx) error {
		seq, err := tx.NextDocumentNumber(ctx, actor.OrgID, transferNumberPrefix, now)
		if err != nil {
			return err
		}
		transfer.TransferNumber = xid.DocumentNumber(transferNumberPrefix, now, seq)
		return tx.CreateTransfer(ctx, transfer)
	})
	if err != nil {
		return domain.StockTransfer{}, s.observe(err)
	}

	s.logAudit(ctx, actor, "transfer_create", "transfer", transfer.ID, fmt.Sprintf("number=%s,from=%s,to=%s,items=%d", transfer.TransferNumber, transfer.OutletFrom, transfer.OutletTo, len(transfer.Items)))
	return transfer, nil
}

// SendTransfer takes the goods out of the source outlet. Every line must be
// covered by stock on hand or nothing is posted.
func (s *Service) SendTransfer(ctx context.Context, transferID string) (domain.StockTransfer, error) {
	return s.transitionTransfer(ctx, transferID, domain.TransferActionSend, func(t *domain.StockTransfer, actor domain.Actor, now time.Time) []ledger.MovementRequest {
		t.SentAt = &now
		t.SentBy = actor.Username
		reqs := make([]ledger.MovementRequest, 0, len(t.Items))
		for _, item := range t.Items {
			reqs = append(reqs, ledger.TransferOut(t.OutletFrom, item.VariantID, item.Quantity, t.ID))
		}
		return reqs
	})
}

// ReceiveTransfer books the sent quantities into the destination outlet.
func (s *Service) ReceiveTransfer(ctx context.Context, transferID string) (domain.StockTransfer, error) {
	return s.transitionTransfer(ctx, transferID, domain.TransferActionReceive, func(t *domain.StockTransfer, actor domain.Actor, now time.Time) []ledger.MovementRequest {
		t.ReceivedAt = &now
		t.ReceivedBy = actor.Username
		reqs := make([]ledger.MovementRequest, 0, len(t.Items))
		for _, item := range t.Items {
			reqs = append(reqs, ledger.TransferIn(t.OutletTo, item.VariantID, item.Quantity, t.ID))
		}
		return reqs
	})
}

func (s *Service) CancelTransfer(ctx context.Context, transferID string) (domain.StockTransfer, error) {
	return s.transitionTransfer(ctx, transferID, domain.TransferActionCancel, func(t *domain.StockTransfer, _ domain.Actor, now time.Time) []ledger.MovementRequest {
		t.CancelledAt = &now
		return nil
	})
}

func (s *Service) transitionTransfer(
	ctx context.Context,
	transferID string,
	action domain.TransferAction,
	apply func(t *domain.StockTransfer, actor domain.Actor, now time.Time) []ledger.MovementRequest,
) (domain.StockTransfer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockTransfer{}, err
	}
	transferID = strings.TrimSpace(transferID)
	if transferID == "" {
		return domain.StockTransfer{}, s.observe(store.Invalid("transfer_id", "is required"))
	}

	var (
		result domain.StockTransfer
		posted int
	)
	ref := docRef{entity: "transfer", id: transferID, action: string(action)}
	err = s.transition(ctx, actor.OrgID, ref, func(ctx context.Context, tx store.Tx) error {
		transfer, err := tx.GetTransferForUpdate(ctx, actor.OrgID, transferID)
		if err != nil {
			return err
		}
		from := transfer.Status
		next, ok := from.Next(action)
		if !ok {
			return store.Conflict("transfer", transferID, string(from), string(action))
		}

		now := s.now()
		transfer.Status = next
		reqs := apply(transfer, actor, now)
		posted = 0
		if len(reqs) > 0 {
			entries, err := s.ledger.Post(ctx, tx, s.posting(actor, now), reqs)
			if err != nil {
				return err
			}
			posted = len(entries)
		}
		if err := tx.UpdateTransferStatus(ctx, *transfer, from); err != nil {
			return err
		}
		result = *transfer
		return nil
	})
	if err != nil {
		return domain.StockTransfer{}, s.observe(err)
	}

	if posted > 0 {
		s.afterPosting(ctx, actor.OrgID)
	}
	s.logAudit(ctx, actor, "transfer_"+string(action), "transfer", result.ID, fmt.Sprintf("number=%s,status=%s,entries=%d", result.TransferNumber, result.Status, posted))
	return result, nil
}

func (s *Service) GetTransfer(ctx context.Context, transferID string) (domain.StockTransfer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockTransfer{}, err
	}
	transfer, err := s.repo.GetTransfer(ctx, actor.OrgID, strings.TrimSpace(transferID))
	if err != nil {
		return domain.StockTransfer{}, err
	}
	return *transfer, nil
}

func (s *Service) ListTransfers(ctx context.Context, status string, limit int) (domain.TransferListResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.TransferListResponse{}, err
	}
	filter := domain.TransferStatus(strings.ToLower(strings.TrimSpace(status)))
	if filter != "" && !filter.Valid() {
		return domain.TransferListResponse{}, store.Invalid("status", "unknown transfer status")
	}
	transfers, err := s.repo.ListTransfers(ctx, actor.OrgID, filter, clampLimit(limit, 50, 200))
	if err != nil {
		return domain.TransferListResponse{}, err
	}
	return domain.TransferListResponse{Transfers: transfers}, nil
}
