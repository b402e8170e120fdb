package service

import (
	"context"
	"fmt"
	"strings"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/ledger"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/xid"
)

const opnameNumberPrefix = "OPN"

// StartOpname snapshots the book quantity of every stock row at the outlet.
// An outlet can only have one count in progress.
func (s *Service) StartOpname(ctx context.Context, req domain.OpnameStartRequest) (domain.StockOpname, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockOpname{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.StockOpname{}, s.observe(err)
	}
	outlet, err := s.catalog.Outlet(ctx, actor.OrgID, req.OutletID)
	if err != nil {
		return domain.StockOpname{}, s.observe(err)
	}

	var result domain.StockOpname
	ref := docRef{entity: "outlet", id: outlet.ID, action: "start opname"}
	err = s.transition(ctx, actor.OrgID, ref, func(ctx context.Context, tx store.Tx) error {
		active, err := tx.HasCountingOpname(ctx, actor.OrgID, outlet.ID)
		if err != nil {
			return err
		}
		if active {
			return store.Conflict("outlet", outlet.ID, string(domain.OpnameCounting), "start opname")
		}

		levels, err := tx.ListOutletStock(ctx, actor.OrgID, outlet.ID)
		if err != nil {
			return err
		}
		now := s.now()
		opname := domain.StockOpname{
			ID:        xid.New("opn"),
			OrgID:     actor.OrgID,
			Status:    domain.OpnameCounting,
			OutletID:  outlet.ID,
			Notes:     strings.TrimSpace(req.Notes),
			CreatedAt: now,
			CreatedBy: actor.Username,
			Items:     make([]domain.OpnameItem, 0, len(levels)),
		}
		for _, level := range levels {
			opname.Items = append(opname.Items, domain.OpnameItem{
				ID:             xid.New("opi"),
				VariantID:      level.VariantID,
				SystemQuantity: level.QuantityOnHand,
			})
		}
		seq, err := tx.NextDocumentNumber(ctx, actor.OrgID, opnameNumberPrefix, now)
		if err != nil {
			return err
		}
		opname.OpnameNumber = xid.DocumentNumber(opnameNumberPrefix, now, seq)
		if err := tx.CreateOpname(ctx, opname); err != nil {
			return err
		}
		result = opname
		return nil
	})
	if err != nil {
		return domain.StockOpname{}, s.observe(err)
	}

	s.logAudit(ctx, actor, "opname_start", "opname", result.ID, fmt.Sprintf("number=%s,outlet=%s,items=%d", result.OpnameNumber, result.OutletID, len(result.Items)))
	return result, nil
}

// AddOpnameItem brings a variant into the count that had no stock row when
// the opname started. Its system quantity is read at the time it is added.
func (s *Service) AddOpnameItem(ctx context.Context, opnameID string, req domain.OpnameAddItemRequest) (domain.StockOpname, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockOpname{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.StockOpname{}, s.observe(err)
	}
	variant, err := s.catalog.Variant(ctx, actor.OrgID, req.VariantID)
	if err != nil {
		return domain.StockOpname{}, s.observe(err)
	}

	var result domain.StockOpname
	err = s.withCountingOpname(ctx, actor, opnameID, domain.OpnameActionCount, func(ctx context.Context, tx store.Tx, opname *domain.StockOpname) error {
		for _, item := range opname.Items {
			if item.VariantID == variant.ID {
				return store.Invalid("variant_id", "already part of this opname")
			}
		}
		key := store.StockKey{OutletID: opname.OutletID, VariantID: variant.ID}
		levels, err := tx.LockStockLevels(ctx, actor.OrgID, []store.StockKey{key})
		if err != nil {
			return err
		}
		item := domain.OpnameItem{ID: xid.New("opi"), VariantID: variant.ID, SystemQuantity: levels[key]}
		if err := tx.AddOpnameItem(ctx, actor.OrgID, opname.ID, item); err != nil {
			return err
		}
		opname.Items = append(opname.Items, item)
		result = *opname
		return nil
	})
	if err != nil {
		return domain.StockOpname{}, s.observe(err)
	}

	s.logAudit(ctx, actor, "opname_add_item", "opname", result.ID, "variant="+variant.ID)
	return result, nil
}

// SubmitCount records the physical count of one line. Counting again
// overwrites the previous value.
func (s *Service) SubmitCount(ctx context.Context, opnameID string, itemID string, req domain.OpnameCountRequest) (domain.StockOpname, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockOpname{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.StockOpname{}, s.observe(err)
	}
	itemID = strings.TrimSpace(itemID)
	counted := *req.CountedQuantity

	var result domain.StockOpname
	err = s.withCountingOpname(ctx, actor, opnameID, domain.OpnameActionCount, func(ctx context.Context, tx store.Tx, opname *domain.StockOpname) error {
		for i := range opname.Items {
			if opname.Items[i].ID != itemID {
				continue
			}
			now := s.now()
			value := counted
			opname.Items[i].CountedQuantity = &value
			opname.Items[i].CountedBy = actor.Username
			opname.Items[i].CountedAt = &now
			if err := tx.UpdateOpnameCount(ctx, actor.OrgID, opname.ID, opname.Items[i]); err != nil {
				return err
			}
			result = *opname
			return nil
		}
		return store.NotFound("opname item", itemID)
	})
	if err != nil {
		return domain.StockOpname{}, s.observe(err)
	}
	return result, nil
}

// FinalizeOpname closes the count and posts one opname_adjustment for every
// line whose counted quantity differs from the snapshot. Lines that were
// never counted keep their book quantity.
func (s *Service) FinalizeOpname(ctx context.Context, opnameID string) (domain.OpnameFinalizeResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.OpnameFinalizeResponse{}, err
	}

	var resp domain.OpnameFinalizeResponse
	err = s.withCountingOpname(ctx, actor, opnameID, domain.OpnameActionFinalize, func(ctx context.Context, tx store.Tx, opname *domain.StockOpname) error {
		now := s.now()
		reqs := make([]ledger.MovementRequest, 0, len(opname.Items))
		for _, item := range opname.Items {
			if delta := item.Delta(); delta != 0 {
				reqs = append(reqs, ledger.OpnameAdjustment(opname.OutletID, item.VariantID, delta, opname.ID))
			}
		}
		entries := []domain.LedgerEntry{}
		if len(reqs) > 0 {
			posted, err := s.ledger.Post(ctx, tx, s.posting(actor, now), reqs)
			if err != nil {
				return err
			}
			entries = posted
		}

		from := opname.Status
		opname.Status = domain.OpnameCompleted
		opname.CompletedAt = &now
		opname.CompletedBy = actor.Username
		if err := tx.CompleteOpname(ctx, *opname, from); err != nil {
			return err
		}
		resp = domain.OpnameFinalizeResponse{Opname: *opname, Entries: entries}
		return nil
	})
	if err != nil {
		return domain.OpnameFinalizeResponse{}, s.observe(err)
	}

	if len(resp.Entries) > 0 {
		s.afterPosting(ctx, actor.OrgID)
	}
	s.logAudit(ctx, actor, "opname_finalize", "opname", resp.Opname.ID, fmt.Sprintf("number=%s,adjustments=%d", resp.Opname.OpnameNumber, len(resp.Entries)))
	return resp, nil
}

func (s *Service) withCountingOpname(
	ctx context.Context,
	actor domain.Actor,
	opnameID string,
	action domain.OpnameAction,
	fn func(ctx context.Context, tx store.Tx, opname *domain.StockOpname) error,
) error {
	opnameID = strings.TrimSpace(opnameID)
	if opnameID == "" {
		return store.Invalid("opname_id", "is required")
	}
	ref := docRef{entity: "opname", id: opnameID, action: string(action)}
	return s.transition(ctx, actor.OrgID, ref, func(ctx context.Context, tx store.Tx) error {
		opname, err := tx.GetOpnameForUpdate(ctx, actor.OrgID, opnameID)
		if err != nil {
			return err
		}
		if _, ok := opname.Status.Next(action); !ok {
			return store.Conflict("opname", opnameID, string(opname.Status), string(action))
		}
		return fn(ctx, tx, opname)
	})
}

func (s *Service) GetOpname(ctx context.Context, opnameID string) (domain.StockOpname, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.StockOpname{}, err
	}
	opname, err := s.repo.GetOpname(ctx, actor.OrgID, strings.TrimSpace(opnameID))
	if err != nil {
		return domain.StockOpname{}, err
	}
	return *opname, nil
}
