package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/service"
)

func (a *API) handleListOutlets(w http.ResponseWriter, r *http.Request) {
	outlets, err := a.service.ListOutlets(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outlets": outlets})
}

func (a *API) handleCreateOutlet(w http.ResponseWriter, r *http.Request) {
	var req domain.OutletCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	outlet, err := a.service.CreateOutlet(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outlet)
}

func (a *API) handleOutletStock(w http.ResponseWriter, r *http.Request) {
	levels, err := a.service.ListOutletStock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock_levels": levels})
}

func (a *API) handleListVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := a.service.ListVariants(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variants": variants})
}

func (a *API) handleCreateVariant(w http.ResponseWriter, r *http.Request) {
	var req domain.VariantCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	variant, err := a.service.CreateVariant(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, variant)
}

func (a *API) handleMovementHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := a.service.GetMovementHistory(r.Context(), domain.MovementHistoryQuery{
		VariantID: chi.URLParam(r, "id"),
		OutletID:  q.Get("outlet_id"),
		Cursor:    q.Get("cursor"),
		Limit:     parsePositiveLimit(q.Get("limit"), 0, 0),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	supplier, err := a.service.CreateSupplier(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, supplier)
}

func (a *API) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListTransfers(r.Context(), r.URL.Query().Get("status"), parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	transfer, err := a.service.CreateTransfer(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transfer)
}

func (a *API) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := a.service.GetTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

func (a *API) handleTransferAction(action func(ctx context.Context, transferID string) (domain.StockTransfer, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transfer, err := action(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, transfer)
	}
}

func (a *API) handleListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListPurchaseOrders(r.Context(), r.URL.Query().Get("status"), parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	po, err := a.service.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, po)
}

func (a *API) handleGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := a.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, po)
}

func (a *API) handlePurchaseOrderAction(action func(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		po, err := action(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, po)
	}
}

func (a *API) handleReceivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderReceiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	po, err := a.service.ReceivePO(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, po)
}

func (a *API) handleCreateAdjustment(create func(ctx context.Context, req domain.StockAdjustmentCreateRequest) (domain.StockAdjustment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.StockAdjustmentCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		adjustment, err := create(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, adjustment)
	}
}

func (a *API) handleGetStockAdjustment(w http.ResponseWriter, r *http.Request) {
	adjustment, err := a.service.GetStockAdjustment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adjustment)
}

func (a *API) handleStartOpname(w http.ResponseWriter, r *http.Request) {
	var req domain.OpnameStartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opname, err := a.service.StartOpname(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, opname)
}

func (a *API) handleGetOpname(w http.ResponseWriter, r *http.Request) {
	opname, err := a.service.GetOpname(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opname)
}

func (a *API) handleAddOpnameItem(w http.ResponseWriter, r *http.Request) {
	var req domain.OpnameAddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opname, err := a.service.AddOpnameItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opname)
}

func (a *API) handleSubmitCount(w http.ResponseWriter, r *http.Request) {
	var req domain.OpnameCountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opname, err := a.service.SubmitCount(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opname)
}

func (a *API) handleFinalizeOpname(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.FinalizeOpname(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStockLevel(w http.ResponseWriter, r *http.Request) {
	level, err := a.service.GetStockLevel(r.Context(), r.URL.Query().Get("outlet_id"), r.URL.Query().Get("variant_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (a *API) handleStockReport(w http.ResponseWriter, r *http.Request) {
	var outletIDs []string
	for _, raw := range r.URL.Query()["outlet_id"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				outletIDs = append(outletIDs, id)
			}
		}
	}
	report, err := a.service.StockReport(r.Context(), domain.StockReportQuery{OutletIDs: outletIDs})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"staff": a.auth.ListStaff(r.Context(), actor.OrgID)})
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	user, err := a.auth.CreateStaff(r.Context(), actor.OrgID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
