package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/logger"
	"kasirinaja/stockledger/internal/observability"
	"kasirinaja/stockledger/internal/service"
	"kasirinaja/stockledger/internal/store"
)

type Options struct {
	AllowedOrigin string
	Metrics       *observability.Metrics
	Logger        *logger.Logger
	// LoginAttempts per minute per client IP. Zero means 5.
	LoginAttempts int
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	metrics       *observability.Metrics
	log           *logger.Logger
	allowedOrigin string
	loginAttempts int
	router        http.Handler
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.LoginAttempts <= 0 {
		opts.LoginAttempts = 5
	}
	a := &API{
		service:       svc,
		auth:          auth,
		metrics:       opts.Metrics,
		log:           opts.Logger.Component("http"),
		allowedOrigin: opts.AllowedOrigin,
		loginAttempts: opts.LoginAttempts,
	}
	a.router = a.routes()
	return a
}

func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.metrics.Middleware)
	r.Use(a.accessLog)
	r.Use(a.securityHeaders)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(httprate.LimitByIP(a.loginAttempts, time.Minute)).Post("/auth/login", a.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			a.documentRoutes(r)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})
	return r
}

func (a *API) documentRoutes(r chi.Router) {
	r.Get("/outlets", a.handleListOutlets)
	r.Post("/outlets", a.handleCreateOutlet)
	r.Get("/outlets/{id}/stock", a.handleOutletStock)
	r.Get("/variants", a.handleListVariants)
	r.Post("/variants", a.handleCreateVariant)
	r.Get("/variants/{id}/movements", a.handleMovementHistory)
	r.Get("/suppliers", a.handleListSuppliers)
	r.Post("/suppliers", a.handleCreateSupplier)

	r.Get("/transfers", a.handleListTransfers)
	r.Post("/transfers", a.handleCreateTransfer)
	r.Get("/transfers/{id}", a.handleGetTransfer)
	r.Post("/transfers/{id}/send", a.handleTransferAction(a.service.SendTransfer))
	r.Post("/transfers/{id}/receive", a.handleTransferAction(a.service.ReceiveTransfer))
	r.Post("/transfers/{id}/cancel", a.handleTransferAction(a.service.CancelTransfer))

	r.Get("/purchase-orders", a.handleListPurchaseOrders)
	r.Post("/purchase-orders", a.handleCreatePurchaseOrder)
	r.Get("/purchase-orders/{id}", a.handleGetPurchaseOrder)
	r.Post("/purchase-orders/{id}/order", a.handlePurchaseOrderAction(a.service.MarkPurchaseOrderOrdered))
	r.Post("/purchase-orders/{id}/cancel", a.handlePurchaseOrderAction(a.service.CancelPurchaseOrder))
	r.Post("/purchase-orders/{id}/receive", a.handleReceivePurchaseOrder)

	r.Post("/write-offs", a.handleCreateAdjustment(a.service.CreateWriteOff))
	r.Post("/other-receivings", a.handleCreateAdjustment(a.service.CreateOtherReceiving))
	r.Get("/stock-adjustments/{id}", a.handleGetStockAdjustment)

	r.Post("/opnames", a.handleStartOpname)
	r.Get("/opnames/{id}", a.handleGetOpname)
	r.Post("/opnames/{id}/items", a.handleAddOpnameItem)
	r.Put("/opnames/{id}/items/{itemID}", a.handleSubmitCount)
	r.Post("/opnames/{id}/finalize", a.handleFinalizeOpname)

	r.Get("/stock-levels", a.handleStockLevel)
	r.Get("/reports/stock", a.handleStockReport)
	r.Get("/audit-logs", a.handleAuditLogs)

	r.Group(func(r chi.Router) {
		r.Use(requireRole(domain.RoleAdmin))
		r.Get("/users/staff", a.handleListStaff)
		r.Post("/users/staff", a.handleCreateStaff)
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, _ := service.ActorFromContext(r.Context())
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		})
	}
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(startedAt)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail maps a service error onto its HTTP status. Unknown errors are logged
// and masked.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrRetryable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	body := map[string]any{"error": msg}
	var invalid *store.ValidationError
	if errors.As(err, &invalid) && invalid.Field != "" {
		body["field"] = invalid.Field
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
