package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/v1/transfers/{id}/send")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/trf_1/send", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `stockledger_http_requests_total{code="409",route="/api/v1/transfers/{id}/send"} 1`) {
		t.Fatalf("expected request counter, got: %s", body)
	}
}

func TestRecordMovementCountsAbsoluteUnits(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordMovement("write_off", -5)
	metrics.RecordMovement("write_off", -2)
	metrics.RecordRejection("insufficient_stock")
	metrics.RecordTxRetry()

	body := scrape(t, metrics)
	for _, want := range []string{
		`stockledger_movements_total{movement_type="write_off"} 2`,
		`stockledger_movement_units_total{movement_type="write_off"} 7`,
		`stockledger_rejections_total{reason="insufficient_stock"} 1`,
		`stockledger_tx_retries_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output, got: %s", want, body)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordMovement("transfer_in", 3)
	metrics.RecordRejection("state_conflict")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics handler, got %d", rr.Code)
	}
}
