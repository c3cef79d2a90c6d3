package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusCountersExposed(t *testing.T) {
	p := NewPrometheus()
	p.Metrics.PositionsOpened.Inc()
	p.Metrics.OrdersPlaced.Inc()
	p.Metrics.OrdersPlaced.Inc()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "octo_arb_bot_positions_opened_total 1") {
		t.Fatalf("positions counter missing from output:\n%s", body)
	}
	if !strings.Contains(body, "octo_arb_bot_orders_placed_total 2") {
		t.Fatalf("orders counter missing from output:\n%s", body)
	}
}
