package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "octo_arb_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics  *Metrics
	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	m := &Metrics{
		ScansRun:           promCounter{counter("scans_run_total", "Total number of scan cycles executed.")},
		OpportunitiesFound: promCounter{counter("opportunities_found_total", "Total number of opportunity candidates produced.")},
		PositionsOpened:    promCounter{counter("positions_opened_total", "Total number of hedge positions opened.")},
		PositionsClosed:    promCounter{counter("positions_closed_total", "Total number of hedge position closes executed.")},
		OrdersPlaced:       promCounter{counter("orders_placed_total", "Total number of orders placed.")},
		OrdersFailed:       promCounter{counter("orders_failed_total", "Total number of order placement failures.")},
		TicksFailed:        promCounter{counter("ticks_failed_total", "Total number of failed engine ticks.")},
		BlacklistAdded:     promCounter{counter("blacklist_added_total", "Total number of timed blacklist entries added.")},
		OneSidedExposure:   promCounter{counter("one_sided_exposure_total", "Total number of one-sided executions left for reconciliation.")},
	}
	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
