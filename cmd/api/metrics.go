package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/event"
)

// Domain metrics for the evaluation engine, fed from the event stream.

var (
	domainEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teb",
			Subsystem: "engine",
			Name:      "domain_events_total",
			Help:      "Total number of domain events by type",
		},
		[]string{"type"},
	)

	approvalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teb",
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Total number of approval level decisions",
		},
		[]string{"decision"},
	)

	bidsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teb",
			Subsystem: "bid",
			Name:      "submitted_total",
			Help:      "Total number of bids submitted",
		},
		[]string{"late"},
	)
)

// metricsPublisher counts domain events before forwarding them.
type metricsPublisher struct {
	next event.Publisher
}

func newMetricsPublisher(next event.Publisher) event.Publisher {
	if next == nil {
		next = event.NopPublisher{}
	}
	return &metricsPublisher{next: next}
}

func (p *metricsPublisher) Publish(evt event.Event) {
	domainEventsTotal.WithLabelValues(string(evt.Type)).Inc()

	switch evt.Type {
	case event.TypeBidSubmitted:
		late, _ := evt.Payload["late"].(bool)
		bidsSubmittedTotal.WithLabelValues(strconv.FormatBool(late)).Inc()
	case event.TypeApprovalLevelDecided:
		if decision, ok := evt.Payload["decision"].(string); ok {
			approvalDecisionsTotal.WithLabelValues(decision).Inc()
		}
	}

	p.next.Publish(evt)
}

// startMetricsServer exposes /metrics on its own port.
func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go srv.ListenAndServe()
	return srv
}
