package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type busMetrics struct {
	eventsTotal *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
}

func newBusMetrics(promRegistry prometheus.Registerer) *busMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &busMetrics{
		eventsTotal: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "dropop_events_published_total",
			Help: "total number of ledger events published",
		}, []string{"type"}),
		dropped: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "dropop_events_dropped_total",
			Help: "events not delivered because a subscriber queue was full",
		}, []string{"type"}),
		subscribers: promautoFactory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dropop_event_subscribers",
			Help: "current number of event subscribers",
		}, []string{"type"}),
	}
}
