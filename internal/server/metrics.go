package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "krakbit_generations_started_total",
		Help: "Generations started, by request kind.",
	}, []string{"kind"})

	eventsStreamed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "krakbit_stream_events_total",
		Help: "Envelopes streamed to clients, by payload type.",
	}, []string{"type"})

	askRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "krakbit_ask_requests_total",
		Help: "Follow-up questions received.",
	})
)
