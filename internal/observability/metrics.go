// Package observability wires tracing and the Prometheus collectors of the
// background pipeline.
//
// Labels are closed sets (unit kind, unit status, job kind, outcome) so
// cardinality stays bounded. All collectors are registered with the default
// registry and exposed on /metrics next to the HTTP metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// IngestUnits counts units reaching a terminal status, by kind and status.
	IngestUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_units_total",
			Help: "Ingestion units finished, by unit kind and terminal status.",
		},
		[]string{"kind", "status"},
	)

	// IngestChunks counts chunks persisted with an embedding.
	IngestChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_chunks_total",
			Help: "Chunks embedded and stored, by unit kind.",
		},
		[]string{"kind"},
	)

	// EmbeddingRequests counts embedding calls by outcome (ok, error).
	EmbeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_requests_total",
			Help: "Embedding provider calls, by outcome.",
		},
		[]string{"outcome"},
	)

	// RetrievalContextChunks observes how many chunks made it into a context.
	RetrievalContextChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retrieval_context_chunks",
			Help:    "Number of chunks included in a retrieved context.",
			Buckets: []float64{0, 1, 2, 5, 10, 15, 20},
		},
	)

	// ChatTurns counts finished assistant turns by final stream status.
	ChatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Assistant turns finalized, by stream status.",
		},
		[]string{"status"},
	)

	// QueueJobs counts executed jobs by kind and outcome (ok, error, panic).
	QueueJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_total",
			Help: "Background jobs executed, by job kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(IngestUnits, IngestChunks, EmbeddingRequests, RetrievalContextChunks, ChatTurns, QueueJobs)
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
