package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus指标，promauto自动注册到默认Registry
var (
	DocumentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_documents_ingested_total",
		Help: "Total number of documents successfully ingested",
	})

	DocumentIngestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_document_ingest_failures_total",
		Help: "Total number of failed document ingestions",
	})

	ChunksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_chunks_ingested_total",
		Help: "Total number of document chunks stored",
	})

	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_search_requests_total",
		Help: "Knowledge base searches by tier",
	}, []string{"tier"}) // tier: vector, fallback, empty

	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_chat_requests_total",
		Help: "Chat completions by status",
	}, []string{"status"}) // status: success, error

	ChatDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_chat_duration_seconds",
		Help:    "Duration of chat completion round trips",
		Buckets: prometheus.DefBuckets,
	})

	EmbeddingFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_embedding_fallbacks_total",
		Help: "Times the primary embedding model failed and a fallback was used",
	})
)

// Handler 暴露/metrics端点
func Handler() http.Handler {
	return promhttp.Handler()
}
