// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RetrievalDuration tracks vectorstore query latency.
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_duration_seconds",
			Help:    "Vectorstore similarity search duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	// RetrievedDocuments tracks how many documents make it into a prompt, by source type.
	RetrievedDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_context_documents_total",
			Help: "Documents selected into prompt context",
		},
		[]string{"source_type"},
	)

	// FileUploadForced counts how often the file-upload force-include rule fired.
	FileUploadForced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retrieval_file_upload_forced_total",
			Help: "Times a file-upload document was substituted into the truncated context",
		},
	)

	// LLMDuration tracks LLM generation latency.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_generate_duration_seconds",
			Help:    "LLM generation duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// PromptTokens tracks the size of assembled prompts.
	PromptTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prompt_tokens",
			Help:    "Estimated tokens in assembled prompts",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		},
	)

	// ChatMessagesTotal tracks stored chat messages.
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total chat messages stored",
		},
		[]string{"role"},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// KnowledgeIngested tracks indexed knowledge chunks, by source type.
	KnowledgeIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_chunks_ingested_total",
			Help: "Knowledge chunks written to the vectorstore",
		},
		[]string{"source_type"},
	)

	// EventsPublishFailed tracks JetStream publish failures.
	EventsPublishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_publish_failed_total",
			Help: "Events that could not be published to NATS",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRetrieval records one vectorstore query.
func RecordRetrieval(status string, duration float64) {
	RetrievalDuration.WithLabelValues(status).Observe(duration)
}

// RecordLLM records one generation call.
func RecordLLM(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMDuration.WithLabelValues(provider, model, status).Observe(duration)
	if tokensIn > 0 {
		LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
	}
}
