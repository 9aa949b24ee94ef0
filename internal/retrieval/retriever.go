package retrieval

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/vectorstore"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
	"github.com/ragdesk/kb-chatbot/pkg/metrics"
	"github.com/ragdesk/kb-chatbot/pkg/tracing"
)

// Result is the retrieval outcome for one chat turn.
type Result struct {
	Docs    []model.Document
	Context string
	// Degraded is set when the vectorstore could not be queried.
	Degraded bool
}

// Sources lists the distinct source files behind the selected documents.
func (r Result) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.Docs {
		src := d.Metadata.SourceFile
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}

// Retriever runs the single best-effort retrieval attempt of a chat turn.
type Retriever struct {
	store  vectorstore.Store
	logger *logger.Logger
	tracer trace.Tracer
}

// NewRetriever creates a retriever over store. A nil store means every
// retrieval degrades to no context.
func NewRetriever(store vectorstore.Store, log *logger.Logger) *Retriever {
	return &Retriever{
		store:  store,
		logger: log,
		tracer: tracing.Tracer("kb-chatbot/retrieval"),
	}
}

// Retrieve fetches CandidateCount documents for userID, prioritizes them and
// joins the survivors. Errors are logged and treated as zero matches; nothing
// is retried.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string) Result {
	ctx, span := r.tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if r.store == nil {
		span.SetStatus(codes.Error, "vectorstore unavailable")
		r.logger.Warn("vectorstore unavailable, answering without context", zap.String("user_id", userID))
		return Result{Degraded: true}
	}

	start := time.Now()
	candidates, err := r.store.SimilaritySearch(ctx, userID, query, CandidateCount)
	if err != nil {
		metrics.RecordRetrieval("error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "similarity search failed")
		r.logger.Warn("retrieval failed, answering without context",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return Result{Degraded: true}
	}
	metrics.RecordRetrieval("ok", time.Since(start).Seconds())

	sel := Prioritize(candidates)
	if sel.ForcedFileUpload {
		metrics.FileUploadForced.Inc()
	}
	for _, d := range sel.Docs {
		metrics.RetrievedDocuments.WithLabelValues(string(Bucket(d.Metadata.SourceType))).Inc()
	}

	span.SetAttributes(
		attribute.Int("retrieval.candidates", len(candidates)),
		attribute.Int("retrieval.selected", len(sel.Docs)),
		attribute.Bool("retrieval.forced_file_upload", sel.ForcedFileUpload),
	)
	r.logger.Debug("retrieval complete",
		zap.String("user_id", userID),
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(sel.Docs)),
	)

	return Result{
		Docs:    sel.Docs,
		Context: JoinContext(sel.Docs),
	}
}
