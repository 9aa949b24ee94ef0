// Package retrieval queries a user's vectorstore and orders the results for
// prompt context.
package retrieval

import (
	"strings"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

const (
	// CandidateCount is how many documents are fetched from the vectorstore.
	CandidateCount = 30
	// MaxContextDocs is the context budget when the candidates fit in it.
	MaxContextDocs = 8
	// TruncatedDocs is the context budget when the candidates overflow MaxContextDocs.
	TruncatedDocs = 7
)

// Bucket normalizes a source_type label, accepting legacy crawl and upload labels.
func Bucket(st model.SourceType) model.SourceType {
	switch strings.ToLower(strings.TrimSpace(string(st))) {
	case "faq", "faqs":
		return model.SourceFAQ
	case "crawl", "crawled", "web_crawl", "webcrawl", "website", "url":
		return model.SourceCrawl
	case "file_upload", "file", "upload", "uploaded_file":
		return model.SourceFileUpload
	default:
		return model.SourceOther
	}
}

// Selection is the outcome of Prioritize.
type Selection struct {
	Docs []model.Document
	// ForcedFileUpload is set when a file-upload document replaced the last slot.
	ForcedFileUpload bool
}

// Prioritize orders docs FAQ, crawl, file-upload, other (keeping retrieval rank
// inside each bucket) and cuts the list to the context budget. With more than
// MaxContextDocs candidates only TruncatedDocs are kept, and when none of them is
// a file upload the last one is replaced by the best-ranked file upload so
// uploaded knowledge is not crowded out.
func Prioritize(docs []model.Document) Selection {
	var faq, crawl, files, other []model.Document
	for _, d := range docs {
		switch Bucket(d.Metadata.SourceType) {
		case model.SourceFAQ:
			faq = append(faq, d)
		case model.SourceCrawl:
			crawl = append(crawl, d)
		case model.SourceFileUpload:
			files = append(files, d)
		default:
			other = append(other, d)
		}
	}

	ordered := make([]model.Document, 0, len(docs))
	ordered = append(ordered, faq...)
	ordered = append(ordered, crawl...)
	ordered = append(ordered, files...)
	ordered = append(ordered, other...)

	if len(ordered) > MaxContextDocs {
		top := append([]model.Document(nil), ordered[:TruncatedDocs]...)
		if len(files) > 0 && !containsFileUpload(top) {
			top[len(top)-1] = files[0]
			return Selection{Docs: top, ForcedFileUpload: true}
		}
		return Selection{Docs: top}
	}

	return Selection{Docs: ordered}
}

func containsFileUpload(docs []model.Document) bool {
	for _, d := range docs {
		if Bucket(d.Metadata.SourceType) == model.SourceFileUpload {
			return true
		}
	}
	return false
}

// JoinContext joins document texts with blank lines.
func JoinContext(docs []model.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if text := strings.TrimSpace(d.PageContent); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
