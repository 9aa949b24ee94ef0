package model

// SourceType tags where a knowledge chunk came from.
type SourceType string

const (
	SourceFAQ        SourceType = "faq"
	SourceCrawl      SourceType = "crawl"
	SourceFileUpload SourceType = "file_upload"
	SourceOther      SourceType = "other"
)

// DocumentMetadata is the metadata stored next to every vectorstore chunk.
type DocumentMetadata struct {
	SourceType SourceType `json:"source_type"`
	SourceFile string     `json:"source_file,omitempty"`
	SourceID   string     `json:"source_id,omitempty"`
	Category   string     `json:"category,omitempty"`
	UserID     string     `json:"user_id"`
	ChunkIndex int        `json:"chunk_index"`
}

// Document is a retrieved or to-be-indexed text chunk. Never cached.
type Document struct {
	ID          string           `json:"id,omitempty"`
	PageContent string           `json:"page_content"`
	Metadata    DocumentMetadata `json:"metadata"`
	Score       float64          `json:"score,omitempty"`
}
