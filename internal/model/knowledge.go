package model

import (
	"time"
)

// FAQ is a question/answer pair in a user's knowledge base.
type FAQ struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadedFile records a file ingested into a user's knowledge base.
type UploadedFile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Chunks      int       `json:"chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

// CrawledURL records a web page ingested into a user's knowledge base.
type CrawledURL struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateFAQRequest is the request to add an FAQ entry.
type CreateFAQRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// CrawlRequest is the request to crawl one URL.
type CrawlRequest struct {
	URL string `json:"url"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	Conversations int64 `json:"conversations"`
	Messages      int64 `json:"messages"`
	FAQs          int64 `json:"faqs"`
	Files         int64 `json:"files"`
	URLs          int64 `json:"urls"`
}
