package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/pinharvest/internal/dataset"
	"github.com/JakeFAU/pinharvest/internal/pin"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// CandidateScraper fetches and builds the record for one identifier.
type CandidateScraper interface {
	Scrape(ctx context.Context, id int) (pin.Record, error)
}

// RecordBuilder turns a fetched page into a record.
type RecordBuilder interface {
	Build(ctx context.Context, id int, pageURL string, body []byte) (pin.Record, error)
}

// Store is the dedup set and checkpoint.
type Store interface {
	Has(id int) bool
	Len() int
	RecordAccepted(id int) error
	LoadCheckpoint() int
}

// Sink receives accepted records in batches.
type Sink interface {
	Append(records []pin.Record) error
}

// ErrorLog receives exhausted fetch failures in batches.
type ErrorLog interface {
	Append(entries []dataset.ErrorEntry) error
}

// RetryPolicy decides whether and how long to wait before another attempt.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
