package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound wraps a fetch that came back with a non-200 status.
var ErrNotFound = errors.New("page not found")

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the page exists.
func (r FetchResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// FetchFailure is a candidate whose fetch attempts were exhausted.
type FetchFailure struct {
	ID       int
	URL      string
	Attempts int
	Err      error
	At       time.Time
}

func (f *FetchFailure) Error() string {
	return fmt.Sprintf("pin %d: fetch %s failed after %d attempts: %v", f.ID, f.URL, f.Attempts, f.Err)
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// StopReason explains why a run ended.
type StopReason string

// Stop reasons reported in RunStats.
const (
	StopTargetReached StopReason = "target_reached"
	StopExhausted     StopReason = "id_space_exhausted"
	StopMissLimit     StopReason = "consecutive_miss_limit"
	StopCanceled      StopReason = "canceled"
	StopFatal         StopReason = "fatal_error"
)

// RunStats summarizes one crawl.
type RunStats struct {
	Accepted     int
	Duplicates   int
	NotFound     int
	Excluded     int
	Anomalies    int
	Failed       int
	Batches      int
	Collected    int
	LastAccepted int
	StopReason   StopReason
}
