package crawler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/JakeFAU/pinharvest/internal/pin"
)

// Scraper fetches one candidate page and builds its record.
type Scraper struct {
	fetcher       *RetryingFetcher
	builder       RecordBuilder
	baseURL       string
	candidatePath string
	headers       http.Header
}

// NewScraper wires a Scraper. candidatePath must contain {id}.
func NewScraper(fetcher *RetryingFetcher, builder RecordBuilder, baseURL, candidatePath string, headers http.Header) *Scraper {
	return &Scraper{
		fetcher:       fetcher,
		builder:       builder,
		baseURL:       baseURL,
		candidatePath: candidatePath,
		headers:       headers,
	}
}

// CandidateURL is the page fetched for id.
func (s *Scraper) CandidateURL(id int) string {
	return pin.ExpandURL(s.baseURL, s.candidatePath, id)
}

// Scrape returns the record for id. Missing pages wrap ErrNotFound; the
// builder's pin.ErrExcluded and pin.ErrExtraction pass through.
func (s *Scraper) Scrape(ctx context.Context, id int) (pin.Record, error) {
	url := s.CandidateURL(id)
	resp, err := s.fetcher.Fetch(ctx, id, FetchRequest{URL: url, Headers: s.headers.Clone()})
	if err != nil {
		return pin.Record{}, err
	}
	if !resp.OK() {
		return pin.Record{}, fmt.Errorf("%w: pin %d returned status %d", ErrNotFound, id, resp.StatusCode)
	}
	return s.builder.Build(ctx, id, url, resp.Body)
}
