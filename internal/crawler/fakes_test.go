package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/pinharvest/internal/pin"
)

type scriptedFetcher struct {
	mu        sync.Mutex
	responses []FetchResponse
	errs      []error
	calls     []FetchRequest
	times     []time.Time
	ends      []time.Time
	latency   time.Duration
}

func (f *scriptedFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, req)
	f.times = append(f.times, time.Now())
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	defer func() { f.ends = append(f.ends, time.Now()) }()
	if i < len(f.errs) && f.errs[i] != nil {
		return FetchResponse{}, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	if len(f.responses) > 0 {
		return f.responses[len(f.responses)-1], nil
	}
	return FetchResponse{}, errors.New("no scripted response")
}

type recordingPauser struct {
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) {
	p.delays = append(p.delays, d)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stubBuilder struct {
	err   error
	calls []string
}

func (b *stubBuilder) Build(_ context.Context, id int, pageURL string, body []byte) (pin.Record, error) {
	b.calls = append(b.calls, pageURL)
	if b.err != nil {
		return pin.Record{}, b.err
	}
	return pin.Record{ID: id, Name: string(body), SourceURL: pageURL}, nil
}
