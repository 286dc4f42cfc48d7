package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pinharvest/internal/dataset"
	"github.com/JakeFAU/pinharvest/internal/pin"
	"github.com/JakeFAU/pinharvest/internal/store"
)

type scriptedScraper struct {
	outcomes map[int]error
	calls    []int
	onScrape func(id int)
}

func (s *scriptedScraper) Scrape(_ context.Context, id int) (pin.Record, error) {
	s.calls = append(s.calls, id)
	if s.onScrape != nil {
		s.onScrape(id)
	}
	if err, ok := s.outcomes[id]; ok && err != nil {
		return pin.Record{}, err
	}
	if _, ok := s.outcomes[id]; !ok {
		return pin.Record{}, fmt.Errorf("%w: pin %d", ErrNotFound, id)
	}
	return pin.Record{ID: id, Name: fmt.Sprintf("Pin %d", id), Tags: []string{"t"}}, nil
}

type failingSink struct{ err error }

func (s failingSink) Append([]pin.Record) error { return s.err }

type harness struct {
	fs      afero.Fs
	store   *store.FileStore
	dataset *dataset.Dataset
	errLog  *dataset.ErrorLog
}

func newHarness(t *testing.T, floor int, existing ...string) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	return &harness{
		fs:      fs,
		store:   store.NewFileStore(fs, "last_processed_id.txt", floor, existing, nil),
		dataset: dataset.New(fs, "pins.csv"),
		errLog:  dataset.NewErrorLog(fs, "scraping_errors.log"),
	}
}

func (h *harness) ids(t *testing.T) []string {
	t.Helper()
	ids, err := h.dataset.IDs()
	require.NoError(t, err)
	return ids
}

func failure(id int) error {
	return &FetchFailure{ID: id, Attempts: 3, Err: errors.New("connection reset"), At: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestEngineRunsToTarget(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10)
	scraper := &scriptedScraper{outcomes: map[int]error{
		10: nil,
		8:  fmt.Errorf("%w: brand", pin.ErrExcluded),
		7:  nil,
		6:  failure(6),
		5:  nil,
	}}
	e := NewEngine(EngineConfig{Target: 3, BatchSize: 2, MinID: 1}, scraper, h.store, h.dataset, h.errLog, nil)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopTargetReached, stats.StopReason)
	assert.Equal(t, 3, stats.Accepted)
	assert.Equal(t, 1, stats.NotFound)
	assert.Equal(t, 1, stats.Excluded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 4, stats.Batches)
	assert.Equal(t, 3, stats.Collected)
	assert.Equal(t, 5, stats.LastAccepted)
	assert.Equal(t, []int{10, 9, 8, 7, 6, 5}, scraper.calls)

	assert.Equal(t, []string{"10", "7", "5"}, h.ids(t))
	assert.Equal(t, 5, h.store.LoadCheckpoint())

	logData, err := afero.ReadFile(h.fs, "scraping_errors.log")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01 00:00:00.000000: Pin 6 - connection reset\n", string(logData))
}

func TestEngineSkipsCollectedIdentifiers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10, "10", "9")
	scraper := &scriptedScraper{outcomes: map[int]error{8: nil}}
	e := NewEngine(EngineConfig{Target: 3, BatchSize: 5, MinID: 1}, scraper, h.store, h.dataset, h.errLog, nil)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, []int{8}, scraper.calls)
	assert.Equal(t, []string{"8"}, h.ids(t))
}

func TestEngineResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100)
	require.NoError(t, h.store.RecordAccepted(50))
	scraper := &scriptedScraper{outcomes: map[int]error{49: nil}}
	e := NewEngine(EngineConfig{Target: 2, BatchSize: 3, MinID: 1}, scraper, h.store, h.dataset, h.errLog, nil)

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{49}, scraper.calls, "50 is already collected")
	assert.Equal(t, 49, h.store.LoadCheckpoint())
}

func TestEngineCheckpointOnlyAdvancesOnAccept(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5)
	scraper := &scriptedScraper{outcomes: map[int]error{4: fmt.Errorf("%w: brand", pin.ErrExcluded), 3: errors.New("boom")}}
	e := NewEngine(EngineConfig{Target: 10, BatchSize: 10, MinID: 3}, scraper, h.store, h.dataset, h.errLog, nil)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopExhausted, stats.StopReason)
	assert.Equal(t, 1, stats.Anomalies)
	assert.Equal(t, []int{5, 4, 3}, scraper.calls)

	exists, err := afero.Exists(h.fs, "last_processed_id.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, h.ids(t))
}

func TestEngineStopsAfterConsecutiveMisses(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100)
	scraper := &scriptedScraper{outcomes: map[int]error{99: failure(99), 96: nil}}
	cfg := EngineConfig{Target: 50, BatchSize: 10, MinID: 1, MaxConsecutiveMisses: 3}
	e := NewEngine(cfg, scraper, h.store, h.dataset, h.errLog, nil)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopMissLimit, stats.StopReason)
	// 100 miss, 99 miss, 98 miss -> stop.
	assert.Equal(t, []int{100, 99, 98}, scraper.calls)
	assert.Equal(t, 2, stats.NotFound)
	assert.Equal(t, 1, stats.Failed)
}

func TestEngineMissCounterResetsOnAccept(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 6)
	scraper := &scriptedScraper{outcomes: map[int]error{4: nil}}
	cfg := EngineConfig{Target: 50, BatchSize: 2, MinID: 1, MaxConsecutiveMisses: 2}
	e := NewEngine(cfg, scraper, h.store, h.dataset, h.errLog, nil)

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopMissLimit, stats.StopReason)
	assert.Equal(t, []int{6, 5}, scraper.calls)

	h2 := newHarness(t, 6)
	scraper2 := &scriptedScraper{outcomes: map[int]error{5: nil}}
	e2 := NewEngine(cfg, scraper2, h2.store, h2.dataset, h2.errLog, nil)
	stats, err = e2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{6, 5, 4, 3}, scraper2.calls)
	assert.Equal(t, StopMissLimit, stats.StopReason)
}

func TestEngineFlushesOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scraper := &scriptedScraper{
		outcomes: map[int]error{10: nil, 9: nil, 8: nil},
		onScrape: func(id int) {
			if id == 9 {
				cancel()
			}
		},
	}
	e := NewEngine(EngineConfig{Target: 100, BatchSize: 5, MinID: 1}, scraper, h.store, h.dataset, h.errLog, nil)

	stats, err := e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCanceled, stats.StopReason)
	assert.Equal(t, []int{10, 9}, scraper.calls)
	assert.Equal(t, []string{"10", "9"}, h.ids(t))
}

func TestEngineDatasetFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10)
	scraper := &scriptedScraper{outcomes: map[int]error{10: nil}}
	sinkErr := errors.New("disk full")
	e := NewEngine(EngineConfig{Target: 5, BatchSize: 2, MinID: 1}, scraper, h.store, failingSink{err: sinkErr}, h.errLog, nil)

	stats, err := e.Run(context.Background())
	require.ErrorIs(t, err, sinkErr)
	assert.Equal(t, StopFatal, stats.StopReason)
	assert.Equal(t, []int{10, 9}, scraper.calls)
}

func TestEngineCheckpointFailureIsFatal(t *testing.T) {
	t.Parallel()

	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	st := store.NewFileStore(fs, "cp.txt", 10, nil, nil)
	scraper := &scriptedScraper{outcomes: map[int]error{10: nil}}
	e := NewEngine(EngineConfig{Target: 5, BatchSize: 2, MinID: 1}, scraper, st, dataset.New(afero.NewMemMapFs(), "pins.csv"), dataset.NewErrorLog(afero.NewMemMapFs(), "e.log"), nil)

	stats, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StopFatal, stats.StopReason)
	assert.Equal(t, []int{10}, scraper.calls)
}

func TestEngineWindowSize(t *testing.T) {
	t.Parallel()

	e := NewEngine(EngineConfig{Target: 100, BatchSize: 10, MinID: 5}, nil, nil, nil, nil, nil)
	assert.Equal(t, 10, e.windowSize(50, 0))
	assert.Equal(t, 3, e.windowSize(50, 97))
	assert.Equal(t, 2, e.windowSize(6, 0))
}
