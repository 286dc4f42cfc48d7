package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/dataset"
	"github.com/JakeFAU/pinharvest/internal/metrics"
	"github.com/JakeFAU/pinharvest/internal/pin"
)

// EngineConfig governs the countdown.
type EngineConfig struct {
	// Target is the dedup set size at which the run stops.
	Target    int
	BatchSize int
	// MinID is the lowest identifier ever requested.
	MinID      int
	BatchDelay time.Duration
	// MaxConsecutiveMisses stops the run after that many not-found or failed
	// candidates in a row. Zero disables the check.
	MaxConsecutiveMisses int
}

// Engine walks identifiers downward from the checkpoint in batches.
type Engine struct {
	cfg     EngineConfig
	scraper CandidateScraper
	store   Store
	sink    Sink
	errLog  ErrorLog
	pauser  pauseController
	logger  *zap.Logger
}

type runState struct {
	cursor   int
	pending  []pin.Record
	failures []dataset.ErrorEntry
	misses   int
	stats    RunStats
}

type outcome string

const (
	outcomeAccepted  outcome = "accepted"
	outcomeDuplicate outcome = "duplicate"
	outcomeNotFound  outcome = "not_found"
	outcomeFailed    outcome = "failed"
	outcomeExcluded  outcome = "excluded"
	outcomeAnomaly   outcome = "anomaly"
)

// NewEngine wires an Engine.
func NewEngine(cfg EngineConfig, scraper CandidateScraper, store Store, sink Sink, errLog ErrorLog, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.MinID <= 0 {
		cfg.MinID = 1
	}
	return &Engine{
		cfg:     cfg,
		scraper: scraper,
		store:   store,
		sink:    sink,
		errLog:  errLog,
		pauser:  &timerPauseController{},
		logger:  logger,
	}
}

// Run crawls until the target is reached, the identifier space runs out, the
// miss limit trips or ctx is canceled. Pending records are flushed before it
// returns in every case. Cancellation returns ctx.Err().
func (e *Engine) Run(ctx context.Context) (RunStats, error) {
	metrics.Init()
	st := &runState{cursor: e.store.LoadCheckpoint()}
	e.logger.Info("starting crawl",
		zap.Int("start_id", st.cursor),
		zap.Int("collected", e.store.Len()),
		zap.Int("target", e.cfg.Target),
	)

	for first := true; ; first = false {
		collected := e.store.Len()
		metrics.SetCollected(collected)
		if collected >= e.cfg.Target {
			return e.finish(st, StopTargetReached), nil
		}
		if st.cursor < e.cfg.MinID {
			return e.finish(st, StopExhausted), nil
		}
		if !first {
			e.pauser.Pause(ctx, e.cfg.BatchDelay)
		}
		if err := ctx.Err(); err != nil {
			return e.finish(st, StopCanceled), err
		}

		size := e.windowSize(st.cursor, collected)
		e.logger.Info("processing batch",
			zap.Int("from_id", st.cursor),
			zap.Int("size", size),
			zap.Int("collected", collected),
			zap.Int("target", e.cfg.Target),
		)

		missLimit, batchErr := e.processBatch(ctx, st, size)
		st.stats.Batches++
		if err := e.flush(st); err != nil {
			return e.finish(st, StopFatal), errors.Join(batchErr, err)
		}
		if batchErr != nil {
			return e.finish(st, StopFatal), batchErr
		}
		st.cursor -= size

		e.logger.Info("completed batch",
			zap.Int("collected", e.store.Len()),
			zap.Int("target", e.cfg.Target),
			zap.Int("next_id", st.cursor),
		)
		if err := ctx.Err(); err != nil {
			return e.finish(st, StopCanceled), err
		}
		if missLimit {
			return e.finish(st, StopMissLimit), nil
		}
	}
}

func (e *Engine) windowSize(cursor, collected int) int {
	size := e.cfg.BatchSize
	if remaining := e.cfg.Target - collected; remaining < size {
		size = remaining
	}
	if span := cursor - e.cfg.MinID + 1; span < size {
		size = span
	}
	return size
}

// processBatch reports whether the miss limit tripped. A returned error is
// fatal.
func (e *Engine) processBatch(ctx context.Context, st *runState, size int) (bool, error) {
	for id := st.cursor; id > st.cursor-size; id-- {
		if ctx.Err() != nil {
			return false, nil
		}
		if e.store.Has(id) {
			e.record(st, outcomeDuplicate)
			e.logger.Debug("skipping duplicate pin", zap.Int("pin_id", id))
			continue
		}

		rec, err := e.scraper.Scrape(ctx, id)
		if err != nil && ctx.Err() != nil {
			return false, nil
		}

		var failure *FetchFailure
		switch {
		case err == nil:
			if err := e.store.RecordAccepted(id); err != nil {
				return false, fmt.Errorf("record checkpoint for pin %d: %w", id, err)
			}
			st.pending = append(st.pending, rec)
			st.stats.LastAccepted = id
			e.record(st, outcomeAccepted)
			e.logger.Info("collected pin", zap.Int("pin_id", id), zap.String("name", rec.Name))
		case errors.Is(err, ErrNotFound):
			e.record(st, outcomeNotFound)
			e.logger.Info("pin not found", zap.Int("pin_id", id), zap.Error(err))
		case errors.As(err, &failure):
			st.failures = append(st.failures, dataset.ErrorEntry{Time: failure.At, ID: id, Message: failure.Err.Error()})
			e.record(st, outcomeFailed)
			e.logger.Warn("pin fetch failed", zap.Int("pin_id", id), zap.Int("attempts", failure.Attempts), zap.Error(failure.Err))
		case errors.Is(err, pin.ErrExcluded):
			e.record(st, outcomeExcluded)
		default:
			e.record(st, outcomeAnomaly)
			e.logger.Warn("skipping pin after extraction error", zap.Int("pin_id", id), zap.Error(err))
		}

		if e.cfg.MaxConsecutiveMisses > 0 && st.misses >= e.cfg.MaxConsecutiveMisses {
			e.logger.Info("consecutive miss limit reached",
				zap.Int("pin_id", id),
				zap.Int("misses", st.misses),
			)
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) record(st *runState, o outcome) {
	metrics.ObserveCandidate(string(o))
	switch o {
	case outcomeAccepted:
		st.stats.Accepted++
		st.misses = 0
	case outcomeDuplicate:
		st.stats.Duplicates++
	case outcomeNotFound:
		st.stats.NotFound++
		st.misses++
	case outcomeFailed:
		st.stats.Failed++
		st.misses++
	case outcomeExcluded:
		st.stats.Excluded++
		st.misses = 0
	case outcomeAnomaly:
		st.stats.Anomalies++
		st.misses = 0
	}
}

func (e *Engine) flush(st *runState) error {
	if len(st.failures) > 0 {
		if err := e.errLog.Append(st.failures); err != nil {
			e.logger.Warn("failed to write error log", zap.Int("entries", len(st.failures)), zap.Error(err))
		}
		st.failures = nil
	}
	n := len(st.pending)
	if n > 0 {
		if err := e.sink.Append(st.pending); err != nil {
			return fmt.Errorf("append %d records to dataset: %w", n, err)
		}
		st.pending = nil
	}
	metrics.ObserveFlush(n)
	return nil
}

func (e *Engine) finish(st *runState, reason StopReason) RunStats {
	st.stats.StopReason = reason
	st.stats.Collected = e.store.Len()
	metrics.SetCollected(st.stats.Collected)
	e.logger.Info("crawl finished",
		zap.String("reason", string(reason)),
		zap.Int("collected", st.stats.Collected),
		zap.Int("accepted", st.stats.Accepted),
		zap.Int("duplicates", st.stats.Duplicates),
		zap.Int("not_found", st.stats.NotFound),
		zap.Int("excluded", st.stats.Excluded),
		zap.Int("anomalies", st.stats.Anomalies),
		zap.Int("failed", st.stats.Failed),
		zap.Int("batches", st.stats.Batches),
	)
	return st.stats
}
