package pin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/extract"
)

// Dumper stores raw pages for later inspection.
type Dumper interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Config carries the record-level business rules.
type Config struct {
	BaseURL          string
	CanonicalPath    string
	PlaceholderImage string
	// DefaultYear is used when no release date parses; 0 means the current year.
	DefaultYear              int
	ExcludedBrands           []string
	ExclusionCaseInsensitive bool
}

// Builder assembles Records from fetched pages.
type Builder struct {
	cfg       Config
	extractor *extract.Extractor
	dumper    Dumper
	clock     Clock
	logger    *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewBuilder wires a Builder. dumper may be nil, in which case pages without
// an image are not persisted.
func NewBuilder(cfg Config, extractor *extract.Extractor, dumper Dumper, clock Clock, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = systemClock{}
	}
	if cfg.CanonicalPath == "" {
		cfg.CanonicalPath = "/pins/{id}"
	}
	return &Builder{cfg: cfg, extractor: extractor, dumper: dumper, clock: clock, logger: logger}
}

// Build extracts a Record from body. It returns ErrExcluded for records
// dropped by the brand rule and ErrExtraction for pages it cannot parse.
func (b *Builder) Build(ctx context.Context, id int, pageURL string, body []byte) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("recovered from extraction panic",
				zap.Int("pin_id", id),
				zap.String("url", pageURL),
				zap.Any("panic", r),
			)
			rec, err = Record{}, fmt.Errorf("%w: pin %d: %v", ErrExtraction, id, r)
		}
	}()

	page, err := extract.NewPage(id, pageURL, body)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	fields := b.extractor.Extract(page)

	rec = Record{
		ID:          id,
		Name:        fields.Name,
		ImageURL:    fields.ImageURL,
		Series:      fields.Series,
		Origin:      fields.Origin,
		Edition:     fields.Edition,
		ReleaseDate: fields.ReleaseDate,
		Tags:        fields.Tags,
		SourceURL:   ExpandURL(b.cfg.BaseURL, b.cfg.CanonicalPath, id),
		Rarity:      fields.Rarity,
	}

	if brand, ok := b.excludedBrand(rec); ok {
		b.logger.Info("skipping excluded pin",
			zap.Int("pin_id", id),
			zap.String("brand", brand),
			zap.String("origin", rec.Origin),
			zap.String("series", rec.Series),
		)
		return Record{}, fmt.Errorf("%w: pin %d matches %q", ErrExcluded, id, brand)
	}

	if !fields.ImageFound {
		rec.ImageURL = strings.ReplaceAll(b.cfg.PlaceholderImage, "{id}", fmt.Sprint(id))
		b.dump(ctx, id, body)
	}

	rec.Year = b.year(rec)
	rec.IsMystery = strings.Contains(strings.ToLower(rec.Name), "mystery") ||
		strings.Contains(strings.ToLower(rec.Series), "mystery")
	rec.IsLimitedEdition = strings.Contains(rec.Edition, "Limited Edition")
	return rec, nil
}

func (b *Builder) year(rec Record) int {
	if rec.ReleaseDate != "" {
		if t, err := time.Parse(time.DateOnly, rec.ReleaseDate); err == nil {
			return t.Year()
		}
	}
	year := b.cfg.DefaultYear
	if year == 0 {
		year = b.clock.Now().Year()
	}
	b.logger.Info("release date unavailable, assuming default year",
		zap.Int("pin_id", rec.ID),
		zap.String("release_date", rec.ReleaseDate),
		zap.Int("year", year),
	)
	return year
}

func (b *Builder) excludedBrand(rec Record) (string, bool) {
	origin, series := rec.Origin, rec.Series
	if b.cfg.ExclusionCaseInsensitive {
		origin, series = strings.ToLower(origin), strings.ToLower(series)
	}
	for _, brand := range b.cfg.ExcludedBrands {
		if brand == "" {
			continue
		}
		needle := brand
		if b.cfg.ExclusionCaseInsensitive {
			needle = strings.ToLower(brand)
		}
		if strings.Contains(origin, needle) || strings.Contains(series, needle) {
			return brand, true
		}
	}
	return "", false
}

func (b *Builder) dump(ctx context.Context, id int, body []byte) {
	if b.dumper == nil {
		b.logger.Warn("image not found", zap.Int("pin_id", id))
		return
	}
	name := fmt.Sprintf("pin_%d_response.html", id)
	uri, err := b.dumper.PutObject(ctx, name, "text/html; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		b.logger.Warn("failed to dump page", zap.Int("pin_id", id), zap.Error(err))
		return
	}
	b.logger.Warn("image not found, page saved", zap.Int("pin_id", id), zap.String("uri", uri))
}
