// Package dataset reads and appends the harvested CSV file.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spf13/afero"

	"github.com/JakeFAU/pinharvest/internal/pin"
)

// row is the on-disk shape of a record. Booleans are written as True/False.
type row struct {
	PinID            string `csv:"PinID"`
	Name             string `csv:"pin_name"`
	ImageURL         string `csv:"image_url"`
	Series           string `csv:"series"`
	Origin           string `csv:"origin"`
	Edition          string `csv:"edition"`
	ReleaseDate      string `csv:"release_date"`
	Tags             string `csv:"tags"`
	IsCollected      string `csv:"is_collected"`
	IsMystery        string `csv:"is_mystery"`
	IsLimitedEdition string `csv:"is_limited_edition"`
	PinpopURL        string `csv:"pinpop_url"`
	Year             string `csv:"year"`
	Rarity           string `csv:"rarity"`
}

// Dataset is an append-only CSV of records.
type Dataset struct {
	fs   afero.Fs
	path string
}

// New returns a Dataset stored at path on fs.
func New(fs afero.Fs, path string) *Dataset {
	return &Dataset{fs: fs, path: path}
}

// Path is the dataset location.
func (d *Dataset) Path() string {
	return d.path
}

func (d *Dataset) readRows() ([]row, error) {
	data, err := afero.ReadFile(d.fs, d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var rows []row
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return rows, nil
}

// IDs returns the non-empty PinID column. A missing file yields nil.
func (d *Dataset) IDs() ([]string, error) {
	rows, err := d.readRows()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if id := strings.TrimSpace(r.PinID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ReadAll decodes every row into a Record. Rows without a numeric PinID are
// reported through skipped rather than failing the read.
func (d *Dataset) ReadAll() (records []pin.Record, skipped int, err error) {
	rows, err := d.readRows()
	if err != nil {
		return nil, 0, err
	}
	for _, r := range rows {
		rec, ok := r.record()
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

// Append writes records to the end of the file, emitting the header only
// when the file is new or empty.
func (d *Dataset) Append(records []pin.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, fromRecord(rec))
	}

	needHeader := true
	if info, err := d.fs.Stat(d.path); err == nil && info.Size() > 0 {
		needHeader = false
	}

	var buf bytes.Buffer
	if needHeader {
		if err := gocsv.Marshal(rows, &buf); err != nil {
			return fmt.Errorf("encode dataset rows: %w", err)
		}
	} else if err := gocsv.MarshalWithoutHeaders(rows, &buf); err != nil {
		return fmt.Errorf("encode dataset rows: %w", err)
	}

	if dir := filepath.Dir(d.path); dir != "." && dir != "" {
		if err := d.fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create dataset dir: %w", err)
		}
	}
	f, err := d.fs.OpenFile(d.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}
	return nil
}

func fromRecord(rec pin.Record) row {
	return row{
		PinID:            strconv.Itoa(rec.ID),
		Name:             rec.Name,
		ImageURL:         rec.ImageURL,
		Series:           rec.Series,
		Origin:           rec.Origin,
		Edition:          rec.Edition,
		ReleaseDate:      rec.ReleaseDate,
		Tags:             pin.FormatTags(rec.Tags),
		IsCollected:      formatBool(rec.IsCollected),
		IsMystery:        formatBool(rec.IsMystery),
		IsLimitedEdition: formatBool(rec.IsLimitedEdition),
		PinpopURL:        rec.SourceURL,
		Year:             strconv.Itoa(rec.Year),
		Rarity:           rec.Rarity,
	}
}

func (r row) record() (pin.Record, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(r.PinID))
	if err != nil {
		return pin.Record{}, false
	}
	year, _ := strconv.Atoi(strings.TrimSpace(r.Year))
	return pin.Record{
		ID:               id,
		Name:             strings.TrimSpace(r.Name),
		ImageURL:         strings.TrimSpace(r.ImageURL),
		Series:           strings.TrimSpace(r.Series),
		Origin:           strings.TrimSpace(r.Origin),
		Edition:          strings.TrimSpace(r.Edition),
		ReleaseDate:      strings.TrimSpace(r.ReleaseDate),
		Tags:             pin.ParseTags(r.Tags),
		IsCollected:      parseBool(r.IsCollected),
		IsMystery:        parseBool(r.IsMystery),
		IsLimitedEdition: parseBool(r.IsLimitedEdition),
		SourceURL:        strings.TrimSpace(r.PinpopURL),
		Year:             year,
		Rarity:           strings.TrimSpace(r.Rarity),
	}, true
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
