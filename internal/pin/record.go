// Package pin turns fetched item pages into catalog records.
package pin

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrExcluded marks a record dropped by the brand exclusion rule.
	ErrExcluded = errors.New("pin: excluded by brand rule")
	// ErrExtraction marks a page that could not be turned into a record.
	ErrExtraction = errors.New("pin: extraction failed")
)

// Record is one harvested catalog item.
type Record struct {
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	ImageURL         string   `json:"image_url"`
	Series           string   `json:"series"`
	Origin           string   `json:"origin"`
	Edition          string   `json:"edition"`
	ReleaseDate      string   `json:"release_date"`
	Tags             []string `json:"tags"`
	IsCollected      bool     `json:"is_collected"`
	IsMystery        bool     `json:"is_mystery"`
	IsLimitedEdition bool     `json:"is_limited_edition"`
	SourceURL        string   `json:"source_url"`
	Year             int      `json:"year"`
	Rarity           string   `json:"rarity"`
}

// FormatTags renders tags as a braces-delimited list, e.g. {a,b}.
func FormatTags(tags []string) string {
	return "{" + strings.Join(tags, ",") + "}"
}

// ParseTags reverses FormatTags, dropping empty entries.
func ParseTags(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ExpandURL joins base and a path template, substituting {id}.
func ExpandURL(base, template string, id int) string {
	return strings.TrimRight(base, "/") + strings.ReplaceAll(template, "{id}", strconv.Itoa(id))
}
