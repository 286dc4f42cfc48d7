package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rules holds the site-specific tokens the extractor keys on.
type Rules struct {
	// AssetHost must appear in an img src for it to count as the item image.
	AssetHost string
	// AssetPattern is a regular expression over the raw body; {id} is
	// replaced with the quoted identifier before compiling.
	AssetPattern     string
	NameBoilerplate  []string
	OriginQualifiers []string
	TitleSuffix      string
	ThumbDir         string
	FullDir          string
	ThumbInfix       string
	ImageExt         string
}

// DefaultRules matches the pinandpop.com page layout.
func DefaultRules() Rules {
	return Rules{
		AssetHost:        "amazonaws",
		AssetPattern:     `https://pinandpop\.s3\.amazonaws\.com/images/pinails/{id}_[A-Za-z0-9]{4}_pinail\.(?:webp|jpg)`,
		NameBoilerplate:  []string{"Marvel Superhero Transformations"},
		OriginQualifiers: []string{"(DLR)"},
		TitleSuffix:      "Disney Pin",
		ThumbDir:         "pinails",
		FullDir:          "pins",
		ThumbInfix:       "_pinail",
		ImageExt:         ".jpg",
	}
}

func (r Rules) assetRegexp(id int) (*regexp.Regexp, error) {
	if r.AssetPattern == "" {
		return nil, nil
	}
	expr := strings.ReplaceAll(r.AssetPattern, "{id}", regexp.QuoteMeta(strconv.Itoa(id)))
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile asset pattern: %w", err)
	}
	return re, nil
}

// FullImageURL rewrites a thumbnail URL into the full-size image URL.
// Only the path is touched; query and fragment are carried over. Applying it
// to its own output returns the same string.
func (r Rules) FullImageURL(raw string) string {
	base, suffix := raw, ""
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		base, suffix = raw[:i], raw[i:]
	}

	dir, file := "", base
	if i := strings.LastIndex(base, "/"); i >= 0 {
		dir, file = base[:i+1], base[i+1:]
	}

	if r.ThumbDir != "" && r.FullDir != "" {
		segments := strings.Split(dir, "/")
		for i, seg := range segments {
			if seg == r.ThumbDir {
				segments[i] = r.FullDir
			}
		}
		dir = strings.Join(segments, "/")
	}
	if r.ThumbInfix != "" {
		file = strings.ReplaceAll(file, r.ThumbInfix, "")
	}
	if r.ImageExt != "" && file != "" {
		if dot := strings.LastIndex(file, "."); dot > 0 {
			file = file[:dot]
		}
		file += r.ImageExt
	}
	return dir + file + suffix
}
