package extract

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	seriesDescRe  = regexp.MustCompile(`from the (.*?) (?:Disney pin )?series`)
	originDescRe  = regexp.MustCompile(`(\d{4}) (.*?) Limited Edition`)
	editionDescRe = regexp.MustCompile(`Limited Edition \(LE\) (\d+)`)
)

// Fields is the best-effort attribute set pulled from one page. Missing
// values are empty strings.
type Fields struct {
	Name        string
	ImageURL    string
	ImageFound  bool
	Series      string
	Origin      string
	Edition     string
	ReleaseDate string
	Rarity      string
	Tags        []string
	// Sources maps each found field to the strategy that produced it.
	Sources map[string]string
}

// Extractor runs the per-field strategy cascades.
type Extractor struct {
	rules  Rules
	logger *zap.Logger

	name    []Strategy[string]
	image   []Strategy[string]
	series  []Strategy[string]
	origin  []Strategy[string]
	edition []Strategy[string]
}

// NewExtractor validates rules and builds the cascades.
func NewExtractor(rules Rules, logger *zap.Logger) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := rules.assetRegexp(1); err != nil {
		return nil, err
	}
	e := &Extractor{rules: rules, logger: logger}
	e.name = []Strategy[string]{
		{Name: "table", Func: cell("Pin")},
		{Name: "title", Func: titleSegment(1, "")},
		{Name: "slug", Func: e.nameFromSlug},
	}
	e.image = []Strategy[string]{
		{Name: "og_image", Func: meta("og:image")},
		{Name: "img_tag", Func: e.imageFromTags},
		{Name: "raw_scan", Func: e.imageFromRaw},
	}
	e.series = []Strategy[string]{
		{Name: "table", Func: cellLink("Series", nil)},
		{Name: "description", Func: describe(seriesDescRe, func(m []string) string { return m[1] })},
		{Name: "title", Func: titleSegment(2, "")},
	}
	e.origin = []Strategy[string]{
		{Name: "table", Func: cellLink("Origin", rules.OriginQualifiers)},
		{Name: "description", Func: describe(originDescRe, func(m []string) string { return m[2] })},
		{Name: "title", Func: titleSegment(3, rules.TitleSuffix)},
	}
	e.edition = []Strategy[string]{
		{Name: "table", Func: cell("Edition")},
		{Name: "description", Func: describe(editionDescRe, func(m []string) string { return "Limited Edition " + m[1] })},
	}
	return e, nil
}

// Rules returns the rules the extractor was built with.
func (e *Extractor) Rules() Rules {
	return e.rules
}

// Extract pulls every field from p.
func (e *Extractor) Extract(p *Page) Fields {
	f := Fields{Sources: make(map[string]string)}
	f.Name = e.run(p, "name", e.name, f.Sources)
	if thumb := e.run(p, "image_url", e.image, f.Sources); thumb != "" {
		f.ImageURL = e.rules.FullImageURL(thumb)
		f.ImageFound = true
	}
	f.Series = e.run(p, "series", e.series, f.Sources)
	f.Origin = e.run(p, "origin", e.origin, f.Sources)
	f.Edition = e.run(p, "edition", e.edition, f.Sources)
	f.ReleaseDate, _ = p.CellText("Release Date")
	f.Rarity, _ = p.CellText("Rarity")
	f.Tags = e.tags(p, f.Name, f.Series)
	return f
}

func (e *Extractor) run(p *Page, field string, strategies []Strategy[string], sources map[string]string) string {
	v, name, ok := First(p, strategies)
	if !ok {
		e.logger.Debug("field not found", zap.Int("pin_id", p.ID), zap.String("field", field))
		return ""
	}
	sources[field] = name
	e.logger.Debug("field extracted",
		zap.Int("pin_id", p.ID),
		zap.String("field", field),
		zap.String("strategy", name),
	)
	return v
}

func (e *Extractor) tags(p *Page, name, series string) []string {
	seen := make(map[string]struct{})
	var tags []string
	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	for _, badge := range p.BadgesNear("Pin Tags") {
		add(badge)
	}
	if len(tags) > 0 {
		return tags
	}
	add(name)
	add(series)
	return tags
}

func (e *Extractor) nameFromSlug(p *Page) (string, bool) {
	raw := p.URL
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	slug := path.Base(strings.TrimRight(raw, "/"))
	if slug == "." || slug == "/" {
		return "", false
	}
	name := cases.Title(language.English).String(strings.ReplaceAll(slug, "-", " "))
	for _, boilerplate := range e.rules.NameBoilerplate {
		if boilerplate != "" {
			name = strings.ReplaceAll(name, boilerplate, "")
		}
	}
	return nonEmpty(strings.Join(strings.Fields(name), " "))
}

func (e *Extractor) imageFromTags(p *Page) (string, bool) {
	id := strconv.Itoa(p.ID)
	for _, src := range p.ImageSources() {
		if strings.Contains(src, id) && strings.Contains(src, e.rules.AssetHost) {
			return src, true
		}
	}
	return "", false
}

func (e *Extractor) imageFromRaw(p *Page) (string, bool) {
	re, err := e.rules.assetRegexp(p.ID)
	if err != nil {
		return "", false
	}
	return p.FindRaw(re)
}

func cell(label string) func(*Page) (string, bool) {
	return func(p *Page) (string, bool) {
		return p.CellText(label)
	}
}

func cellLink(label string, strip []string) func(*Page) (string, bool) {
	return func(p *Page) (string, bool) {
		cell, ok := p.LabeledCell(label)
		if !ok {
			return "", false
		}
		link := cell.Find("a").First()
		if link.Length() == 0 {
			return nonEmpty(cell.Text())
		}
		v := link.Text()
		// Qualifiers are only stripped from link text.
		for _, token := range strip {
			if token != "" {
				v = strings.ReplaceAll(v, token, "")
			}
		}
		return nonEmpty(v)
	}
}

func meta(key string) func(*Page) (string, bool) {
	return func(p *Page) (string, bool) {
		return p.Meta(key)
	}
}

func titleSegment(index int, suffix string) func(*Page) (string, bool) {
	return func(p *Page) (string, bool) {
		v, ok := p.TitleSegment(index)
		if !ok {
			return "", false
		}
		if suffix != "" {
			v = strings.ReplaceAll(v, suffix, "")
		}
		return nonEmpty(v)
	}
}

func describe(re *regexp.Regexp, pick func([]string) string) func(*Page) (string, bool) {
	return func(p *Page) (string, bool) {
		desc, ok := p.Meta("description")
		if !ok {
			return "", false
		}
		m := re.FindStringSubmatch(desc)
		if m == nil {
			return "", false
		}
		return nonEmpty(pick(m))
	}
}
