// Package extract pulls catalog fields out of fetched item pages.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is a parsed item page plus the raw body it came from.
type Page struct {
	ID  int
	URL string
	Raw string

	doc *goquery.Document
}

// NewPage parses body into a queryable document.
func NewPage(id int, pageURL string, body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page %d: %w", id, err)
	}
	return &Page{ID: id, URL: pageURL, Raw: string(body), doc: doc}, nil
}

// Document exposes the underlying goquery document.
func (p *Page) Document() *goquery.Document {
	return p.doc
}

// LabeledCell returns the first td sibling after the th whose text equals label.
// The match is exact: case and surrounding whitespace count.
func (p *Page) LabeledCell(label string) (*goquery.Selection, bool) {
	header := p.labelHeader(label)
	if header == nil {
		return nil, false
	}
	cell := header.NextAllFiltered("td").First()
	if cell.Length() == 0 {
		return nil, false
	}
	return cell, true
}

func (p *Page) labelHeader(label string) *goquery.Selection {
	var found *goquery.Selection
	p.doc.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
		if th.Text() != label {
			return true
		}
		found = th
		return false
	})
	return found
}

// CellText returns the trimmed text of a labeled cell.
func (p *Page) CellText(label string) (string, bool) {
	cell, ok := p.LabeledCell(label)
	if !ok {
		return "", false
	}
	return nonEmpty(cell.Text())
}

// CellLinkText prefers the text of the first link inside a labeled cell and
// falls back to the whole cell.
func (p *Page) CellLinkText(label string) (string, bool) {
	cell, ok := p.LabeledCell(label)
	if !ok {
		return "", false
	}
	if link := cell.Find("a").First(); link.Length() > 0 {
		return nonEmpty(link.Text())
	}
	return nonEmpty(cell.Text())
}

// Meta returns the content of a meta tag matched by property, then by name.
func (p *Page) Meta(key string) (string, bool) {
	for _, attr := range []string{"property", "name"} {
		sel := p.doc.Find(fmt.Sprintf("meta[%s=%q]", attr, key)).First()
		if sel.Length() == 0 {
			continue
		}
		if content, ok := sel.Attr("content"); ok {
			if value, ok := nonEmpty(content); ok {
				return value, true
			}
		}
	}
	return "", false
}

// Title is the trimmed document title.
func (p *Page) Title() string {
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

// TitleSegment returns the zero-based segment of a " - " delimited title.
func (p *Page) TitleSegment(index int) (string, bool) {
	parts := strings.Split(p.doc.Find("title").First().Text(), " - ")
	if index < 0 || index >= len(parts) {
		return "", false
	}
	return nonEmpty(parts[index])
}

// ImageSources lists every img src attribute in document order.
func (p *Page) ImageSources() []string {
	var out []string
	p.doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			out = append(out, src)
		}
	})
	return out
}

// BadgesNear returns the trimmed text of a.badge links in the table that
// holds the labeled header.
func (p *Page) BadgesNear(label string) []string {
	header := p.labelHeader(label)
	if header == nil {
		return nil
	}
	table := header.Closest("table")
	if table.Length() == 0 {
		return nil
	}
	var out []string
	table.Find("a.badge").Each(func(_ int, a *goquery.Selection) {
		out = append(out, strings.TrimSpace(a.Text()))
	})
	return out
}

// FindRaw runs re over the raw body and returns the first full match.
func (p *Page) FindRaw(re *regexp.Regexp) (string, bool) {
	if re == nil {
		return "", false
	}
	return nonEmpty(re.FindString(p.Raw))
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}
