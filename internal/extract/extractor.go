// Package extract pulls the alert block and the update-date block out of a
// rendered DOM snapshot.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/runlog"
	"github.com/JakeFAU/pagewatch/internal/stage"
)

const previewRunes = 100

// DefaultTags are the block-level and inline elements scanned, in the order
// they appear in the document.
var DefaultTags = []string{"div", "span", "p", "h2", "h3", "h4", "h5"}

// Content is the text extracted from one page.
type Content struct {
	AlertText  string
	UpdateDate string
}

// HasDate reports whether an update-date block was found.
func (c Content) HasDate() bool {
	return c.UpdateDate != ""
}

// Config selects the markers and tags.
type Config struct {
	// AlertMarkers must all appear in an element's text for it to be the alert.
	AlertMarkers []string
	// DateMarker must appear in an element's text for it to be the update date.
	DateMarker string
	Tags       []string
}

// Extractor scans DOM elements with first-match semantics.
type Extractor struct {
	alertMarkers []string
	dateMarker   string
	selector     string
}

// New validates cfg and builds an Extractor.
func New(cfg Config) (*Extractor, error) {
	markers := make([]string, 0, len(cfg.AlertMarkers))
	for _, m := range cfg.AlertMarkers {
		if m != "" {
			markers = append(markers, m)
		}
	}
	if len(markers) == 0 {
		return nil, fmt.Errorf("at least one alert marker is required")
	}
	if cfg.DateMarker == "" {
		return nil, fmt.Errorf("date marker is required")
	}
	tags := cfg.Tags
	if len(tags) == 0 {
		tags = DefaultTags
	}
	return &Extractor{
		alertMarkers: markers,
		dateMarker:   cfg.DateMarker,
		selector:     strings.Join(tags, ", "),
	}, nil
}

// Extract returns the alert and update-date text. A page without the alert
// is NotFound; a page without a date still succeeds with an empty date.
func (e *Extractor) Extract(html string, log *runlog.Log) stage.Result[Content] {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Error(fmt.Sprintf("❌ Failed to parse page: %v", err))
		return stage.Failed[Content](fmt.Errorf("parse html: %w", err))
	}
	doc.Find("br").ReplaceWithHtml("\n")

	var content Content
	var foundAlert, foundDate bool
	doc.Find(e.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !foundAlert && containsAll(text, e.alertMarkers) {
			content.AlertText = normalizeLines(text)
			foundAlert = true
			log.Info(fmt.Sprintf("✅ Message found %s: %s...", e.alertMarkers[0], preview(content.AlertText)),
				zap.Int("alert_bytes", len(content.AlertText)))
		}
		if !foundDate && strings.Contains(text, e.dateMarker) {
			content.UpdateDate = normalizeLines(text)
			foundDate = true
			log.Info(fmt.Sprintf("✅ Update date found: %s", content.UpdateDate))
		}
		return !(foundAlert && foundDate)
	})

	if !foundAlert {
		log.Warn(fmt.Sprintf("⚠️ %s message not found", e.alertMarkers[0]))
	}
	if !foundDate {
		log.Warn("⚠️ Update date not found")
	}
	if !foundAlert {
		return stage.NotFound[Content]("alert block not found")
	}
	return stage.OK(content)
}

func containsAll(text string, markers []string) bool {
	for _, m := range markers {
		if !strings.Contains(text, m) {
			return false
		}
	}
	return true
}

// normalizeLines keeps non-blank lines, trimmed, joined by newlines.
func normalizeLines(text string) string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	return string([]rune(s)[:previewRunes])
}
