// Package extract turns fetched HTML into article records.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulk-article-scraper/internal/scrape"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// newlines folds CR and CRLF to LF. encoding/csv reads a quoted CRLF back
// as LF, so only LF text survives a sink rewrite unchanged.
var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Extractor implements scrape.Extractor with go-readability and goquery.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses html and fills an ExtractedRecord. The record URL is left
// to the caller.
func (e *Extractor) Extract(ctx context.Context, html []byte, pageURL string) (scrape.ExtractedRecord, error) {
	if err := ctx.Err(); err != nil {
		return scrape.ExtractedRecord{}, fmt.Errorf("extract canceled: %w", err)
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return scrape.ExtractedRecord{}, fmt.Errorf("parse page url: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(html), parsedURL)
	if err != nil {
		return scrape.ExtractedRecord{}, fmt.Errorf("readability parse: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return scrape.ExtractedRecord{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(newlines.Replace(article.Title))
	if title == "" {
		title = strings.TrimSpace(newlines.Replace(doc.Find("title").First().Text()))
	}
	text := strings.TrimSpace(newlines.Replace(article.TextContent))

	record := scrape.ExtractedRecord{
		Text:         text,
		Title:        title,
		Keywords:     Keywords(text, title),
		URL:          pageURL,
		Tags:         tags(doc),
		MetaKeywords: metaKeywords(doc),
	}
	if published, ok := publishedAt(doc); ok {
		record.Date = published.Format(dateLayout)
		record.Time = published.Format(timeLayout)
	} else {
		e.logger.Debug("No publish date found", zap.String("url", pageURL))
	}
	return record, nil
}

func tags(doc *goquery.Document) []string {
	set := make(map[string]struct{})
	doc.Find(`a[rel~="tag"]`).Each(func(_ int, s *goquery.Selection) {
		addTrimmed(set, s.Text())
	})
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		addTrimmed(set, s.AttrOr("content", ""))
	})
	return sortedKeys(set)
}

func metaKeywords(doc *goquery.Document) []string {
	set := make(map[string]struct{})
	doc.Find(`meta[name="keywords"]`).Each(func(_ int, s *goquery.Selection) {
		for _, kw := range strings.Split(s.AttrOr("content", ""), ",") {
			addTrimmed(set, kw)
		}
	})
	return sortedKeys(set)
}

// publishedAt reads the first <time> element, then the
// article:published_time meta tag.
func publishedAt(doc *goquery.Document) (time.Time, bool) {
	var candidates []string
	if node := doc.Find("time").First(); node.Length() > 0 {
		if dt, ok := node.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			candidates = append(candidates, dt)
		}
		candidates = append(candidates, node.Text())
	}
	if meta, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok {
		candidates = append(candidates, meta)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if parsed, err := dateparse.ParseAny(candidate); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func addTrimmed(set map[string]struct{}, value string) {
	if v := strings.TrimSpace(value); v != "" {
		set[v] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
