// Package extract fetches an article page and pulls out its readable text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	readability "github.com/go-shiori/go-readability"
)

// ErrAccessDenied marks an extraction failure caused by the source refusing
// access (HTTP 401/403). The ingestor blocks the whole source on this signal.
var ErrAccessDenied = errors.New("access denied by source")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36"

// maxContentRunes bounds extracted text; trimming keeps whole paragraphs.
const maxContentRunes = 6000

// Result is the readable content of a single article page.
type Result struct {
	Title    string
	Author   string
	Content  string // plain text, HTML stripped
	ImageURL string
	SiteName string
}

// Func extracts an article. Declared as a type so the ingestor can be tested
// with a fake extractor.
type Func func(ctx context.Context, pageURL string) (*Result, error)

type Extractor struct {
	client *resty.Client
}

func New(timeout time.Duration) *Extractor {
	return &Extractor{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
	}
}

// Extract downloads the page and returns its readable text. Readability runs
// first; if it yields nothing usable, a selector-based pass over common
// article markup is tried before giving up.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*Result, error) {
	resp, err := e.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("fetch %s: status %d: %w", pageURL, resp.StatusCode(), ErrAccessDenied)
	default:
		return nil, fmt.Errorf("fetch %s: unexpected status %d", pageURL, resp.StatusCode())
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", pageURL, err)
	}

	res := &Result{}
	if article, rerr := readability.FromReader(bytes.NewReader(resp.Body()), parsed); rerr == nil {
		res.Title = strings.TrimSpace(article.Title)
		res.Author = strings.TrimSpace(article.Byline)
		res.ImageURL = strings.TrimSpace(article.Image)
		res.SiteName = strings.TrimSpace(article.SiteName)
		res.Content = cleanText(article.TextContent)
	}

	if res.Content == "" {
		if err := e.fallback(resp.Body(), res); err != nil {
			return nil, fmt.Errorf("extract %s: %w", pageURL, err)
		}
	}

	if res.Content == "" {
		return nil, fmt.Errorf("extract %s: no readable content", pageURL)
	}
	return res, nil
}

// fallback runs a selector-based extraction over common article markup.
func (e *Extractor) fallback(body []byte, res *Result) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	selectors := []string{
		"article p",
		".article p",
		".content p",
		".post-content p",
		".entry-content p",
		"main p",
		"#content p",
		"p",
	}

	var paragraphs []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= 3 {
			break
		}
		paragraphs = paragraphs[:0]
	}

	res.Content = cleanText(strings.Join(paragraphs, "\n\n"))

	if res.Title == "" {
		res.Title = strings.TrimSpace(doc.Find("h1").First().Text())
		if res.Title == "" {
			res.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}
	if res.ImageURL == "" {
		if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
			res.ImageURL = strings.TrimSpace(og)
		}
	}
	if res.SiteName == "" {
		if site, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
			res.SiteName = strings.TrimSpace(site)
		}
	}
	return nil
}

// cleanText normalizes whitespace paragraph by paragraph and bounds the total
// length without cutting a paragraph in half.
func cleanText(text string) string {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n") {
		block = strings.Join(strings.Fields(block), " ")
		if len(block) >= 8 {
			paragraphs = append(paragraphs, block)
		}
	}

	var b strings.Builder
	total := 0
	for _, p := range paragraphs {
		runes := len([]rune(p))
		if total > 0 && total+runes > maxContentRunes {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
		total += runes
	}
	return b.String()
}
