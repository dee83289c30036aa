package adapter

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rankly-scanner/internal/errors"
)

// SiteMetadata holds business information extracted from a website
type SiteMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// WebsiteExtractor fetches a business website and pulls out the metadata
// used to seed prompt generation when the user supplied no manual data.
type WebsiteExtractor struct {
	httpClient *http.Client
	maxBody    int64
}

// NewWebsiteExtractor creates a new website metadata extractor
func NewWebsiteExtractor() *WebsiteExtractor {
	return &WebsiteExtractor{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxBody:    1 << 20, // 1 MiB is plenty for the <head> section
	}
}

var (
	titleRe       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaTagRe     = regexp.MustCompile(`(?is)<meta\s+[^>]*>`)
	metaNameRe    = regexp.MustCompile(`(?is)name\s*=\s*["']([^"']+)["']`)
	metaContentRe = regexp.MustCompile(`(?is)content\s*=\s*["']([^"']*)["']`)
)

// Extract fetches the website and returns its title, description and keywords
func (e *WebsiteExtractor) Extract(ctx context.Context, websiteURL string) (*SiteMetadata, error) {
	if !strings.HasPrefix(websiteURL, "http://") && !strings.HasPrefix(websiteURL, "https://") {
		websiteURL = "https://" + websiteURL
	}

	req, err := http.NewRequestWithContext(ctx, "GET", websiteURL, nil)
	if err != nil {
		return nil, errors.NewExtractionError(websiteURL, err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", "RanklyBot/1.0 (+https://rankly.app)")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExtractionError(websiteURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExtractionError(websiteURL,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, errors.NewExtractionError(websiteURL, err)
	}

	meta := parseMetadata(string(body))
	if meta.Title == "" && meta.Description == "" {
		return nil, errors.NewExtractionError(websiteURL,
			fmt.Errorf("page has no title or meta description"))
	}
	return meta, nil
}

// parseMetadata pulls title, description and keywords out of raw HTML
func parseMetadata(page string) *SiteMetadata {
	meta := &SiteMetadata{}

	if m := titleRe.FindStringSubmatch(page); m != nil {
		meta.Title = cleanText(m[1])
	}

	for _, tag := range metaTagRe.FindAllString(page, -1) {
		nameMatch := metaNameRe.FindStringSubmatch(tag)
		contentMatch := metaContentRe.FindStringSubmatch(tag)
		if nameMatch == nil || contentMatch == nil {
			continue
		}
		switch strings.ToLower(nameMatch[1]) {
		case "description":
			if meta.Description == "" {
				meta.Description = cleanText(contentMatch[1])
			}
		case "keywords":
			for _, kw := range strings.Split(contentMatch[1], ",") {
				kw = cleanText(kw)
				if kw != "" {
					meta.Keywords = append(meta.Keywords, kw)
				}
			}
		}
	}

	return meta
}

// cleanText unescapes HTML entities and collapses whitespace
func cleanText(s string) string {
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
