package processor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/jenilsoni-ai/chatsphere/internal/extract"
	"github.com/jenilsoni-ai/chatsphere/internal/models"
)

// Fetcher resolves a document's source into normalized text.
type Fetcher struct {
	extractor *extract.Extractor
	client    *http.Client
}

// NewFetcher creates a fetcher. timeout bounds each URL download.
func NewFetcher(extractor *extract.Extractor, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		extractor: extractor,
		client:    &http.Client{Timeout: timeout},
	}
}

// Fetch returns the normalized text for a document. File and QA sources read
// from the stored upload; URL sources download the page and extract its
// readable article text.
func (f *Fetcher) Fetch(ctx context.Context, doc *models.Document) (string, error) {
	switch doc.Type {
	case models.SourceFile, models.SourceQA:
		if doc.StorageURI == "" {
			return "", fmt.Errorf("document %s has no stored content", doc.ID)
		}
		return f.extractor.Extract(doc.StorageURI)
	case models.SourceURL:
		return f.fetchURL(ctx, doc.StorageURI)
	default:
		return "", fmt.Errorf("unknown source type: %s", doc.Type)
	}
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme: %s", pageURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", fmt.Errorf("extract article from %s: %w", rawURL, err)
	}
	if article.TextContent == "" {
		return "", fmt.Errorf("no readable text at %s", rawURL)
	}
	return article.TextContent, nil
}
