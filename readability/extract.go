// Package readability turns the page behind a story URL into reader-mode content.
package readability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	goreadability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/singleflight"
)

const (
	fetchTimeout = 30 * time.Second
	maxBodySize  = 1 << 20 // 1 MiB
	userAgent    = "hn-tools/1.0"
)

var (
	// ErrUnsupportedURL is returned for URLs that are not absolute http(s) links.
	ErrUnsupportedURL = errors.New("unsupported article url")
	// ErrTooLarge is returned when the page exceeds the body limit.
	ErrTooLarge = errors.New("article page too large")
	// ErrNoContent is returned when the page holds nothing readable.
	ErrNoContent = errors.New("no readable content")
)

// StatusError reports a non-200 answer from the article's host.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch returned status %d", e.StatusCode)
}

// Article holds extracted reader-mode content.
type Article struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Byline  string `json:"byline,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
	Content string `json:"content"` // cleaned HTML
}

// Extractor fetches article pages with its own transport limits. Concurrent
// extractions of the same URL share one fetch.
type Extractor struct {
	http *http.Client
	sf   singleflight.Group
}

func NewExtractor() *Extractor {
	return &Extractor{
		http: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				MaxIdleConns:          20,
				MaxIdleConnsPerHost:   5,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// Extract fetches rawURL and extracts its reader-mode content.
// The fetch is shared with concurrent callers for the same URL and bounded by a
// 30-second timeout rather than by ctx; ctx only limits how long this caller waits.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Article, error) {
	ch := e.sf.DoChan(rawURL, func() (any, error) {
		return e.extract(context.WithoutCancel(ctx), rawURL)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Article), nil
	}
}

func (e *Extractor) extract(ctx context.Context, rawURL string) (*Article, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" || parsedURL.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBodySize)
	}

	article, err := goreadability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("readability extract: %w", err)
	}
	if article.Content == "" {
		return nil, fmt.Errorf("%w at %s", ErrNoContent, rawURL)
	}

	return &Article{
		URL:     rawURL,
		Title:   article.Title,
		Byline:  article.Byline,
		Excerpt: article.Excerpt,
		Content: article.Content,
	}, nil
}
