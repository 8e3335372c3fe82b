package ics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	appLog "tutorcal/internal/log"
)

// Fetcher downloads calendar feeds with conditional requests
// (ETag / Last-Modified), keeping the last good body in memory.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]feedEntry
}

type feedEntry struct {
	etag         string
	lastModified string
	body         []byte
}

// FetchResult is one fetched feed.
type FetchResult struct {
	URL       string
	Body      []byte
	FromCache bool
}

// NewFetcher creates a Fetcher. A nil hc gets a 15 second timeout.
func NewFetcher(hc *http.Client) *Fetcher {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: hc, cache: make(map[string]feedEntry)}
}

// Fetch downloads one feed. On network errors and non-OK statuses it falls
// back to the last good body when there is one.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (FetchResult, error) {
	if feedURL == "" {
		return FetchResult{}, errors.New("feed url is empty")
	}

	f.mu.Lock()
	cached, hasCache := f.cache[feedURL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}
	if cached.lastModified != "" {
		req.Header.Set("If-Modified-Since", cached.lastModified)
	}

	host := feedHost(feedURL)
	appLog.Debug("ics fetch start", "host", host)

	resp, err := f.client.Do(req)
	if err != nil {
		if hasCache {
			appLog.Error("ics fetch failed, using cached body", err, "host", host)
			return FetchResult{URL: feedURL, Body: cached.body, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, err
		}
		f.mu.Lock()
		f.cache[feedURL] = feedEntry{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		f.mu.Unlock()
		appLog.Info("ics fetch success", "host", host, "bytes", len(body))
		return FetchResult{URL: feedURL, Body: body}, nil

	case http.StatusNotModified:
		if !hasCache {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified", "host", host)
		return FetchResult{URL: feedURL, Body: cached.body, FromCache: true}, nil

	default:
		if hasCache {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "host", host)
			return FetchResult{URL: feedURL, Body: cached.body, FromCache: true}, nil
		}
		return FetchResult{}, errors.New(resp.Status)
	}
}

// feedHost keeps private feed paths and tokens out of the logs.
func feedHost(u string) string {
	p, err := url.Parse(u)
	if err != nil || p.Host == "" {
		return "(redacted)"
	}
	return p.Scheme + "://" + p.Host
}
