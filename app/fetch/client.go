package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// Document fetches are memoized so discovery paths that reach the same
	// URL twice within one request do not hit the network twice.
	cacheTTL  = 60 * time.Second
	cacheSize = 256

	// Cap feed/page downloads to avoid huge bodies
	maxBodyBytes = 5 << 20
)

// Client fetches remote documents with a bounded, time-expiring cache.
type Client struct {
	httpClient *http.Client
	userAgent  string
	cache      *expirable.LRU[string, []byte]
}

func NewClient(userAgent string) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		cache:     expirable.NewLRU[string, []byte](cacheSize, nil, cacheTTL),
	}
}

// Get fetches the body at rawURL, serving repeat requests for the same
// normalized URL from the cache until the entry expires.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	key := NormalizeURL(rawURL)
	if body, ok := c.cache.Get(key); ok {
		return body, nil
	}

	body, _, err := c.do(ctx, rawURL, "", "")
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, body)
	return body, nil
}

// ConditionalResponse is the result of a conditional GET.
type ConditionalResponse struct {
	Body         []byte
	NotModified  bool
	ETag         string
	LastModified string
}

// GetConditional fetches rawURL with If-None-Match / If-Modified-Since
// validators. A 304 response yields NotModified with no body. Conditional
// fetches bypass the cache: callers use them to detect remote change.
func (c *Client) GetConditional(ctx context.Context, rawURL, etag, lastModified string) (*ConditionalResponse, error) {
	body, resp, err := c.do(ctx, rawURL, etag, lastModified)
	if err != nil {
		return nil, err
	}

	result := &ConditionalResponse{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		result.Body = nil
		if result.ETag == "" {
			result.ETag = etag
		}
		if result.LastModified == "" {
			result.LastModified = lastModified
		}
	}

	return result, nil
}

func (c *Client) do(ctx context.Context, rawURL, etag, lastModified string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, resp, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("HTTP error fetching %s: %d %s", rawURL, resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp, nil
}

// NormalizeURL folds away URL differences that never distinguish documents:
// scheme, a leading "www.", and a trailing slash. Used as the cache key and
// for deduplicating discovered feed URLs.
func NormalizeURL(rawURL string) string {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	return s
}
