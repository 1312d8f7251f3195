package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/feedloom/feedloom/app/fetch"
)

// ErrNoFeedLinks is returned when an HTML page was fetched successfully but
// contained no candidate feed links.
var ErrNoFeedLinks = errors.New("no feed links found")

// maxRecursionDepth bounds how many nested link pages the discoverer will
// follow from the seed URL.
const maxRecursionDepth = 3

var feedMIMETypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/xml":      true,
	"text/xml":             true,
}

type Fetcher interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Discoverer resolves an arbitrary URL down to the feed documents reachable
// from it: the URL itself if it is a feed, otherwise the feed links its HTML
// advertises, followed recursively up to maxRecursionDepth.
type Discoverer struct {
	fetcher Fetcher
}

func NewDiscoverer(fetcher Fetcher) *Discoverer {
	return &Discoverer{fetcher: fetcher}
}

// recursionState is passed by value; child() hands each branch its own copy
// of the visited set so concurrent branches never share mutable state.
type recursionState struct {
	level   int
	visited map[string]bool
	parent  string
}

func (s recursionState) child(current string) recursionState {
	visited := make(map[string]bool, len(s.visited)+1)
	for k := range s.visited {
		visited[k] = true
	}
	visited[current] = true

	return recursionState{
		level:   s.level + 1,
		visited: visited,
		parent:  current,
	}
}

func (d *Discoverer) Discover(ctx context.Context, seedURL string) ([]DiscoveredFeed, error) {
	u, err := url.Parse(seedURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid seed URL: %s", seedURL)
	}

	return d.discover(ctx, seedURL, recursionState{visited: map[string]bool{}})
}

func (d *Discoverer) discover(ctx context.Context, rawURL string, state recursionState) ([]DiscoveredFeed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Revisits short-circuit so self-referential link graphs terminate.
	if state.level > maxRecursionDepth || state.visited[rawURL] {
		return nil, nil
	}

	body, err := d.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if isFeedDocument(body) {
		title, description := scanFeedHeader(body)
		return []DiscoveredFeed{{
			URL:         rawURL,
			FeedXML:     string(body),
			Title:       title,
			Description: description,
		}}, nil
	}

	candidates := scanFeedLinks(body, rawURL)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w at %s", ErrNoFeedLinks, rawURL)
	}

	// A single feed link is the common case; recurse directly instead of
	// spawning a goroutine for it.
	if len(candidates) == 1 {
		return d.discover(ctx, candidates[0], state.child(rawURL))
	}

	results := make([][]DiscoveredFeed, len(candidates))
	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, candidate string) {
			defer wg.Done()
			feeds, err := d.discover(ctx, candidate, state.child(rawURL))
			if err != nil {
				// One candidate failing must not abort its siblings.
				slog.Debug("Discovery candidate failed", "url", candidate, "parent", rawURL, "error", err)
				return
			}
			results[i] = feeds
		}(i, candidate)
	}
	wg.Wait()

	return dedupeFeeds(results), nil
}

// dedupeFeeds flattens per-candidate results in candidate order and drops
// feeds whose normalized URL was already seen, so http://x.com/feed and
// https://www.x.com/feed/ reached via different parents collapse to one.
func dedupeFeeds(results [][]DiscoveredFeed) []DiscoveredFeed {
	seen := make(map[string]bool)
	var feeds []DiscoveredFeed
	for _, branch := range results {
		for _, feed := range branch {
			key := fetch.NormalizeURL(feed.URL)
			if seen[key] {
				continue
			}
			seen[key] = true
			feeds = append(feeds, feed)
		}
	}
	return feeds
}

// scanFeedLinks extracts candidate feed URLs from an HTML document: alternate
// links with a feed MIME type, plus any anchor or link element whose href or
// title hints at a feed. Relative hrefs are resolved against pageURL.
func scanFeedLinks(body []byte, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var candidates []string
	add := func(href string) {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}
		abs := resolved.String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		candidates = append(candidates, abs)
	}

	doc.Find(`link[rel="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		linkType, _ := s.Attr("type")
		if feedMIMETypes[strings.ToLower(strings.TrimSpace(linkType))] {
			if href, ok := s.Attr("href"); ok {
				add(href)
			}
		}
	})

	doc.Find("a[href], link[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		title, _ := s.Attr("title")
		if hintsAtFeed(href) || hintsAtFeed(title) {
			add(href)
		}
	})

	return candidates
}

func hintsAtFeed(s string) bool {
	ls := strings.ToLower(s)
	return strings.Contains(ls, "rss") || strings.Contains(ls, "feed") || strings.Contains(ls, "atom")
}
