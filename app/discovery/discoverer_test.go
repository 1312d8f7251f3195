package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/feedloom/feedloom/app/fetch"
)

func feedXML(title string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>%s</title>
    <link>https://example.com</link>
    <description>A feed</description>
  </channel>
</rss>`, title)
}

func newDiscoveryServer(t *testing.T) *httptest.Server {
	t.Helper()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/feed.xml" || r.URL.Path == "/feed.xml/":
			fmt.Fprint(w, feedXML("Main Feed"))
		case r.URL.Path == "/other-feed.xml":
			fmt.Fprint(w, feedXML("Other Feed"))
		case r.URL.Path == "/broken-rss":
			w.WriteHeader(http.StatusInternalServerError)
		case r.URL.Path == "/":
			fmt.Fprintf(w, `<html><head>
				<link rel="alternate" type="application/rss+xml" href="/feed.xml"/>
				<link rel="alternate" type="application/atom+xml" href="/other-feed.xml"/>
			</head><body></body></html>`)
		case r.URL.Path == "/single":
			fmt.Fprintf(w, `<html><body><a href="/feed.xml">RSS</a></body></html>`)
		case r.URL.Path == "/fanout":
			fmt.Fprintf(w, `<html><body>
				<a href="/feed.xml">rss here</a>
				<a href="/other-feed.xml">atom here</a>
				<a href="/broken-rss">more rss</a>
			</body></html>`)
		case r.URL.Path == "/dup-parent":
			fmt.Fprintf(w, `<html><body>
				<a href="/dup-child-a">rss page a</a>
				<a href="/dup-child-b">rss page b</a>
			</body></html>`)
		case r.URL.Path == "/dup-child-a":
			fmt.Fprintf(w, `<html><body><a href="%s/feed.xml">rss</a></body></html>`, server.URL)
		case r.URL.Path == "/dup-child-b":
			fmt.Fprintf(w, `<html><body><a href="%s/feed.xml/">rss</a></body></html>`, server.URL)
		case r.URL.Path == "/cycle-rss-a":
			fmt.Fprintf(w, `<html><body><a href="/cycle-rss-b">rss</a></body></html>`)
		case r.URL.Path == "/cycle-rss-b":
			fmt.Fprintf(w, `<html><body><a href="/cycle-rss-a">rss</a></body></html>`)
		case r.URL.Path == "/no-links":
			fmt.Fprintf(w, `<html><body><p>Nothing to see</p></body></html>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	return server
}

func newTestDiscoverer() *Discoverer {
	return NewDiscoverer(fetch.NewClient("test-agent"))
}

func TestDiscoverDirectFeedURL(t *testing.T) {
	server := newDiscoveryServer(t)
	defer server.Close()

	feeds, err := newTestDiscoverer().Discover(context.Background(), server.URL+"/feed.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("Expected 1 feed, got: %d", len(feeds))
	}
	if feeds[0].Title != "Main Feed" {
		t.Errorf("Expected title 'Main Feed', got: %s", feeds[0].Title)
	}
	if !strings.Contains(feeds[0].FeedXML, "<rss") {
		t.Error("Expected raw feed XML to be carried in the result")
	}
}

func TestDiscoverHTMLPageWithAlternateLinks(t *testing.T) {
	server := newDiscoveryServer(t)
	defer server.Close()

	feeds, err := newTestDiscoverer().Discover(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("Expected 2 feeds, got: %d", len(feeds))
	}

	titles := map[string]bool{}
	for _, feed := range feeds {
		titles[feed.Title] = true
	}
	if !titles["Main Feed"] || !titles["Other Feed"] {
		t.Errorf("Expected both feeds discovered, got: %v", titles)
	}
}

func TestDiscoverSingleCandidateRecursesDirectly(t *testing.T) {
	server := newDiscoveryServer(t)
	defer server.Close()

	feeds, err := newTestDiscoverer().Discover(context.Background(), server.URL+"/single")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(feeds) != 1 || feeds[0].Title != "Main Feed" {
		t.Fatalf("Expected single 'Main Feed' result, got: %+v", feeds)
	}
}

func TestDiscoverToleratesFailingCandidate(t *testing.T) {
	server := newDiscoveryServer(t)
	defer server.Close()

	feeds, err := newTestDiscoverer().Discover(context.Background(), server.URL+"/fanout")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("Expected 2 feeds despite one failing candidate, got: %d", len(feeds))
	}
}

func TestDiscoverDedupsByNormalizedURL(t *testing.T) {
	server := newDiscoveryServer(t)
	defer server.Close()

	feeds, err := newTestDiscoverer().Discover(context.Background(), server.URL+"/dup-parent")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("Expected trailing-slash variant to dedup to 1 feed, got: %d", len(feeds))
	}
}

func TestDiscoverCycleTerminates(t *testing.T) {
	server := newDiscoveryServer(t)
	defer server.Close()

	done := make(chan struct{})
	var feeds []DiscoveredFeed
	var err error
	go func() {
		feeds, err = newTestDiscoverer().Discover(context.Background(), server.URL+"/cycle-rss-a")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Discovery did not terminate on a cyclic link graph")
	}

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(feeds) != 0 {
		t.Errorf("Expected no feeds from a pure cycle, got: %d", len(feeds))
	}
}

func TestDiscoverNoLinksFound(t *testing.T) {
	server := newDiscoveryServer(t)
	defer server.Close()

	_, err := newTestDiscoverer().Discover(context.Background(), server.URL+"/no-links")
	if !errors.Is(err, ErrNoFeedLinks) {
		t.Errorf("Expected ErrNoFeedLinks, got: %v", err)
	}
}

func TestDiscoverInvalidSeedURL(t *testing.T) {
	if _, err := newTestDiscoverer().Discover(context.Background(), "not a url"); err == nil {
		t.Error("Expected error for invalid seed URL, got nil")
	}
	if _, err := newTestDiscoverer().Discover(context.Background(), "ftp://example.com/feed"); err == nil {
		t.Error("Expected error for non-HTTP scheme, got nil")
	}
}
