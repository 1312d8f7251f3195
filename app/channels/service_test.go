package channels

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/discovery"
	"github.com/feedloom/feedloom/app/feed"
)

const subscribeFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Feed Name</title>
    <link>https://link.com</link>
    <description>Feed Description</description>
    <item>
      <title>Item 1</title>
      <link>https://link.com/item1</link>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

type fakeDiscoverer struct {
	feeds []discovery.DiscoveredFeed
	err   error
}

func (d *fakeDiscoverer) Discover(_ context.Context, _ string) ([]discovery.DiscoveredFeed, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.feeds, nil
}

type memChannelRepo struct {
	database.ChannelRepository

	byFeedURL map[string]*database.Channel
	createErr error
	nextID    int
}

func newMemChannelRepo() *memChannelRepo {
	return &memChannelRepo{byFeedURL: map[string]*database.Channel{}}
}

func (r *memChannelRepo) GetChannelByFeedURLAndUser(feedURL, userID string) (*database.Channel, error) {
	if channel, ok := r.byFeedURL[userID+"|"+feedURL]; ok {
		return channel, nil
	}
	return nil, nil
}

func (r *memChannelRepo) CreateChannelWithItems(channel database.Channel, _ []feed.Item) (*database.Channel, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	channel.ID = fmt.Sprintf("channel-%d", r.nextID)
	r.byFeedURL[channel.UserID+"|"+channel.FeedURL] = &channel
	return &channel, nil
}

type recordingFailedUploadRepo struct {
	database.FailedUploadRepository

	recorded []string
}

func (r *recordingFailedUploadRepo) RecordFailedUpload(link, _ string) error {
	r.recorded = append(r.recorded, link)
	return nil
}

func newTestService(discoverer Discoverer, channelRepo database.ChannelRepository, failedRepo database.FailedUploadRepository) *Service {
	return NewService(discoverer, feed.NewNormalizer(), channelRepo, failedRepo, time.Hour)
}

func discoveredFixture() []discovery.DiscoveredFeed {
	return []discovery.DiscoveredFeed{
		{URL: "https://link.com/feed.xml", FeedXML: subscribeFeedXML, Title: "Feed Name"},
	}
}

func TestSubscribeCreatesChannel(t *testing.T) {
	repo := newMemChannelRepo()
	service := newTestService(&fakeDiscoverer{feeds: discoveredFixture()}, repo, &recordingFailedUploadRepo{})

	channel, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if channel.Title != "Feed Name" {
		t.Errorf("Expected title 'Feed Name', got %q", channel.Title)
	}
	if channel.FeedURL != "https://link.com/feed.xml" {
		t.Errorf("Expected discovered feed URL, got %q", channel.FeedURL)
	}
	if channel.UserID != "user-1" {
		t.Errorf("Expected user-1, got %q", channel.UserID)
	}
	if channel.NextFetchAt == nil {
		t.Error("Expected next fetch time to be scheduled")
	}
}

func TestSubscribeUserCategoryWins(t *testing.T) {
	repo := newMemChannelRepo()
	service := newTestService(&fakeDiscoverer{feeds: discoveredFixture()}, repo, &recordingFailedUploadRepo{})

	channel, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "news/tech")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if channel.Category != "news/tech" {
		t.Errorf("Expected user category, got %q", channel.Category)
	}
}

func TestSubscribeInvalidURL(t *testing.T) {
	service := newTestService(&fakeDiscoverer{}, newMemChannelRepo(), &recordingFailedUploadRepo{})

	for _, rawURL := range []string{"", "not a url", "ftp://example.com", "/relative/path"} {
		_, err := service.Subscribe(context.Background(), "user-1", rawURL, "")
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Expected ErrInvalidURL for %q, got: %v", rawURL, err)
		}
	}
}

func TestSubscribeNoFeedLinks(t *testing.T) {
	discoverer := &fakeDiscoverer{err: fmt.Errorf("%w: https://link.com", ErrNoFeedLinks)}
	service := newTestService(discoverer, newMemChannelRepo(), &recordingFailedUploadRepo{})

	_, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	if !errors.Is(err, ErrNoFeedLinks) {
		t.Errorf("Expected ErrNoFeedLinks, got: %v", err)
	}
}

func TestSubscribeUnparseableFeed(t *testing.T) {
	discoverer := &fakeDiscoverer{feeds: []discovery.DiscoveredFeed{
		{URL: "https://link.com/feed.xml", FeedXML: "<html><body>not a feed</body></html>"},
	}}
	service := newTestService(discoverer, newMemChannelRepo(), &recordingFailedUploadRepo{})

	_, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	if !errors.Is(err, ErrUnparseable) {
		t.Errorf("Expected ErrUnparseable, got: %v", err)
	}
}

func TestSubscribeAlreadyExists(t *testing.T) {
	repo := newMemChannelRepo()
	service := newTestService(&fakeDiscoverer{feeds: discoveredFixture()}, repo, &recordingFailedUploadRepo{})

	first, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	if err != nil {
		t.Fatalf("Expected first subscribe to succeed, got: %v", err)
	}

	_, err = service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	var existsErr *AlreadyExistsError
	if !errors.As(err, &existsErr) {
		t.Fatalf("Expected AlreadyExistsError, got: %v", err)
	}
	if existsErr.Channel.ID != first.ID {
		t.Errorf("Expected conflict to carry the existing channel, got %q", existsErr.Channel.ID)
	}
}

func TestSubscribeDifferentUsersSameFeed(t *testing.T) {
	repo := newMemChannelRepo()
	service := newTestService(&fakeDiscoverer{feeds: discoveredFixture()}, repo, &recordingFailedUploadRepo{})

	if _, err := service.Subscribe(context.Background(), "user-1", "https://link.com", ""); err != nil {
		t.Fatalf("Expected no error for user-1, got: %v", err)
	}
	if _, err := service.Subscribe(context.Background(), "user-2", "https://link.com", ""); err != nil {
		t.Errorf("Expected user-2 to subscribe independently, got: %v", err)
	}
}

func TestSubscribeUnparseableFeedRecordsFailedUpload(t *testing.T) {
	discoverer := &fakeDiscoverer{feeds: []discovery.DiscoveredFeed{
		{URL: "https://link.com/feed.xml", FeedXML: "this is not xml at all"},
	}}
	failedRepo := &recordingFailedUploadRepo{}
	service := newTestService(discoverer, newMemChannelRepo(), failedRepo)

	_, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	if !errors.Is(err, ErrUnparseable) {
		t.Fatalf("Expected ErrUnparseable, got: %v", err)
	}

	if len(failedRepo.recorded) != 1 || failedRepo.recorded[0] != "https://link.com/feed.xml" {
		t.Errorf("Expected failure recorded for the unparseable feed URL, got: %v", failedRepo.recorded)
	}
}

func TestSubscribeNoFeedLinksRecordsFailedUpload(t *testing.T) {
	discoverer := &fakeDiscoverer{err: fmt.Errorf("%w: https://link.com", ErrNoFeedLinks)}
	failedRepo := &recordingFailedUploadRepo{}
	service := newTestService(discoverer, newMemChannelRepo(), failedRepo)

	_, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	if !errors.Is(err, ErrNoFeedLinks) {
		t.Fatalf("Expected ErrNoFeedLinks, got: %v", err)
	}

	if len(failedRepo.recorded) != 1 || failedRepo.recorded[0] != "https://link.com" {
		t.Errorf("Expected failure recorded for the seed URL, got: %v", failedRepo.recorded)
	}
}

func TestSubscribeInvalidURLRecordsFailedUpload(t *testing.T) {
	failedRepo := &recordingFailedUploadRepo{}
	service := newTestService(&fakeDiscoverer{}, newMemChannelRepo(), failedRepo)

	_, err := service.Subscribe(context.Background(), "user-1", "not a url", "")
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("Expected ErrInvalidURL, got: %v", err)
	}

	if len(failedRepo.recorded) != 1 || failedRepo.recorded[0] != "not a url" {
		t.Errorf("Expected failure recorded for the rejected input, got: %v", failedRepo.recorded)
	}
}

func TestSubscribeConflictNotRecordedAsFailure(t *testing.T) {
	repo := newMemChannelRepo()
	failedRepo := &recordingFailedUploadRepo{}
	service := newTestService(&fakeDiscoverer{feeds: discoveredFixture()}, repo, failedRepo)

	if _, err := service.Subscribe(context.Background(), "user-1", "https://link.com", ""); err != nil {
		t.Fatalf("Expected first subscribe to succeed, got: %v", err)
	}

	_, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	var existsErr *AlreadyExistsError
	if !errors.As(err, &existsErr) {
		t.Fatalf("Expected AlreadyExistsError, got: %v", err)
	}

	if len(failedRepo.recorded) != 0 {
		t.Errorf("Expected no failure log entry for a subscribe conflict, got: %v", failedRepo.recorded)
	}
}

func TestSubscribeRecordsFailedUpload(t *testing.T) {
	repo := newMemChannelRepo()
	repo.createErr = errors.New("disk full")
	failedRepo := &recordingFailedUploadRepo{}
	service := newTestService(&fakeDiscoverer{feeds: discoveredFixture()}, repo, failedRepo)

	_, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	if err == nil {
		t.Fatal("Expected error when storage fails")
	}

	if len(failedRepo.recorded) != 1 || failedRepo.recorded[0] != "https://link.com/feed.xml" {
		t.Errorf("Expected failed upload recorded for the feed URL, got: %v", failedRepo.recorded)
	}
}

// racingChannelRepo misses the pre-insert lookup once, then behaves like a
// store where a concurrent subscribe just won the insert.
type racingChannelRepo struct {
	*memChannelRepo

	lookups int
}

func (r *racingChannelRepo) GetChannelByFeedURLAndUser(feedURL, userID string) (*database.Channel, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.memChannelRepo.GetChannelByFeedURLAndUser(feedURL, userID)
}

func TestSubscribeCreateRaceMapsToAlreadyExists(t *testing.T) {
	inner := newMemChannelRepo()
	inner.createErr = database.ErrChannelExists
	inner.byFeedURL["user-1|https://link.com/feed.xml"] = &database.Channel{
		ID: "channel-raced", FeedURL: "https://link.com/feed.xml", UserID: "user-1",
	}
	repo := &racingChannelRepo{memChannelRepo: inner}

	service := newTestService(&fakeDiscoverer{feeds: discoveredFixture()}, repo, &recordingFailedUploadRepo{})

	_, err := service.Subscribe(context.Background(), "user-1", "https://link.com", "")
	var existsErr *AlreadyExistsError
	if !errors.As(err, &existsErr) {
		t.Fatalf("Expected AlreadyExistsError, got: %v", err)
	}
	if existsErr.Channel.ID != "channel-raced" {
		t.Errorf("Expected the racing channel in the conflict, got %q", existsErr.Channel.ID)
	}
}

func TestLoadSeedsIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.yml")
	seedsYAML := "channels:\n  - url: https://link.com\n    category: tech\n"
	if err := os.WriteFile(path, []byte(seedsYAML), 0o644); err != nil {
		t.Fatalf("Failed to write seeds file: %v", err)
	}

	repo := newMemChannelRepo()
	service := newTestService(&fakeDiscoverer{feeds: discoveredFixture()}, repo, &recordingFailedUploadRepo{})

	if err := service.LoadSeeds(context.Background(), path, "seed-user"); err != nil {
		t.Fatalf("Expected first load to succeed, got: %v", err)
	}
	if err := service.LoadSeeds(context.Background(), path, "seed-user"); err != nil {
		t.Fatalf("Expected second load to succeed, got: %v", err)
	}

	if len(repo.byFeedURL) != 1 {
		t.Errorf("Expected exactly one channel after repeated loads, got %d", len(repo.byFeedURL))
	}
}

func TestLoadSeedsMissingFile(t *testing.T) {
	service := newTestService(&fakeDiscoverer{}, newMemChannelRepo(), &recordingFailedUploadRepo{})

	if err := service.LoadSeeds(context.Background(), "/nonexistent/seeds.yml", "seed-user"); err == nil {
		t.Error("Expected error for missing seeds file")
	}
}
