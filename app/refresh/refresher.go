package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/feed"
	"github.com/feedloom/feedloom/app/fetch"
)

// ConditionalFetcher fetches a document with HTTP validators attached.
type ConditionalFetcher interface {
	GetConditional(ctx context.Context, rawURL, etag, lastModified string) (*fetch.ConditionalResponse, error)
}

// Result describes what a single channel refresh did.
type Result struct {
	ChannelID   string
	NotModified bool
	NewItems    int
}

// Refresher re-fetches stored channels and appends items that were not seen
// before. Existing rows are never rewritten, so user state on old items
// survives every refresh.
type Refresher struct {
	fetcher         ConditionalFetcher
	normalizer      *feed.Normalizer
	channelRepo     database.ChannelRepository
	itemRepo        database.ItemRepository
	failedUploads   database.FailedUploadRepository
	refreshInterval time.Duration
}

func NewRefresher(fetcher ConditionalFetcher, normalizer *feed.Normalizer,
	channelRepo database.ChannelRepository, itemRepo database.ItemRepository,
	failedUploads database.FailedUploadRepository, refreshInterval time.Duration) *Refresher {
	return &Refresher{
		fetcher:         fetcher,
		normalizer:      normalizer,
		channelRepo:     channelRepo,
		itemRepo:        itemRepo,
		failedUploads:   failedUploads,
		refreshInterval: refreshInterval,
	}
}

// RefreshChannel fetches one channel's feed and stores whatever is new.
// Two short circuits avoid useless work: an HTTP 304 from the validators,
// and an unchanged content hash when the server ignores validators.
func (r *Refresher) RefreshChannel(ctx context.Context, channel *database.Channel) (*Result, error) {
	result := &Result{ChannelID: channel.ID}

	var lastModified string
	if channel.LastBuildDate != nil {
		lastModified = channel.LastBuildDate.UTC().Format(time.RFC1123)
	}

	resp, err := r.fetcher.GetConditional(ctx, channel.FeedURL, channel.ETag, lastModified)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", channel.FeedURL, err)
	}

	if resp.NotModified {
		result.NotModified = true
		if err := r.channelRepo.UpdateNextFetch(channel.ID, r.nextFetchAt()); err != nil {
			return nil, err
		}
		return result, nil
	}

	normalized, items, err := r.normalizer.Run(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize feed %s: %w", channel.FeedURL, err)
	}

	if normalized.ContentHash == channel.ContentHash {
		result.NotModified = true
		if err := r.channelRepo.UpdateNextFetch(channel.ID, r.nextFetchAt()); err != nil {
			return nil, err
		}
		return result, nil
	}

	knownLinks, err := r.itemRepo.ListKnownItemLinks(channel.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list known items: %w", err)
	}

	newItems := make([]feed.Item, 0)
	for _, item := range items {
		if !knownLinks[item.Link] {
			newItems = append(newItems, item)
		}
	}

	// Respect cancellation before touching the database: a half-applied
	// refresh is worse than a skipped one.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(newItems) > 0 {
		inserted, err := r.itemRepo.AppendNewItems(channel.ID, newItems)
		if err != nil {
			if recordErr := r.failedUploads.RecordFailedUpload(channel.FeedURL, err.Error()); recordErr != nil {
				slog.Error("Failed to record upload failure", "channel_id", channel.ID, "error", recordErr)
			}
			return nil, fmt.Errorf("failed to store new items: %w", err)
		}
		result.NewItems = inserted
	}

	err = r.channelRepo.UpdateChannelMetadata(channel.ID, normalized.LastBuildDate,
		resp.ETag, normalized.ContentHash, normalized.ItemPubDateParseError, r.nextFetchAt())
	if err != nil {
		return nil, fmt.Errorf("failed to update channel metadata: %w", err)
	}

	return result, nil
}

// RefreshAll refreshes every channel that is due. A failing channel is
// logged and skipped so one broken feed never stalls the rest of the batch.
func (r *Refresher) RefreshAll(ctx context.Context, limit int) ([]Result, error) {
	channels, err := r.channelRepo.GetChannelsDueForRefresh(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels due for refresh: %w", err)
	}

	results := make([]Result, 0, len(channels))
	for i := range channels {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		channel := &channels[i]
		result, err := r.RefreshChannel(ctx, channel)
		if err != nil {
			slog.Error("Channel refresh failed", "channel_id", channel.ID,
				"feed_url", channel.FeedURL, "error", err)
			// Still advance the schedule so a permanently broken feed is
			// retried at the normal cadence instead of on every sweep.
			if schedErr := r.channelRepo.UpdateNextFetch(channel.ID, r.nextFetchAt()); schedErr != nil {
				slog.Error("Failed to reschedule channel", "channel_id", channel.ID, "error", schedErr)
			}
			continue
		}
		results = append(results, *result)
	}

	return results, nil
}

func (r *Refresher) nextFetchAt() time.Time {
	return time.Now().UTC().Add(r.refreshInterval)
}
