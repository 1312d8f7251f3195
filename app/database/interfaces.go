package database

import (
	"time"

	"github.com/feedloom/feedloom/app/feed"
)

type ChannelRepository interface {
	CreateChannelWithItems(channel Channel, items []feed.Item) (*Channel, error)
	GetChannel(id string) (*Channel, error)
	GetChannelByFeedURLAndUser(feedURL, userID string) (*Channel, error)
	GetChannels(userID string) ([]Channel, error)
	GetChannelsDueForRefresh(limit int) ([]Channel, error)
	UpdateChannelMetadata(id string, lastBuildDate *time.Time, etag, contentHash string, pubDateParseError bool, nextFetchAt time.Time) error
	UpdateNextFetch(id string, nextFetchAt time.Time) error
	GetChannelCount() (int, error)
}

type ItemForExtraction struct {
	ID   string
	Link string
}

type ItemRepository interface {
	ListKnownItemLinks(channelID string) (map[string]bool, error)
	AppendNewItems(channelID string, items []feed.Item) (int, error)
	GetItems(channelID string, limit int) ([]Item, error)
	GetItem(id string) (*Item, error)
	GetItemCount(channelID string) (int, error)
	UpdateItemState(itemID string, read, bookmarked, hidden *bool) error

	GetItemsForExtraction(channelID string, limit int) ([]ItemForExtraction, error)
	UpdateExtractedContent(itemID string, content string, status string, extractedAt *time.Time, errorMsg string) error
}

type FailedUploadRepository interface {
	RecordFailedUpload(link, errorDetail string) error
	GetRecentFailures(limit int) ([]FailedUpload, error)
}
