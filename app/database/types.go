package database

import (
	"time"
)

type Channel struct {
	ID            string // Database UUID
	UserID        string // Owner; users live in an external auth service
	FeedURL       string // RSS/Atom feed URL resolved during discovery
	Link          string // Homepage URL from the feed's <link> element
	Title         string
	Description   string
	Category      string // slash-delimited path, e.g. "tech/programming"
	ImageURL      string
	Language      string
	Copyright     string
	RSSVersion    string
	LastBuildDate *time.Time
	ETag          string // HTTP validator from the last fetch
	ContentHash   string // sha256 of the last fetched body

	// Set when any item's date failed to parse during the last refresh;
	// surfaced to the user as a dismissible warning.
	ItemPubDateParseError bool

	NextFetchAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Item struct {
	ID          string
	ChannelID   string
	Link        string // unique within a channel
	Title       string
	Author      string
	Description string
	ImageURL    string
	PubDate     time.Time
	Comments    string

	EnclosureURL    string
	EnclosureType   string
	EnclosureLength int64

	// User state, mutated only through item state updates, never by refresh
	Read           bool
	Bookmarked     bool
	HiddenFromFeed bool

	Content                 string
	ContentExtractedAt      *time.Time
	ContentExtractionStatus string // pending, success, failed, skipped

	CreatedAt time.Time
}

type FailedUpload struct {
	ID          string
	Link        string
	ErrorDetail string
	CreatedAt   time.Time
}
