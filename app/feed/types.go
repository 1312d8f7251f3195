package feed

import (
	"time"
)

// Channel is the dialect-independent representation of a feed's metadata.
type Channel struct {
	Link          string
	Title         string
	Description   string
	Category      string // slash-delimited path, e.g. "tech/programming"
	ImageURL      string
	Language      string
	Copyright     string
	LastBuildDate *time.Time
	RSSVersion    string
	ContentHash   string

	// ItemPubDateParseError aggregates item date parse failures: set when any
	// item's date was missing or unparseable and "now" was substituted.
	ItemPubDateParseError bool
}

// Item is the canonical representation of one feed entry.
type Item struct {
	Link        string // identity within a channel
	Title       string
	Author      string
	Description string
	ImageURL    string
	PubDate     time.Time
	Comments    string

	EnclosureURL    string
	EnclosureType   string
	EnclosureLength int64
}
