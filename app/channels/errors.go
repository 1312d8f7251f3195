package channels

import (
	"errors"
	"fmt"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/discovery"
	"github.com/feedloom/feedloom/app/feed"
)

// ErrInvalidURL rejects seeds that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid url")

// ErrNoFeedLinks and ErrUnparseable re-export the lower-level failures so
// callers can classify subscribe errors without importing those packages.
var (
	ErrNoFeedLinks = discovery.ErrNoFeedLinks
	ErrUnparseable = feed.ErrUnparseable
)

// AlreadyExistsError reports a subscribe conflict and carries the channel
// that already holds the (user, feed URL) pair.
type AlreadyExistsError struct {
	Channel *database.Channel
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("channel already exists for feed %s", e.Channel.FeedURL)
}
