package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/discovery"
	"github.com/feedloom/feedloom/app/feed"
)

// Discoverer resolves a user-supplied URL into confirmed feed endpoints.
type Discoverer interface {
	Discover(ctx context.Context, seedURL string) ([]discovery.DiscoveredFeed, error)
}

// Service owns the subscribe path: validate, discover, normalize, persist.
type Service struct {
	discoverer      Discoverer
	normalizer      *feed.Normalizer
	channelRepo     database.ChannelRepository
	failedUploads   database.FailedUploadRepository
	refreshInterval time.Duration
}

func NewService(discoverer Discoverer, normalizer *feed.Normalizer,
	channelRepo database.ChannelRepository,
	failedUploads database.FailedUploadRepository, refreshInterval time.Duration) *Service {
	return &Service{
		discoverer:      discoverer,
		normalizer:      normalizer,
		channelRepo:     channelRepo,
		failedUploads:   failedUploads,
		refreshInterval: refreshInterval,
	}
}

// Subscribe resolves rawURL to a feed, normalizes it and stores a channel
// with its initial items. When several feeds are discovered the first one
// wins; candidate order is preserved by discovery.
// Every hard failure is recorded in the failed uploads log before it is
// surfaced, so operators can triage bad subscriptions after the fact.
func (s *Service) Subscribe(ctx context.Context, userID, rawURL, category string) (*database.Channel, error) {
	if err := validateSeedURL(rawURL); err != nil {
		s.recordFailure(rawURL, err)
		return nil, err
	}

	discovered, err := s.discoverer.Discover(ctx, rawURL)
	if err != nil {
		s.recordFailure(rawURL, err)
		return nil, err
	}
	if len(discovered) == 0 {
		err := fmt.Errorf("%w: %s", ErrNoFeedLinks, rawURL)
		s.recordFailure(rawURL, err)
		return nil, err
	}

	winner := discovered[0]

	existing, err := s.channelRepo.GetChannelByFeedURLAndUser(winner.URL, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing channel: %w", err)
	}
	if existing != nil {
		return nil, &AlreadyExistsError{Channel: existing}
	}

	normalized, items, err := s.normalizer.Run([]byte(winner.FeedXML))
	if err != nil {
		s.recordFailure(winner.URL, err)
		return nil, err
	}

	if category == "" {
		category = normalized.Category
	}

	nextFetch := time.Now().UTC().Add(s.refreshInterval)
	channel := database.Channel{
		UserID:                userID,
		FeedURL:               winner.URL,
		Link:                  normalized.Link,
		Title:                 normalized.Title,
		Description:           normalized.Description,
		Category:              category,
		ImageURL:              normalized.ImageURL,
		Language:              normalized.Language,
		Copyright:             normalized.Copyright,
		RSSVersion:            normalized.RSSVersion,
		LastBuildDate:         normalized.LastBuildDate,
		ContentHash:           normalized.ContentHash,
		ItemPubDateParseError: normalized.ItemPubDateParseError,
		NextFetchAt:           &nextFetch,
	}

	created, err := s.channelRepo.CreateChannelWithItems(channel, items)
	if err != nil {
		if errors.Is(err, database.ErrChannelExists) {
			// Lost a race with a concurrent subscribe for the same feed
			existing, lookupErr := s.channelRepo.GetChannelByFeedURLAndUser(winner.URL, userID)
			if lookupErr == nil && existing != nil {
				return nil, &AlreadyExistsError{Channel: existing}
			}
			return nil, err
		}
		s.recordFailure(winner.URL, err)
		return nil, fmt.Errorf("failed to store channel: %w", err)
	}

	slog.Info("Channel created", "channel_id", created.ID, "feed_url", created.FeedURL,
		"items", len(items))

	return created, nil
}

func (s *Service) GetChannel(id string) (*database.Channel, error) {
	return s.channelRepo.GetChannel(id)
}

func (s *Service) GetChannels(userID string) ([]database.Channel, error) {
	return s.channelRepo.GetChannels(userID)
}

func (s *Service) recordFailure(link string, err error) {
	if recordErr := s.failedUploads.RecordFailedUpload(link, err.Error()); recordErr != nil {
		slog.Error("Failed to record upload failure", "link", link, "error", recordErr)
	}
}

func validateSeedURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return nil
}
