package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/feedloom/feedloom/app/feed"
)

// ErrChannelExists is returned when an insert hits the (user_id, feed_url)
// uniqueness constraint.
var ErrChannelExists = errors.New("channel already exists")

var _ ChannelRepository = (*channelRepository)(nil)

// channelRepository handles database operations for channels
type channelRepository struct {
	db *DB
}

func NewChannelRepository(db *DB) ChannelRepository {
	return &channelRepository{db: db}
}

const channelColumns = `id, user_id, feed_url, COALESCE(link, ''), COALESCE(title, ''),
	COALESCE(description, ''), COALESCE(category, ''), COALESCE(image_url, ''),
	COALESCE(language, ''), COALESCE(copyright, ''), COALESCE(rss_version, ''),
	last_build_date, COALESCE(etag, ''), COALESCE(content_hash, ''),
	pub_date_parse_error, next_fetch_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChannel(row rowScanner) (*Channel, error) {
	var channel Channel
	err := row.Scan(
		&channel.ID, &channel.UserID, &channel.FeedURL, &channel.Link, &channel.Title,
		&channel.Description, &channel.Category, &channel.ImageURL,
		&channel.Language, &channel.Copyright, &channel.RSSVersion,
		&channel.LastBuildDate, &channel.ETag, &channel.ContentHash,
		&channel.ItemPubDateParseError, &channel.NextFetchAt,
		&channel.CreatedAt, &channel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// CreateChannelWithItems inserts a channel and its initial items in one
// transaction, so a failed item insert never leaves a half-imported channel.
func (r *channelRepository) CreateChannelWithItems(channel Channel, items []feed.Item) (*Channel, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRow(`
		INSERT INTO channels (
			user_id, feed_url, link, title, description, category, image_url,
			language, copyright, rss_version, last_build_date, etag,
			content_hash, pub_date_parse_error, next_fetch_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`, channel.UserID, channel.FeedURL, channel.Link, channel.Title, channel.Description,
		channel.Category, channel.ImageURL, channel.Language, channel.Copyright,
		channel.RSSVersion, channel.LastBuildDate, channel.ETag, channel.ContentHash,
		channel.ItemPubDateParseError, channel.NextFetchAt).Scan(&id)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrChannelExists
		}
		return nil, fmt.Errorf("failed to insert channel: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(`
			INSERT INTO channel_items (
				channel_id, link, title, author, description, image_url,
				pub_date, comments, enclosure_url, enclosure_type, enclosure_length
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (channel_id, link) DO NOTHING
		`, id, item.Link, item.Title, item.Author, item.Description, item.ImageURL,
			item.PubDate, item.Comments, item.EnclosureURL, item.EnclosureType,
			item.EnclosureLength)
		if err != nil {
			return nil, fmt.Errorf("failed to insert item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return r.GetChannel(id)
}

func (r *channelRepository) GetChannel(id string) (*Channel, error) {
	channel, err := scanChannel(r.db.QueryRow(`
		SELECT `+channelColumns+`
		FROM channels
		WHERE id = $1
	`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	return channel, nil
}

func (r *channelRepository) GetChannelByFeedURLAndUser(feedURL, userID string) (*Channel, error) {
	channel, err := scanChannel(r.db.QueryRow(`
		SELECT `+channelColumns+`
		FROM channels
		WHERE feed_url = $1 AND user_id = $2
	`, feedURL, userID))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel by feed URL: %w", err)
	}

	return channel, nil
}

func (r *channelRepository) GetChannels(userID string) ([]Channel, error) {
	rows, err := r.db.Query(`
		SELECT `+channelColumns+`
		FROM channels
		WHERE user_id = $1
		ORDER BY title
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	defer rows.Close()

	return collectChannels(rows)
}

// GetChannelsDueForRefresh returns channels whose next fetch time has passed
func (r *channelRepository) GetChannelsDueForRefresh(limit int) ([]Channel, error) {
	rows, err := r.db.Query(`
		SELECT `+channelColumns+`
		FROM channels
		WHERE next_fetch_at IS NULL OR next_fetch_at <= NOW()
		ORDER BY COALESCE(next_fetch_at, '1970-01-01'::timestamp)
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels due for refresh: %w", err)
	}
	defer rows.Close()

	return collectChannels(rows)
}

func collectChannels(rows *sql.Rows) ([]Channel, error) {
	var channels []Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, *channel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel rows: %w", err)
	}

	return channels, nil
}

// UpdateChannelMetadata records the outcome of a refresh. Only the
// change-detection tokens, build date, parse-error flag and fetch schedule
// move; identity fields are written once at creation.
func (r *channelRepository) UpdateChannelMetadata(id string, lastBuildDate *time.Time, etag, contentHash string, pubDateParseError bool, nextFetchAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE channels
		SET last_build_date = $2, etag = $3, content_hash = $4,
		    pub_date_parse_error = $5, next_fetch_at = $6, updated_at = NOW()
		WHERE id = $1
	`, id, lastBuildDate, etag, contentHash, pubDateParseError, nextFetchAt)

	if err != nil {
		return fmt.Errorf("failed to update channel metadata: %w", err)
	}

	return nil
}

func (r *channelRepository) UpdateNextFetch(id string, nextFetchAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE channels
		SET next_fetch_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id, nextFetchAt)

	if err != nil {
		return fmt.Errorf("failed to update next fetch time: %w", err)
	}

	return nil
}

func (r *channelRepository) GetChannelCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM channels").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get channel count: %w", err)
	}
	return count, nil
}
