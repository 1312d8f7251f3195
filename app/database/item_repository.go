package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/feedloom/feedloom/app/feed"
)

var _ ItemRepository = (*itemRepository)(nil)

// itemRepository handles database operations for channel items
type itemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) ItemRepository {
	return &itemRepository{db: db}
}

const itemColumns = `id, channel_id, link, COALESCE(title, ''), COALESCE(author, ''),
	COALESCE(description, ''), COALESCE(image_url, ''), pub_date, COALESCE(comments, ''),
	COALESCE(enclosure_url, ''), COALESCE(enclosure_type, ''), COALESCE(enclosure_length, 0),
	read, bookmarked, hidden_from_feed,
	COALESCE(content, ''), content_extracted_at, COALESCE(content_extraction_status, 'pending'),
	created_at`

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	err := row.Scan(
		&item.ID, &item.ChannelID, &item.Link, &item.Title, &item.Author,
		&item.Description, &item.ImageURL, &item.PubDate, &item.Comments,
		&item.EnclosureURL, &item.EnclosureType, &item.EnclosureLength,
		&item.Read, &item.Bookmarked, &item.HiddenFromFeed,
		&item.Content, &item.ContentExtractedAt, &item.ContentExtractionStatus,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListKnownItemLinks returns the set of item links already stored for a
// channel, used by refresh to diff a fetched feed against the database.
func (r *itemRepository) ListKnownItemLinks(channelID string) (map[string]bool, error) {
	rows, err := r.db.Query(`
		SELECT link FROM channel_items WHERE channel_id = $1
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item links: %w", err)
	}
	defer rows.Close()

	links := make(map[string]bool)
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("failed to scan item link: %w", err)
		}
		links[link] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item links: %w", err)
	}

	return links, nil
}

// AppendNewItems inserts items for a channel, skipping links that already
// exist, and reports how many rows were actually added.
func (r *itemRepository) AppendNewItems(channelID string, items []feed.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, item := range items {
		result, err := tx.Exec(`
			INSERT INTO channel_items (
				channel_id, link, title, author, description, image_url,
				pub_date, comments, enclosure_url, enclosure_type, enclosure_length
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (channel_id, link) DO NOTHING
		`, channelID, item.Link, item.Title, item.Author, item.Description, item.ImageURL,
			item.PubDate, item.Comments, item.EnclosureURL, item.EnclosureType,
			item.EnclosureLength)
		if err != nil {
			return 0, fmt.Errorf("failed to insert item: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

func (r *itemRepository) GetItems(channelID string, limit int) ([]Item, error) {
	rows, err := r.db.Query(`
		SELECT `+itemColumns+`
		FROM channel_items
		WHERE channel_id = $1 AND NOT hidden_from_feed
		ORDER BY pub_date DESC
		LIMIT $2
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func (r *itemRepository) GetItem(id string) (*Item, error) {
	item, err := scanItem(r.db.QueryRow(`
		SELECT `+itemColumns+`
		FROM channel_items
		WHERE id = $1
	`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

func (r *itemRepository) GetItemCount(channelID string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM channel_items WHERE channel_id = $1
	`, channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

// UpdateItemState updates only the flags that were provided; nil pointers
// leave the stored value untouched.
func (r *itemRepository) UpdateItemState(itemID string, read, bookmarked, hidden *bool) error {
	setClauses := []string{}
	args := []interface{}{itemID}

	appendClause := func(column string, value *bool) {
		if value == nil {
			return
		}
		args = append(args, *value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	appendClause("read", read)
	appendClause("bookmarked", bookmarked)
	appendClause("hidden_from_feed", hidden)

	if len(setClauses) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE channel_items
		SET %s
		WHERE id = $1
	`, strings.Join(setClauses, ", "))

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update item state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *itemRepository) GetItemsForExtraction(channelID string, limit int) ([]ItemForExtraction, error) {
	rows, err := r.db.Query(`
		SELECT id, link
		FROM channel_items
		WHERE channel_id = $1 AND content_extraction_status = 'pending'
		ORDER BY pub_date DESC
		LIMIT $2
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get items for extraction: %w", err)
	}
	defer rows.Close()

	var items []ItemForExtraction
	for rows.Next() {
		var item ItemForExtraction
		if err := rows.Scan(&item.ID, &item.Link); err != nil {
			return nil, fmt.Errorf("failed to scan extraction row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating extraction rows: %w", err)
	}

	return items, nil
}

func (r *itemRepository) UpdateExtractedContent(itemID string, content string, status string, extractedAt *time.Time, errorMsg string) error {
	_, err := r.db.Exec(`
		UPDATE channel_items
		SET content = $2, content_extraction_status = $3,
		    content_extracted_at = $4, content_extraction_error = NULLIF($5, '')
		WHERE id = $1
	`, itemID, content, status, extractedAt, errorMsg)

	if err != nil {
		return fmt.Errorf("failed to update extracted content: %w", err)
	}

	return nil
}
