package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/feed"
)

const (
	extractionBatchSize   = 20
	extractionItemTimeout = 30 * time.Second
)

// Fetcher fetches the article page for an item.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

type ExtractContentTask struct {
	Task
	fetcher          Fetcher
	contentExtractor *feed.ContentExtractor
	itemRepo         database.ItemRepository
}

func NewExtractContentTask(channelID string, fetcher Fetcher, contentExtractor *feed.ContentExtractor, itemRepo database.ItemRepository) *ExtractContentTask {
	return &ExtractContentTask{
		Task:             NewTask(TaskTypeExtractContent, channelID),
		fetcher:          fetcher,
		contentExtractor: contentExtractor,
		itemRepo:         itemRepo,
	}
}

func (t *ExtractContentTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	items, err := t.itemRepo.GetItemsForExtraction(t.ChannelID, extractionBatchSize)
	if err != nil {
		return fmt.Errorf("failed to get items for content extraction: %w", err)
	}

	if len(items) == 0 {
		slog.Debug("No items need content extraction", "channel_id", t.ChannelID)
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		extractCtx, cancel := context.WithTimeout(ctx, extractionItemTimeout)
		err := t.extractContentForItem(extractCtx, item)
		cancel()

		if err != nil {
			slog.Error("Failed to extract content for item", "item_id", item.ID, "url", item.Link, "error", err)
			errorCount++

			now := time.Now().UTC()
			err = t.itemRepo.UpdateExtractedContent(item.ID, "", "failed", &now, err.Error())
			if err != nil {
				slog.Error("Failed to update content extraction status", "item_id", item.ID, "error", err)
			}
		} else {
			successCount++
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"channel_id", t.ChannelID,
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

func (t *ExtractContentTask) extractContentForItem(ctx context.Context, item database.ItemForExtraction) error {
	if item.Link == "" {
		return fmt.Errorf("item has no link")
	}

	data, err := t.fetcher.Get(ctx, item.Link)
	if err != nil {
		return fmt.Errorf("failed to fetch article content: %w", err)
	}

	extractedContent, err := t.contentExtractor.Run(data)
	if err != nil {
		return fmt.Errorf("failed to extract content: %w", err)
	}

	now := time.Now().UTC()
	err = t.itemRepo.UpdateExtractedContent(item.ID, extractedContent, "success", &now, "")
	if err != nil {
		return fmt.Errorf("failed to update extracted content: %w", err)
	}

	slog.Debug("Content extracted successfully", "item_id", item.ID, "url", item.Link, "content_length", len(extractedContent))
	return nil
}
