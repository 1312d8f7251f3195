package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedloom/feedloom/app/channels"
	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/refresh"
	"github.com/feedloom/feedloom/app/tasks"
)

const (
	defaultItemLimit    = 100
	refreshBatchSize    = 100
	defaultFailureLimit = 50
)

func NewHandler(service *channels.Service, channelRepo database.ChannelRepository,
	itemRepo database.ItemRepository, failedUploads database.FailedUploadRepository,
	refresher *refresh.Refresher, discoverer Discoverer, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		service:       service,
		channelRepo:   channelRepo,
		itemRepo:      itemRepo,
		failedUploads: failedUploads,
		refresher:     refresher,
		discoverer:    discoverer,
		generator:     NewRSSGenerator(),
		scheduler:     scheduler,
	}
}

type subscribeRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	URL      string `json:"url" binding:"required"`
	Category string `json:"category"`
}

type itemStateRequest struct {
	Read           *bool `json:"read"`
	Bookmarked     *bool `json:"bookmarked"`
	HiddenFromFeed *bool `json:"hidden_from_feed"`
}

func (h *Handler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	channel, err := h.service.Subscribe(c.Request.Context(), req.UserID, req.URL, req.Category)
	if err != nil {
		var existsErr *channels.AlreadyExistsError
		switch {
		case errors.As(err, &existsErr):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_exists",
				"channel": channelResponse(existsErr.Channel),
			})
		case errors.Is(err, channels.ErrInvalidURL):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_url", "message": err.Error()})
		case errors.Is(err, channels.ErrNoFeedLinks):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no_feed_links", "message": err.Error()})
		case errors.Is(err, channels.ErrUnparseable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unparseable_feed", "message": err.Error()})
		default:
			slog.Error("Subscribe failed", "url", req.URL, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"channel": channelResponse(channel)})
}

func (h *Handler) ListChannels(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_user_id"})
		return
	}

	chans, err := h.channelRepo.GetChannels(userID)
	if err != nil {
		slog.Error("Database error", "operation", "get_channels", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	list := make([]gin.H, 0, len(chans))
	for i := range chans {
		channel := channelResponse(&chans[i])
		if itemCount, err := h.itemRepo.GetItemCount(chans[i].ID); err == nil {
			channel["item_count"] = itemCount
		}
		list = append(list, channel)
	}

	c.JSON(http.StatusOK, gin.H{"channels": list, "total": len(list)})
}

func (h *Handler) GetChannelItems(c *gin.Context) {
	id := c.Param("id")

	channel, err := h.channelRepo.GetChannel(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_channel", "channel_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if channel == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel_not_found"})
		return
	}

	limit := defaultItemLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.itemRepo.GetItems(id, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_items", "channel_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	list := make([]gin.H, 0, len(items))
	for i := range items {
		list = append(list, itemResponse(&items[i]))
	}

	c.JSON(http.StatusOK, gin.H{"channel": channelResponse(channel), "items": list, "total": len(list)})
}

func (h *Handler) RefreshChannel(c *gin.Context) {
	id := c.Param("id")

	channel, err := h.channelRepo.GetChannel(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_channel", "channel_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if channel == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel_not_found"})
		return
	}

	task := tasks.NewRefreshChannelTask(*channel, h.refresher)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Failed to enqueue refresh task", "channel_id", id, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue_full"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task":    gin.H{"id": task.ID, "type": task.Type},
	})
}

func (h *Handler) RefreshAll(c *gin.Context) {
	results, err := h.refresher.RefreshAll(c.Request.Context(), refreshBatchSize)
	if err != nil {
		slog.Error("Batch refresh failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	refreshed := 0
	newItems := 0
	for _, result := range results {
		if !result.NotModified {
			refreshed++
		}
		newItems += result.NewItems
	}

	c.JSON(http.StatusOK, gin.H{
		"channels_checked": len(results),
		"channels_updated": refreshed,
		"new_items":        newItems,
	})
}

func (h *Handler) UpdateItemState(c *gin.Context) {
	id := c.Param("id")

	var req itemStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	if req.Read == nil && req.Bookmarked == nil && req.HiddenFromFeed == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_state_changes"})
		return
	}

	err := h.itemRepo.UpdateItemState(id, req.Read, req.Bookmarked, req.HiddenFromFeed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item_not_found"})
			return
		}
		slog.Error("Database error", "operation", "update_item_state", "item_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	item, err := h.itemRepo.GetItem(id)
	if err != nil || item == nil {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "item": itemResponse(item)})
}

func (h *Handler) DiscoverPreview(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_url"})
		return
	}

	feeds, err := h.discoverer.Discover(c.Request.Context(), rawURL)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "discovery_failed", "message": err.Error()})
		return
	}

	list := make([]gin.H, 0, len(feeds))
	for _, found := range feeds {
		list = append(list, gin.H{
			"url":         found.URL,
			"title":       found.Title,
			"description": found.Description,
		})
	}

	c.JSON(http.StatusOK, gin.H{"feeds": list, "total": len(list)})
}

// ListFailures exposes the failed uploads log so operators can triage
// subscriptions and refreshes that could not be stored.
func (h *Handler) ListFailures(c *gin.Context) {
	limit := defaultFailureLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	failures, err := h.failedUploads.GetRecentFailures(limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_failures", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	list := make([]gin.H, 0, len(failures))
	for _, failure := range failures {
		list = append(list, gin.H{
			"id":           failure.ID,
			"link":         failure.Link,
			"error_detail": failure.ErrorDetail,
			"created_at":   failure.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"failures": list, "total": len(list)})
}

// GetFeedByID serves a stored channel back out as RSS 2.0.
func (h *Handler) GetFeedByID(c *gin.Context) {
	id := c.Param("id")

	channel, err := h.channelRepo.GetChannel(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_channel", "channel_id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if channel == nil {
		c.Status(http.StatusNotFound)
		return
	}

	items, err := h.itemRepo.GetItems(id, defaultItemLimit)
	if err != nil {
		slog.Error("Database error", "operation", "get_items", "channel_id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(*channel, items)
	if err != nil {
		slog.Error("RSS generation error", "channel_id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Last-Updated", channel.UpdatedAt.Format(time.RFC3339))

	c.String(http.StatusOK, rss)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if channelCount, err := h.channelRepo.GetChannelCount(); err == nil {
		health["channels"] = channelCount
	}

	c.JSON(http.StatusOK, health)
}

func channelResponse(channel *database.Channel) gin.H {
	return gin.H{
		"id":                   channel.ID,
		"user_id":              channel.UserID,
		"feed_url":             channel.FeedURL,
		"link":                 channel.Link,
		"title":                channel.Title,
		"description":          channel.Description,
		"category":             channel.Category,
		"image_url":            channel.ImageURL,
		"language":             channel.Language,
		"rss_version":          channel.RSSVersion,
		"last_build_date":      channel.LastBuildDate,
		"pub_date_parse_error": channel.ItemPubDateParseError,
		"next_fetch_at":        channel.NextFetchAt,
		"created_at":           channel.CreatedAt,
		"updated_at":           channel.UpdatedAt,
	}
}

func itemResponse(item *database.Item) gin.H {
	return gin.H{
		"id":               item.ID,
		"channel_id":       item.ChannelID,
		"link":             item.Link,
		"title":            item.Title,
		"author":           item.Author,
		"description":      item.Description,
		"image_url":        item.ImageURL,
		"pub_date":         item.PubDate,
		"comments":         item.Comments,
		"read":             item.Read,
		"bookmarked":       item.Bookmarked,
		"hidden_from_feed": item.HiddenFromFeed,
	}
}
