package tasks

import (
	"context"
	"log/slog"

	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/refresh"
)

type RefreshChannelTask struct {
	Task
	channel   database.Channel
	refresher *refresh.Refresher
}

func NewRefreshChannelTask(channel database.Channel, refresher *refresh.Refresher) *RefreshChannelTask {
	return &RefreshChannelTask{
		Task:      NewTask(TaskTypeRefreshChannel, channel.ID),
		channel:   channel,
		refresher: refresher,
	}
}

func (t *RefreshChannelTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.refresher.RefreshChannel(ctx, &t.channel)
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"channel_id", t.ChannelID,
		"duration", t.GetDuration(),
		"not_modified", result.NotModified,
		"new_items", result.NewItems)

	return nil
}
