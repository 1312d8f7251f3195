package api

import (
	"context"

	"github.com/feedloom/feedloom/app/channels"
	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/discovery"
	"github.com/feedloom/feedloom/app/refresh"
	"github.com/feedloom/feedloom/app/tasks"
)

type GeneratorInterface interface {
	Run(channel database.Channel, items []database.Item) (string, error)
}

var _ GeneratorInterface = (*RSSGenerator)(nil)

// Discoverer mirrors the discovery entry point so handlers can be tested
// without the network.
type Discoverer interface {
	Discover(ctx context.Context, seedURL string) ([]discovery.DiscoveredFeed, error)
}

type Handler struct {
	service       *channels.Service
	channelRepo   database.ChannelRepository
	itemRepo      database.ItemRepository
	failedUploads database.FailedUploadRepository
	refresher     *refresh.Refresher
	discoverer    Discoverer
	generator     GeneratorInterface
	scheduler     tasks.TaskSchedulerInterface
}
