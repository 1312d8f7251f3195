package api

import (
	"strings"
	"testing"
	"time"

	"github.com/feedloom/feedloom/app/cfg"
	"github.com/feedloom/feedloom/app/database"
)

func TestRSSGeneratorRun(t *testing.T) {
	cfg.SetForTesting(&cfg.Cfg{Port: "8080", Version: "1.0"})

	generator := NewRSSGenerator()

	lastBuild := time.Date(2023, 7, 3, 12, 0, 0, 0, time.UTC)
	channel := database.Channel{
		ID:            "channel-1",
		FeedURL:       "https://example.com/feed.xml",
		Link:          "https://example.com",
		Title:         "Test Channel",
		Description:   "Test description",
		Category:      "tech/programming",
		ImageURL:      "https://example.com/icon.png",
		Language:      "en",
		LastBuildDate: &lastBuild,
	}

	items := []database.Item{
		{
			ID:              "item-1",
			Link:            "https://example.com/item1",
			Title:           "Test Item 1",
			Author:          "test@example.com (Test Author)",
			Description:     "Test description 1",
			Content:         "Test content 1",
			PubDate:         time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC),
			Comments:        "https://example.com/item1/comments",
			EnclosureURL:    "https://example.com/item1.mp3",
			EnclosureType:   "audio/mpeg",
			EnclosureLength: 1024,
		},
		{
			ID:          "item-2",
			Link:        "https://example.com/item2",
			Title:       "Test Item 2",
			Description: "Test description 2",
			PubDate:     time.Date(2023, 7, 2, 10, 0, 0, 0, time.UTC),
		},
	}

	rss, err := generator.Run(channel, items)
	if err != nil {
		t.Fatalf("Failed to generate RSS: %v", err)
	}

	if !strings.Contains(rss, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("RSS should contain XML declaration")
	}

	if !strings.Contains(rss, `<rss version="2.0"`) {
		t.Error("RSS should contain RSS 2.0 declaration")
	}

	if !strings.Contains(rss, "<title>Test Channel</title>") {
		t.Error("RSS should contain channel title")
	}

	if !strings.Contains(rss, "<link>https://example.com</link>") {
		t.Error("RSS should contain channel link")
	}

	if !strings.Contains(rss, "<generator>Feedloom/1.0</generator>") {
		t.Error("RSS should contain generator")
	}

	if !strings.Contains(rss, "<category>tech</category>") || !strings.Contains(rss, "<category>programming</category>") {
		t.Error("RSS should split the category path into category elements")
	}

	if !strings.Contains(rss, "<image>") {
		t.Error("RSS should contain image element when image URL is provided")
	}

	if !strings.Contains(rss, `<guid isPermaLink="true">https://example.com/item1</guid>`) {
		t.Error("RSS should use the item link as permalink GUID")
	}

	if !strings.Contains(rss, "<author>test@example.com (Test Author)</author>") {
		t.Error("RSS should contain item author")
	}

	if !strings.Contains(rss, "<comments>https://example.com/item1/comments</comments>") {
		t.Error("RSS should contain item comments link")
	}

	if !strings.Contains(rss, `<enclosure url="https://example.com/item1.mp3" length="1024" type="audio/mpeg" />`) {
		t.Error("RSS should contain item enclosure")
	}

	if !strings.Contains(rss, "<content:encoded><![CDATA[Test content 1]]></content:encoded>") {
		t.Error("RSS should wrap extracted content in CDATA")
	}

	if strings.Contains(rss, "<content:encoded><![CDATA[Test description 2]]>") {
		t.Error("RSS should not duplicate description into content")
	}

	if !strings.Contains(rss, "Mon, 03 Jul 2023 12:00:00 +0000") {
		t.Error("RSS should format lastBuildDate as RFC1123Z")
	}
}

func TestRSSGeneratorEscapesMarkup(t *testing.T) {
	cfg.SetForTesting(&cfg.Cfg{Port: "8080", Version: "1.0"})

	generator := NewRSSGenerator()

	channel := database.Channel{
		ID:      "channel-1",
		FeedURL: "https://example.com/feed.xml",
		Link:    "https://example.com",
		Title:   "Fish & Chips <Weekly>",
	}

	rss, err := generator.Run(channel, nil)
	if err != nil {
		t.Fatalf("Failed to generate RSS: %v", err)
	}

	if !strings.Contains(rss, "Fish &amp; Chips &lt;Weekly&gt;") {
		t.Error("RSS should escape markup in element text")
	}
	if strings.Contains(rss, "<title>Fish & Chips <Weekly></title>") {
		t.Error("RSS must not emit raw markup from titles")
	}
}
