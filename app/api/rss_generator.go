package api

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/feedloom/feedloom/app/cfg"
	"github.com/feedloom/feedloom/app/database"
)

// RSSGenerator re-exports a stored channel as RSS 2.0 so any ordinary feed
// reader can consume the normalized form.
type RSSGenerator struct{}

func NewRSSGenerator() *RSSGenerator {
	return &RSSGenerator{}
}

func (g *RSSGenerator) Run(channel database.Channel, items []database.Item) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", channel.Title, 4)
	g.writeElement(&buf, "link", channel.Link, 4)
	description := channel.Description
	if description == "" {
		description = fmt.Sprintf("Normalized feed from %s", channel.FeedURL)
	}
	g.writeElement(&buf, "description", description, 4)

	selfLink := fmt.Sprintf("http://localhost:%s/feeds/%s", cfg.Get().Port, channel.ID)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if channel.LastBuildDate != nil {
		lastBuildDate = *channel.LastBuildDate
	} else if len(items) > 0 {
		if items[0].PubDate != (time.Time{}) {
			lastBuildDate = items[0].PubDate
		} else if items[0].CreatedAt != (time.Time{}) {
			lastBuildDate = items[0].CreatedAt
		}
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)

	g.writeElement(&buf, "generator", fmt.Sprintf("Feedloom/%s", cfg.Get().Version), 4)
	if channel.Language != "" {
		g.writeElement(&buf, "language", channel.Language, 4)
	}
	if channel.Copyright != "" {
		g.writeElement(&buf, "copyright", channel.Copyright, 4)
	}
	for _, category := range strings.Split(channel.Category, "/") {
		if category != "" {
			g.writeElement(&buf, "category", category, 4)
		}
	}

	if channel.ImageURL != "" {
		buf.WriteString("    <image>\n")
		g.writeElement(&buf, "url", channel.ImageURL, 6)
		g.writeElement(&buf, "title", channel.Title, 6)
		g.writeElement(&buf, "link", channel.Link, 6)
		buf.WriteString("    </image>\n")
	}

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *RSSGenerator) writeItem(buf *bytes.Buffer, item database.Item) {
	buf.WriteString("    <item>\n")

	// The item link doubles as the GUID: it is the per-channel identity key
	buf.WriteString("      <guid isPermaLink=\"true\">")
	xml.EscapeText(buf, []byte(item.Link))
	buf.WriteString("</guid>\n")

	if item.Title != "" {
		g.writeElement(buf, "title", item.Title, 6)
	}

	g.writeElement(buf, "link", item.Link, 6)
	itemDescription := item.Description
	if itemDescription == "" {
		itemDescription = "No description available"
	}
	g.writeElement(buf, "description", itemDescription, 6)

	if item.Content != "" && item.Content != item.Description {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(item.Content)
		buf.WriteString("]]></content:encoded>\n")
	}

	g.writeElement(buf, "pubDate", item.PubDate.Format(time.RFC1123Z), 6)

	if item.Author != "" {
		g.writeElement(buf, "author", item.Author, 6)
	}

	if item.Comments != "" {
		g.writeElement(buf, "comments", item.Comments, 6)
	}

	// RSS 2.0 spec: url, length, type are all required on enclosure
	if item.EnclosureURL != "" && item.EnclosureType != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"%d\" type=\"%s\" />\n",
			html.EscapeString(item.EnclosureURL),
			item.EnclosureLength,
			html.EscapeString(item.EnclosureType)))
	}

	buf.WriteString("    </item>\n")
}

func (g *RSSGenerator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
