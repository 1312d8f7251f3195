package feed

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// ErrUnparseable marks feed documents that cannot produce a channel: not XML
// at all, or missing the channel link.
var ErrUnparseable = errors.New("unparseable feed definition")

const (
	channelDescriptionLimit = 500
	itemDescriptionLimit    = 1000
)

// Normalizer converts raw RSS 2.0 / Atom XML into the canonical
// channel/item shape. It is a pure function over the document bytes; gofeed
// handles dialect and encoding differences.
type Normalizer struct {
	gofeedParser *gofeed.Parser
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		gofeedParser: gofeed.NewParser(),
	}
}

func (n *Normalizer) Run(data []byte) (*Channel, []Item, error) {
	parsed, err := n.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnparseable, err)
	}

	link := strings.TrimSpace(parsed.Link)
	if link == "" && len(parsed.Links) > 0 {
		link = strings.TrimSpace(parsed.Links[0])
	}
	if link == "" {
		return nil, nil, fmt.Errorf("%w: channel has no link", ErrUnparseable)
	}

	channel := &Channel{
		Link:        link,
		Title:       Sanitize(parsed.Title),
		Description: truncate(Sanitize(parsed.Description), channelDescriptionLimit),
		Category:    strings.Join(parsed.Categories, "/"),
		Language:    parsed.Language,
		Copyright:   parsed.Copyright,
		RSSVersion:  feedVersion(parsed),
		ContentHash: contentHash(data),
	}

	// A channel is always addressable by name, even when the feed omits its
	// own title.
	if channel.Title == "" {
		channel.Title = hostnameOf(link)
	}

	if parsed.Image != nil {
		channel.ImageURL = parsed.Image.URL
	}

	if parsed.UpdatedParsed != nil {
		channel.LastBuildDate = parsed.UpdatedParsed
	} else if parsed.PublishedParsed != nil {
		channel.LastBuildDate = parsed.PublishedParsed
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, rawItem := range parsed.Items {
		if rawItem == nil || strings.TrimSpace(rawItem.Link) == "" {
			// An item without a link cannot be deduplicated or addressed
			// later, so it is dropped rather than kept with a synthetic key.
			continue
		}

		item, dateOK := n.normalizeItem(rawItem)
		if !dateOK {
			channel.ItemPubDateParseError = true
		}
		items = append(items, item)
	}

	return channel, items, nil
}

func (n *Normalizer) normalizeItem(rawItem *gofeed.Item) (Item, bool) {
	item := Item{
		Link:        strings.TrimSpace(rawItem.Link),
		Title:       Sanitize(rawItem.Title),
		Author:      extractAuthor(rawItem),
		Description: truncate(Sanitize(rawItem.Description), itemDescriptionLimit),
		ImageURL:    extractImageURL(rawItem),
		Comments:    rawItem.Custom["comments"],
	}

	dateOK := true
	switch {
	case rawItem.PublishedParsed != nil:
		item.PubDate = *rawItem.PublishedParsed
	case rawItem.UpdatedParsed != nil:
		item.PubDate = *rawItem.UpdatedParsed
	default:
		// Missing or unparseable date: substitute "now" and flag it at the
		// channel level instead of failing the item.
		item.PubDate = time.Now().UTC()
		dateOK = false
	}

	// RSS 2.0 allows a single enclosure per item
	if len(rawItem.Enclosures) > 0 && rawItem.Enclosures[0] != nil {
		enclosure := rawItem.Enclosures[0]
		item.EnclosureURL = enclosure.URL
		item.EnclosureType = enclosure.Type
		item.EnclosureLength = parseEnclosureLength(enclosure.Length)
	}

	return item, dateOK
}

// extractImageURL tries, in order: an enclosure with an image MIME type, a
// media:content element marked as an image, and finally the first <img src>
// inside the embedded content HTML. Absence yields an empty string.
func extractImageURL(rawItem *gofeed.Item) string {
	for _, enclosure := range rawItem.Enclosures {
		if enclosure != nil && strings.Contains(strings.ToLower(enclosure.Type), "image") && enclosure.URL != "" {
			return enclosure.URL
		}
	}

	for _, content := range rawItem.Extensions["media"]["content"] {
		medium := strings.ToLower(content.Attrs["medium"])
		mimeType := strings.ToLower(content.Attrs["type"])
		if strings.Contains(medium, "image") || strings.Contains(mimeType, "image") {
			if u := content.Attrs["url"]; u != "" {
				return u
			}
		}
	}

	if rawItem.Content != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawItem.Content)); err == nil {
			if src, ok := doc.Find("img").First().Attr("src"); ok {
				return src
			}
		}
	}

	return ""
}

func extractAuthor(rawItem *gofeed.Item) string {
	if len(rawItem.Authors) > 0 && rawItem.Authors[0] != nil {
		return formatAuthor(rawItem.Authors[0].Name, rawItem.Authors[0].Email)
	}
	if rawItem.Author != nil {
		return formatAuthor(rawItem.Author.Name, rawItem.Author.Email)
	}
	return ""
}

func formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	}
	return email
}

func parseEnclosureLength(raw string) int64 {
	if raw == "" {
		return 0
	}
	length, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return length
}

func feedVersion(parsed *gofeed.Feed) string {
	return strings.TrimSpace(parsed.FeedType + " " + parsed.FeedVersion)
}

func contentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func hostnameOf(link string) string {
	if u, err := url.Parse(link); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return link
}
