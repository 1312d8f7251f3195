package discovery

import (
	"bytes"
	"encoding/xml"

	"golang.org/x/net/html/charset"
)

// Root elements that mark a document as a feed: RSS 2.0 and Atom.
var feedRootTags = map[string]bool{
	"rss":  true,
	"feed": true,
}

func newLenientDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// isFeedDocument reports whether data is a feed document: exactly one
// top-level element whose name is a known feed root. Zero or multiple
// top-level elements mean the document is ambiguous or malformed and is
// treated as not-a-feed.
func isFeedDocument(data []byte) bool {
	dec := newLenientDecoder(data)

	depth := 0
	roots := 0
	rootTag := ""

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots == 1 {
					rootTag = t.Name.Local
				}
			}
			depth++
		case xml.EndElement:
			if depth > 0 {
				depth--
			}
		}
	}

	return roots == 1 && feedRootTags[rootTag]
}

// scanFeedHeader pulls the channel title and description out of a feed
// document without a full parse. It reads tokens up to the first item/entry,
// taking the first title and the first description (RSS) or subtitle (Atom).
func scanFeedHeader(data []byte) (title, description string) {
	dec := newLenientDecoder(data)

	current := ""
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if name == "item" || name == "entry" {
				return title, description
			}
			current = name
		case xml.EndElement:
			current = ""
		case xml.CharData:
			text := string(bytes.TrimSpace(t))
			if text == "" {
				break
			}
			switch current {
			case "title":
				if title == "" {
					title = text
				}
			case "description", "subtitle":
				if description == "" {
					description = text
				}
			}
		}

		if title != "" && description != "" {
			return title, description
		}
	}

	return title, description
}
