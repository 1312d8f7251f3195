package discovery

import (
	"testing"
)

const rssDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <link>https://example.com</link>
    <description>Example description</description>
    <item>
      <title>First Item</title>
      <link>https://example.com/1</link>
      <description>Item description</description>
    </item>
  </channel>
</rss>`

const atomDoc = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Example</title>
  <subtitle>Atom subtitle</subtitle>
  <link href="https://example.com/"/>
  <entry>
    <title>Entry One</title>
    <link href="https://example.com/1"/>
  </entry>
</feed>`

func TestIsFeedDocument(t *testing.T) {
	if !isFeedDocument([]byte(rssDoc)) {
		t.Error("Expected RSS document to classify as a feed")
	}
	if !isFeedDocument([]byte(atomDoc)) {
		t.Error("Expected Atom document to classify as a feed")
	}
}

func TestIsFeedDocumentRejectsHTML(t *testing.T) {
	html := `<!DOCTYPE html><html><head><title>Page</title></head><body>hi</body></html>`
	if isFeedDocument([]byte(html)) {
		t.Error("Expected HTML document to be rejected")
	}
}

func TestIsFeedDocumentRejectsMultipleRoots(t *testing.T) {
	doc := `<rss version="2.0"><channel></channel></rss><rss version="2.0"><channel></channel></rss>`
	if isFeedDocument([]byte(doc)) {
		t.Error("Expected document with multiple roots to be rejected")
	}
}

func TestIsFeedDocumentRejectsGarbage(t *testing.T) {
	if isFeedDocument([]byte("not xml at all")) {
		t.Error("Expected non-XML input to be rejected")
	}
}

func TestScanFeedHeaderRSS(t *testing.T) {
	title, description := scanFeedHeader([]byte(rssDoc))
	if title != "Example Feed" {
		t.Errorf("Expected title 'Example Feed', got: %s", title)
	}
	if description != "Example description" {
		t.Errorf("Expected description 'Example description', got: %s", description)
	}
}

func TestScanFeedHeaderAtom(t *testing.T) {
	title, description := scanFeedHeader([]byte(atomDoc))
	if title != "Atom Example" {
		t.Errorf("Expected title 'Atom Example', got: %s", title)
	}
	if description != "Atom subtitle" {
		t.Errorf("Expected description 'Atom subtitle', got: %s", description)
	}
}

func TestScanFeedHeaderStopsAtItems(t *testing.T) {
	doc := `<rss version="2.0"><channel><item><title>Item Title</title></item></channel></rss>`
	title, _ := scanFeedHeader([]byte(doc))
	if title != "" {
		t.Errorf("Expected no channel title before first item, got: %s", title)
	}
}
