package discovery

// DiscoveredFeed is one confirmed feed endpoint found while resolving a
// user-supplied URL. Title and Description come from a cheap header scan of
// the document, not a full parse.
type DiscoveredFeed struct {
	URL         string
	FeedXML     string
	Title       string
	Description string
}
