package events

// Topic constants for product lifecycle events that affect pricing.
const (
	TopicProductUpdated = "product.updated"
	TopicProductSaved   = "product.saved"
)

// DefaultTopics returns the topics that trigger quote invalidation.
func DefaultTopics() []string {
	return []string{
		TopicProductUpdated,
		TopicProductSaved,
	}
}

// TopicForSource maps the short source name used by the admin endpoint onto a topic.
func TopicForSource(source string) (string, bool) {
	switch source {
	case "updated", TopicProductUpdated:
		return TopicProductUpdated, true
	case "saved", TopicProductSaved:
		return TopicProductSaved, true
	default:
		return "", false
	}
}
