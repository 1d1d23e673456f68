package chat

// ConversationKey derives the canonical fan-out key for the unordered pair (a, b).
// Sorting the identifiers first means both directions of a conversation map to the
// same key, so there is exactly one key per pair and no duplicate delivery paths.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}
