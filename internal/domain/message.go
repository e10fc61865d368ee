package domain

// ChatMessage is one append-only transcript entry. Seq is assigned locally
// by a monotonic counter and is only a display key, not a causal order.
type ChatMessage struct {
	Seq    uint64 `json:"seq"`
	Author string `json:"author"`
	Text   string `json:"text"`
}
