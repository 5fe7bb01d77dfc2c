package stream

const (
	reasoningFullLimit   = 60
	reasoningSegmentSize = 30
)

// formatReasoning renders agent reasoning for Telegram. Short reasoning
// is shown in full; anything longer is elided to its beginning and end,
// with the two segments guaranteed not to overlap.
func formatReasoning(text string) string {
	if text == "" {
		return ""
	}
	r := []rune(text)
	if len(r) <= reasoningFullLimit {
		return "> thinking: " + text
	}
	head := string(r[:reasoningSegmentSize])
	tail := string(r[len(r)-reasoningSegmentSize:])
	return "> thinking: " + head + "…" + tail
}
