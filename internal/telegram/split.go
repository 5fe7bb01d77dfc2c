package telegram

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// MessageLimit is the Bot API text length cap per message.
const MessageLimit = 4096

// topicNameLimit is the forum topic name cap.
const topicNameLimit = 128

// SplitMessage cuts text into chunks of at most limit characters, cutting
// at the best available boundary: paragraph, then newline, then sentence
// end, then space, then a hard break. Boundaries in the first half of the
// window are ignored so chunks stay reasonably balanced.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	r := []rune(text)
	if len(r) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(r) > limit {
		cut := splitIndex(r, limit)
		chunks = append(chunks, strings.TrimRight(string(r[:cut]), " \n"))
		r = []rune(strings.TrimLeft(string(r[cut:]), " \n"))
	}
	if len(r) > 0 {
		chunks = append(chunks, string(r))
	}
	return chunks
}

// splitIndex finds the cut position in r for a chunk of at most limit
// runes. Candidates below limit/2 lose to a harder break class.
func splitIndex(r []rune, limit int) int {
	min := limit / 2

	para, nl, sentence, space := -1, -1, -1, -1
	for i := limit; i >= min; i-- {
		switch {
		case para < 0 && i >= 2 && r[i-1] == '\n' && r[i-2] == '\n':
			para = i
		case nl < 0 && r[i-1] == '\n':
			nl = i
		case sentence < 0 && r[i-1] == ' ' && i >= 2 && isSentenceEnd(r[i-2]):
			sentence = i
		case space < 0 && r[i-1] == ' ':
			space = i
		}
	}
	for _, cand := range []int{para, nl, sentence, space} {
		if cand > 0 {
			return cand
		}
	}
	return limit
}

func isSentenceEnd(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}

// TruncateTopicName caps a forum topic name at the API limit, eliding
// longer names with a trailing ellipsis.
func TruncateTopicName(name string) string {
	if utf8.RuneCountInString(name) <= topicNameLimit {
		return name
	}
	return runewidth.Truncate(name, topicNameLimit-2, "…")
}
