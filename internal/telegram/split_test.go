package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessageExactLimitUnsplit(t *testing.T) {
	text := strings.Repeat("a", MessageLimit)
	chunks := SplitMessage(text, MessageLimit)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("4096-char text must stay unsplit, got %d chunks", len(chunks))
	}
}

func TestSplitMessageOverLimitSplitsInUpperHalf(t *testing.T) {
	// A space at 3000 is a valid boundary; one at 1000 is below limit/2.
	text := strings.Repeat("a", 1000) + " " + strings.Repeat("b", 1999) + " " + strings.Repeat("c", 1096)
	chunks := SplitMessage(text, MessageLimit)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	first := utf8.RuneCountInString(chunks[0])
	if first < MessageLimit/2 || first > MessageLimit {
		t.Errorf("first chunk length %d outside [2048, 4096]", first)
	}
	if strings.Contains(chunks[0], "c") {
		t.Error("split should land on the space before the c-run")
	}
}

func TestSplitMessagePrefersParagraph(t *testing.T) {
	text := strings.Repeat("a", 2500) + "\n\n" + strings.Repeat("b", 1000) + "\n" + strings.Repeat("c", 2000)
	chunks := SplitMessage(text, MessageLimit)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	// The single newline at 3502 is later, but the paragraph at 2502 wins.
	if got := utf8.RuneCountInString(chunks[0]); got != 2500 {
		t.Errorf("paragraph boundary should cut at 2500, got %d", got)
	}
}

func TestSplitMessagePrefersSentenceOverSpace(t *testing.T) {
	text := strings.Repeat("a", 2999) + ". " + strings.Repeat("b", 500) + " " + strings.Repeat("c", 1000)
	chunks := SplitMessage(text, MessageLimit)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("sentence boundary should win over the later space; chunk ends %q", chunks[0][len(chunks[0])-5:])
	}
}

func TestSplitMessageHardBreakWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", MessageLimit+100)
	chunks := SplitMessage(text, MessageLimit)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if utf8.RuneCountInString(chunks[0]) != MessageLimit {
		t.Errorf("hard break should cut at the limit, got %d", utf8.RuneCountInString(chunks[0]))
	}
	if chunks[0]+chunks[1] != text {
		t.Error("hard break must not lose characters")
	}
}

func TestTruncateTopicName(t *testing.T) {
	exact := strings.Repeat("n", 128)
	if got := TruncateTopicName(exact); got != exact {
		t.Errorf("128-char name must pass verbatim")
	}
	long := strings.Repeat("n", 129)
	got := TruncateTopicName(long)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("truncated name should end with ellipsis: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 126 {
		t.Errorf("truncated name rune count = %d, want 126 (125 + ellipsis)", n)
	}
}
