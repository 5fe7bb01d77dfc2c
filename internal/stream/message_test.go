package stream

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeIO records sends and edits for one throttled message.
type fakeIO struct {
	mu        sync.Mutex
	sends     []string
	edits     []string
	editPlain bool // report edits as having fallen back to plain text
	nextID    int
}

func (f *fakeIO) send(_ context.Context, text string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	f.nextID++
	return f.nextID, true, nil
}

func (f *fakeIO) edit(_ context.Context, _ int, text string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return true, !f.editPlain, nil
}

func (f *fakeIO) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends), len(f.edits)
}

func newFakeMessage(io *fakeIO) (*throttledMessage, *time.Time) {
	m := newThrottledMessage(io.send, io.edit, nil, editFloor)
	now := time.Now()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestDefersShortContent(t *testing.T) {
	io := &fakeIO{}
	m, _ := newFakeMessage(io)
	ctx := context.Background()

	m.Update(ctx, "short")
	if sends, _ := io.counts(); sends != 0 {
		t.Fatal("content at or under 10 chars must not create a message")
	}
	m.Update(ctx, "now this is long enough")
	if sends, _ := io.counts(); sends != 1 {
		t.Fatalf("sends = %d, want 1", sends)
	}
	m.Discard()
}

func TestEditFloorThrottles(t *testing.T) {
	io := &fakeIO{}
	m, now := newFakeMessage(io)
	ctx := context.Background()

	m.Update(ctx, "first substantive content")
	*now = now.Add(500 * time.Millisecond)
	m.Update(ctx, "first substantive content plus more")
	if _, edits := io.counts(); edits != 0 {
		t.Fatal("update inside the floor must debounce, not edit")
	}

	*now = now.Add(3 * time.Second)
	m.Update(ctx, "first substantive content plus more and more")
	if _, edits := io.counts(); edits != 1 {
		t.Fatalf("edits = %d, want immediate edit after the floor", edits)
	}
	m.Discard()
}

func TestMarkdownDegradation(t *testing.T) {
	io := &fakeIO{}
	m, now := newFakeMessage(io)
	ctx := context.Background()

	m.Update(ctx, "first substantive content")
	io.editPlain = true
	*now = now.Add(3 * time.Second)
	m.Update(ctx, "content that breaks markdown *")
	if _, edits := io.counts(); edits != 1 {
		t.Fatalf("edits = %d", edits)
	}

	// Degraded: further updates buffer instead of editing.
	*now = now.Add(3 * time.Second)
	m.Update(ctx, "even more content arriving later")
	if _, edits := io.counts(); edits != 1 {
		t.Fatal("degraded message must not edit incrementally")
	}

	m.Finalize(ctx)
	io.mu.Lock()
	last := io.edits[len(io.edits)-1]
	io.mu.Unlock()
	if last != "even more content arriving later" {
		t.Errorf("final edit must carry the complete content, got %q", last)
	}
}

func TestDebouncePicksUpLatestContent(t *testing.T) {
	io := &fakeIO{}
	m := newThrottledMessage(io.send, io.edit, nil, 50*time.Millisecond)
	m.floor = 50 * time.Millisecond
	ctx := context.Background()

	m.Update(ctx, "first substantive content")
	m.Update(ctx, "replaced once")
	m.Update(ctx, "replaced twice, final pending text")

	deadline := time.After(2 * time.Second)
	for {
		if _, edits := io.counts(); edits >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("debounced edit never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.edits[0] != "replaced twice, final pending text" {
		t.Errorf("debounce must flush the latest content, got %q", io.edits[0])
	}
}

func TestEarlyFlushSplitsMessage(t *testing.T) {
	io := &fakeIO{}
	m, _ := newFakeMessage(io)
	ctx := context.Background()

	m.Update(ctx, "opening paragraph of the answer")
	long := strings.Repeat("a", 2000) + "\n\n" + strings.Repeat("b", 2000)
	m.Update(ctx, long)

	sends, edits := io.counts()
	if sends != 2 {
		t.Fatalf("sends = %d, want original + remainder", sends)
	}
	if edits != 1 {
		t.Fatalf("edits = %d, want one closing edit", edits)
	}
	io.mu.Lock()
	defer io.mu.Unlock()
	if !strings.HasSuffix(io.edits[0], "a") {
		t.Error("closing edit should carry the first half")
	}
	if !strings.HasPrefix(io.sends[1], "b") {
		t.Errorf("remainder message should start the second half, got %q", io.sends[1][:10])
	}
}

func TestFinalizeCreatesUnsentMessage(t *testing.T) {
	io := &fakeIO{}
	m, _ := newFakeMessage(io)
	ctx := context.Background()

	m.Update(ctx, "tiny")
	m.Finalize(ctx)
	sends, _ := io.counts()
	if sends != 1 {
		t.Fatalf("sends = %d, want deferred content delivered on finalize", sends)
	}
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.sends[0] != "tiny" {
		t.Errorf("finalized content = %q", io.sends[0])
	}
}
