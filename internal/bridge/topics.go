package bridge

import (
	"context"
	"fmt"
	"sync"
)

// topicMap resolves agent sessions to forum topics, creating topics for
// sessions that do not have one yet.
type topicMap struct {
	tg            Messenger
	defaultThread int

	mu   sync.Mutex
	byID map[string]int
}

func newTopicMap(tg Messenger, defaultThread int) *topicMap {
	return &topicMap{
		tg:            tg,
		defaultThread: defaultThread,
		byID:          make(map[string]int),
	}
}

// Bind pins sessionID to an existing topic.
func (t *topicMap) Bind(sessionID string, threadID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[sessionID] = threadID
}

// ThreadFor returns the topic for sessionID, creating one when the
// session is unmapped. The first unmapped session takes the configured
// topic instead of a new one.
func (t *topicMap) ThreadFor(ctx context.Context, sessionID string) (int, error) {
	t.mu.Lock()
	if tid, ok := t.byID[sessionID]; ok {
		t.mu.Unlock()
		return tid, nil
	}
	if len(t.byID) == 0 {
		t.byID[sessionID] = t.defaultThread
		t.mu.Unlock()
		return t.defaultThread, nil
	}
	t.mu.Unlock()

	name := fmt.Sprintf("Session %s", shortID(sessionID))
	tid, err := t.tg.CreateForumTopic(ctx, name)
	if err != nil {
		return t.defaultThread, err
	}
	t.Bind(sessionID, tid)
	return tid, nil
}

// Rename updates the topic title for sessionID, skipping the General
// topic which cannot be renamed through this call.
func (t *topicMap) Rename(ctx context.Context, sessionID, title string) error {
	t.mu.Lock()
	tid, ok := t.byID[sessionID]
	t.mu.Unlock()
	if !ok || tid <= 1 {
		return nil
	}
	return t.tg.EditForumTopic(ctx, tid, title)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
