package bridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/teleclaw/internal/opencode"
)

func TestIngestCommitsEveryUpdateID(t *testing.T) {
	b, _, agent := newTestBridge(t)
	ctx := context.Background()

	foreign := userMessage("hi")
	foreign.Chat.ID = testChatID + 1

	wrongThread := userMessage("hi")
	wrongThread.MessageThreadID = testThreadID + 1

	selfEcho := userMessage("echo")
	selfEcho.From = &telego.User{ID: 42} // the bot's own id

	stale := userMessage("old news")
	stale.Date = time.Now().Add(-24 * time.Hour).Unix()

	for i, msg := range []*telego.Message{foreign, wrongThread, selfEcho, stale} {
		b.ingestUpdate(ctx, messageUpdate(1000+i, msg))
	}

	if got := b.coord.LastUpdateID(); got != 1003 {
		t.Fatalf("LastUpdateID = %d, want 1003 (filtered updates still commit)", got)
	}
	if agent.promptCount() != 0 {
		t.Fatal("filtered updates must not reach the router")
	}
}

func TestIngestRoutesMatchingUpdate(t *testing.T) {
	b, _, agent := newTestBridge(t)

	b.ingestUpdate(context.Background(), messageUpdate(2000, userMessage("hello there")))

	if agent.promptCount() != 1 {
		t.Fatal("matching update not routed")
	}
	if got := b.coord.LastUpdateID(); got != 2000 {
		t.Fatalf("LastUpdateID = %d", got)
	}
}

func TestIngestStaleDateBeforePromotion(t *testing.T) {
	b, _, agent := newTestBridge(t)

	// Dated before the coordinator became active: history, not input.
	old := userMessage("replayed")
	old.Date = b.coord.BecameActiveAt().Add(-time.Minute).Unix()
	b.ingestUpdate(context.Background(), messageUpdate(3000, old))

	if agent.promptCount() != 0 {
		t.Fatal("pre-promotion message must be dropped")
	}
}

func TestForeignChatWarningOncePerChat(t *testing.T) {
	b, tg, _ := newTestBridge(t)
	ctx := context.Background()

	foreign := func(chatID int64, updateID int) telego.Update {
		msg := userMessage("spam")
		msg.Chat.ID = chatID
		return messageUpdate(updateID, msg)
	}

	b.ingestUpdate(ctx, foreign(555, 1))
	b.ingestUpdate(ctx, foreign(555, 2)) // repeat, no second warning
	b.ingestUpdate(ctx, foreign(777, 3)) // new chat, warns again

	texts := tg.sentTexts()
	if len(texts) != 2 {
		t.Fatalf("warnings = %d, want 2: %v", len(texts), texts)
	}
	if !strings.Contains(texts[1], "2 foreign chat(s)") {
		t.Fatalf("second warning = %q, want running total", texts[1])
	}
	if !strings.Contains(texts[1], "777") {
		t.Fatalf("second warning = %q, want last seen ids", texts[1])
	}
}

func TestIngestCallbackPassesThreadFilter(t *testing.T) {
	b, _, agent := newTestBridge(t)

	putQuestion(b, "req_cb", opencode.Question{Text: "Proceed?", Options: []string{"Yes"}})
	update := telego.Update{
		UpdateID: 4000,
		CallbackQuery: &telego.CallbackQuery{
			ID:      "cb_1",
			From:    telego.User{ID: 1},
			Message: &telego.Message{Chat: telego.Chat{ID: testChatID}},
			Data:    questionCallback(0, "0").Data,
		},
	}
	b.ingestUpdate(context.Background(), update)

	agent.mu.Lock()
	answers := agent.answers["req_cb"]
	agent.mu.Unlock()
	if len(answers) != 1 || answers[0][0] != "Yes" {
		t.Fatalf("answers = %v", answers)
	}
}
