package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/teleclaw/internal/opencode"
	"github.com/nextlevelbuilder/teleclaw/internal/pending"
)

type sentMsg struct {
	ThreadID int
	Text     string
	Markup   *telego.InlineKeyboardMarkup
}

type fakeSender struct {
	mu     sync.Mutex
	sends  []sentMsg
	edits  []sentMsg
	nextID int
}

func (f *fakeSender) Send(_ context.Context, threadID int, text string, markup *telego.InlineKeyboardMarkup) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMsg{threadID, text, markup})
	f.nextID++
	return f.nextID, true, nil
}

func (f *fakeSender) Edit(_ context.Context, messageID int, text string, markup *telego.InlineKeyboardMarkup) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMsg{messageID, text, markup})
	return true, true, nil
}

func (f *fakeSender) StartTyping(threadID int, interval time.Duration) func() {
	return func() {}
}

func (f *fakeSender) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends), len(f.edits)
}

func (f *fakeSender) sent() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sends...)
}

type fakeTopics struct{ threadID int }

func (f *fakeTopics) ThreadFor(context.Context, string) (int, error) { return f.threadID, nil }

type fakeAgent struct {
	mu          sync.Mutex
	rejected    []string
	permReplies []string
}

func (f *fakeAgent) RejectQuestion(_ context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, requestID)
	return nil
}

func (f *fakeAgent) ReplyPermission(_ context.Context, _, permissionID, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permReplies = append(f.permReplies, permissionID+":"+response)
	return nil
}

func newTestProjector() (*Projector, *fakeSender, *fakeAgent, *pending.Registry) {
	sender := &fakeSender{}
	agent := &fakeAgent{}
	pend := pending.NewRegistry()
	p := New(sender, &fakeTopics{threadID: 5}, agent, pend, nil, -100500)
	return p, sender, agent, pend
}

func event(t *testing.T, typ string, props any) opencode.Event {
	t.Helper()
	raw, err := json.Marshal(props)
	if err != nil {
		t.Fatal(err)
	}
	return opencode.Event{Type: typ, Properties: raw}
}

func registerAssistant(t *testing.T, p *Projector, sessionID, messageID string) {
	t.Helper()
	p.HandleEvent(context.Background(), event(t, opencode.EventMessageUpdated, opencode.MessageUpdated{
		Info: opencode.MessageInfo{ID: messageID, SessionID: sessionID, Role: "assistant"},
	}))
}

func textPart(sessionID, messageID, partID, text string) opencode.PartUpdated {
	return opencode.PartUpdated{Part: opencode.Part{
		ID: partID, MessageID: messageID, SessionID: sessionID,
		Type: opencode.PartText, Text: text,
	}}
}

func TestTextStreamThrottle(t *testing.T) {
	p, sender, _, _ := newTestProjector()
	ctx := context.Background()
	registerAssistant(t, p, "ses_1", "msg_1")

	var full strings.Builder
	full.WriteString("The answer begins here")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&full, " and continues with part %d", i)
		p.HandleEvent(ctx, event(t, opencode.EventPartUpdated, textPart("ses_1", "msg_1", "prt_1", full.String())))
	}

	sends, edits := sender.counts()
	if sends != 1 {
		t.Fatalf("sends = %d, want exactly one message for the burst", sends)
	}
	if edits > 1 {
		t.Fatalf("edits = %d before step-finish, want at most 1", edits)
	}

	p.HandleEvent(ctx, event(t, opencode.EventPartUpdated, opencode.PartUpdated{Part: opencode.Part{
		ID: "prt_fin", MessageID: "msg_1", SessionID: "ses_1", Type: opencode.PartStepFinish,
	}}))

	sender.mu.Lock()
	last := sender.edits[len(sender.edits)-1]
	sender.mu.Unlock()
	if last.Text != full.String() {
		t.Error("post step-finish edit must carry the full concatenation")
	}
}

func TestToolPartEmittedOnce(t *testing.T) {
	p, sender, _, _ := newTestProjector()
	ctx := context.Background()
	registerAssistant(t, p, "ses_1", "msg_1")

	tool := opencode.PartUpdated{Part: opencode.Part{
		ID: "prt_tool", MessageID: "msg_1", SessionID: "ses_1", Type: opencode.PartTool,
		Tool: "bash", State: &opencode.ToolState{Status: opencode.ToolRunning, Title: "ls -la"},
	}}
	p.HandleEvent(ctx, event(t, opencode.EventPartUpdated, tool))
	p.HandleEvent(ctx, event(t, opencode.EventPartUpdated, tool))

	sends, _ := sender.counts()
	if sends != 1 {
		t.Fatalf("sends = %d, repeated part updates must emit once", sends)
	}
	if !strings.Contains(sender.sent()[0].Text, "ls -la") {
		t.Errorf("tool summary = %q", sender.sent()[0].Text)
	}
}

func TestPartsBufferedUntilRegistration(t *testing.T) {
	p, sender, _, _ := newTestProjector()
	ctx := context.Background()

	p.HandleEvent(ctx, event(t, opencode.EventPartUpdated, textPart("ses_1", "msg_1", "prt_1", "content arriving before the header")))
	if sends, _ := sender.counts(); sends != 0 {
		t.Fatal("parts before message.updated must buffer")
	}

	registerAssistant(t, p, "ses_1", "msg_1")
	if sends, _ := sender.counts(); sends != 1 {
		t.Fatalf("sends = %d, buffered part should drain on registration", sends)
	}
}

func TestIdleFlushesAndClearsState(t *testing.T) {
	p, sender, _, _ := newTestProjector()
	ctx := context.Background()
	registerAssistant(t, p, "ses_1", "msg_1")
	p.HandleEvent(ctx, event(t, opencode.EventPartUpdated, textPart("ses_1", "msg_1", "prt_1", "short")))

	p.HandleEvent(ctx, event(t, opencode.EventSessionIdle, opencode.SessionIdle{SessionID: "ses_1"}))
	if sends, _ := sender.counts(); sends != 1 {
		t.Fatal("idle must flush deferred text")
	}
	p.mu.Lock()
	remaining := len(p.sessions["ses_1"].messages)
	p.mu.Unlock()
	if remaining != 0 {
		t.Errorf("message state after idle = %d, want 0", remaining)
	}
}

func TestAbortedErrorIsOneLiner(t *testing.T) {
	p, sender, _, _ := newTestProjector()
	ctx := context.Background()
	p.HandleEvent(ctx, event(t, opencode.EventSessionError, opencode.SessionError{
		SessionID: "ses_1",
		Error:     json.RawMessage(`{"name":"MessageAbortedError","data":{"message":"aborted"}}`),
	}))

	msgs := sender.sent()
	if len(msgs) != 1 || msgs[0].Text != "Interrupted." {
		t.Fatalf("sent = %+v, want single Interrupted.", msgs)
	}
}

func TestQuestionOpensWithKeyboards(t *testing.T) {
	p, sender, agent, pend := newTestProjector()
	ctx := context.Background()

	qa := opencode.QuestionAsked{
		RequestID: "req_1", SessionID: "ses_1",
		Questions: []opencode.Question{
			{Text: "Pick one", Options: []string{"A", "B"}},
			{Text: "Pick another", Options: []string{"X", "Y"}},
		},
	}
	p.HandleEvent(ctx, event(t, opencode.EventQuestionAsked, qa))

	msgs := sender.sent()
	if len(msgs) != 2 {
		t.Fatalf("sends = %d, want one message per question", len(msgs))
	}
	for _, m := range msgs {
		if m.Markup == nil {
			t.Error("question message missing keyboard")
		}
	}
	q, ok := pend.Question(pending.Key{ChatID: -100500, ThreadID: 5})
	if !ok || q.RequestID != "req_1" || len(q.MessageIDs) != 2 {
		t.Fatalf("registry question = %+v, %v", q, ok)
	}

	// A second request displaces and rejects the first.
	qa2 := qa
	qa2.RequestID = "req_2"
	p.HandleEvent(ctx, event(t, opencode.EventQuestionAsked, qa2))
	agent.mu.Lock()
	defer agent.mu.Unlock()
	if len(agent.rejected) != 1 || agent.rejected[0] != "req_1" {
		t.Errorf("rejected = %v, want displaced req_1", agent.rejected)
	}
}

func TestPermissionOpens(t *testing.T) {
	p, sender, _, pend := newTestProjector()
	ctx := context.Background()

	p.HandleEvent(ctx, event(t, opencode.EventPermissionAsked, opencode.PermissionAsked{
		ID: "perm_1", SessionID: "ses_1", Title: "Run bash: rm -rf build",
	}))

	msgs := sender.sent()
	if len(msgs) != 1 || msgs[0].Markup == nil {
		t.Fatalf("sent = %+v", msgs)
	}
	if len(msgs[0].Markup.InlineKeyboard[0]) != 3 {
		t.Error("permission keyboard should have three verdicts")
	}
	if _, ok := pend.Permission(pending.Key{ChatID: -100500, ThreadID: 5}); !ok {
		t.Error("permission not registered")
	}
}

func TestDiffSentOnStepFinish(t *testing.T) {
	p, sender, _, _ := newTestProjector()
	ctx := context.Background()
	registerAssistant(t, p, "ses_1", "msg_1")

	input, _ := json.Marshal(map[string]string{
		"filePath":  "main.go",
		"oldString": "old line",
		"newString": "new line",
	})
	p.HandleEvent(ctx, event(t, opencode.EventPartUpdated, opencode.PartUpdated{Part: opencode.Part{
		ID: "prt_edit", MessageID: "msg_1", SessionID: "ses_1", Type: opencode.PartTool,
		Tool: "edit", State: &opencode.ToolState{Status: opencode.ToolCompleted, Input: input},
	}}))
	if sends, _ := sender.counts(); sends != 0 {
		t.Fatal("edit diff must wait for step-finish")
	}

	p.HandleEvent(ctx, event(t, opencode.EventPartUpdated, opencode.PartUpdated{Part: opencode.Part{
		ID: "prt_fin", MessageID: "msg_1", SessionID: "ses_1", Type: opencode.PartStepFinish,
	}}))
	msgs := sender.sent()
	if len(msgs) != 1 {
		t.Fatalf("sends after step-finish = %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "- old line") || !strings.Contains(msgs[0].Text, "+ new line") {
		t.Errorf("diff preview missing: %q", msgs[0].Text)
	}
}
