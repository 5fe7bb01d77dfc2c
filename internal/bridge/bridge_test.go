package bridge

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/teleclaw/internal/config"
	"github.com/nextlevelbuilder/teleclaw/internal/coordinator"
	"github.com/nextlevelbuilder/teleclaw/internal/opencode"
	"github.com/nextlevelbuilder/teleclaw/internal/pending"
	"github.com/nextlevelbuilder/teleclaw/internal/stt"
	"github.com/nextlevelbuilder/teleclaw/internal/telegram"
)

type sentMessage struct {
	Text     string
	ThreadID int
}

type editedMessage struct {
	MessageID int
	Text      string
}

type callbackAck struct {
	ID    string
	Text  string
	Alert bool
}

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []sentMessage
	edits  []editedMessage
	acks   []callbackAck
	topics []string
	files  map[string][]byte
	nextID int
	botID  int64
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{files: make(map[string][]byte), nextID: 500, botID: 42}
}

func (f *fakeMessenger) SendMessage(_ context.Context, text string, opts *telegram.SendOpts) (telegram.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	threadID := 0
	if opts != nil {
		threadID = opts.ThreadID
	}
	f.sent = append(f.sent, sentMessage{Text: text, ThreadID: threadID})
	f.nextID++
	return telegram.SendResult{MessageID: f.nextID, UsedMarkdown: true}, nil
}

func (f *fakeMessenger) EditMessage(_ context.Context, messageID int, text string, _ *telego.InlineKeyboardMarkup) (telegram.EditResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedMessage{MessageID: messageID, Text: text})
	return telegram.EditResult{OK: true, UsedMarkdown: true}, nil
}

func (f *fakeMessenger) AnswerCallback(_ context.Context, callbackID, text string, alert bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, callbackAck{ID: callbackID, Text: text, Alert: alert})
}

func (f *fakeMessenger) DownloadFile(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[fileID], nil
}

func (f *fakeMessenger) CreateForumTopic(_ context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, name)
	return 100 + len(f.topics), nil
}

func (f *fakeMessenger) EditForumTopic(_ context.Context, threadID int, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, name)
	return nil
}

func (f *fakeMessenger) BotID() int64 { return f.botID }

func (f *fakeMessenger) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Text
	}
	return out
}

func (f *fakeMessenger) lastSent(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

type promptCall struct {
	SessionID string
	Parts     []opencode.Part
	Model     opencode.Model
}

type fakeAgent struct {
	mu          sync.Mutex
	prompts     []promptCall
	commands    []string
	aborted     []string
	renames     map[string]string
	answers     map[string][][]string
	rejected    []string
	permReplies map[string]string
	session     opencode.Session
	models      []opencode.Model
	title       opencode.TitleResult
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		session:     opencode.Session{ID: "ses_0123456789abcdef"},
		renames:     make(map[string]string),
		answers:     make(map[string][][]string),
		permReplies: make(map[string]string),
	}
}

func (f *fakeAgent) BaseURL() string { return "http://localhost:4096" }

func (f *fakeAgent) CreateSession(context.Context, string) (opencode.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeAgent) RenameSession(_ context.Context, sessionID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames[sessionID] = title
	return nil
}

func (f *fakeAgent) Prompt(_ context.Context, sessionID string, parts []opencode.Part, model opencode.Model) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, promptCall{SessionID: sessionID, Parts: parts, Model: model})
	return nil
}

func (f *fakeAgent) Command(_ context.Context, sessionID, command, arguments string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command+" "+arguments)
	return nil
}

func (f *fakeAgent) Abort(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, sessionID)
	return nil
}

func (f *fakeAgent) Models(context.Context) ([]opencode.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.models, nil
}

func (f *fakeAgent) ReplyQuestion(_ context.Context, requestID string, answers [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[requestID] = answers
	return nil
}

func (f *fakeAgent) RejectQuestion(_ context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, requestID)
	return nil
}

func (f *fakeAgent) ReplyPermission(_ context.Context, sessionID, permissionID, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permReplies[permissionID] = response
	return nil
}

func (f *fakeAgent) GenerateTitle(context.Context, string, string) (opencode.TitleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

func (f *fakeAgent) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

const (
	testChatID   = int64(-100123)
	testThreadID = 7
)

func newTestBridge(t *testing.T) (*Bridge, *fakeMessenger, *fakeAgent) {
	t.Helper()
	cfg := &config.Config{
		BotToken:   "12345:TESTTOKEN",
		ChatID:     testChatID,
		ThreadID:   testThreadID,
		WorkingDir: t.TempDir(),
	}
	tg := newFakeMessenger()
	agent := newFakeAgent()
	b := New(cfg, tg, nil, agent, coordinator.New(nil), nil, pending.NewRegistry(), stt.New(""), "test")
	b.startedAt = time.Unix(0, 0)
	return b, tg, agent
}

func userMessage(text string) *telego.Message {
	return &telego.Message{
		Chat:            telego.Chat{ID: testChatID},
		MessageThreadID: testThreadID,
		Date:            time.Now().Add(time.Hour).Unix(),
		From:            &telego.User{ID: 1},
		Text:            text,
	}
}

func messageUpdate(id int, msg *telego.Message) telego.Update {
	return telego.Update{UpdateID: id, Message: msg}
}

func containsSubstring(texts []string, sub string) bool {
	for _, s := range texts {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
