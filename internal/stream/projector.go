// Package stream projects the agent's event stream onto Telegram
// messages: throttled streaming edits for text and reasoning, one-shot
// tool notices, diff previews, and interactive prompt handoff.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/teleclaw/internal/opencode"
	"github.com/nextlevelbuilder/teleclaw/internal/pending"
)

// Sender is the Telegram surface the projector writes through.
type Sender interface {
	Send(ctx context.Context, threadID int, text string, markup *telego.InlineKeyboardMarkup) (messageID int, usedMarkdown bool, err error)
	Edit(ctx context.Context, messageID int, text string, markup *telego.InlineKeyboardMarkup) (ok, usedMarkdown bool, err error)
	StartTyping(threadID int, interval time.Duration) (stop func())
}

// Topics resolves a session to its forum topic, creating one on demand.
type Topics interface {
	ThreadFor(ctx context.Context, sessionID string) (int, error)
}

// Agent is the slice of the agent API the projector needs for cancelling
// displaced interactions.
type Agent interface {
	RejectQuestion(ctx context.Context, requestID string) error
	ReplyPermission(ctx context.Context, sessionID, permissionID, response string) error
}

// DiffUploader publishes a full diff and returns a viewer URL. Nil
// disables uploads; the inline preview is still sent.
type DiffUploader interface {
	Upload(ctx context.Context, filePath, diff string) (string, error)
}

// Projector is the per-session event state machine.
type Projector struct {
	sender Sender
	topics Topics
	agent  Agent
	pend   *pending.Registry
	diff   DiffUploader
	chatID int64

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	threadID int
	typing   *typingState
	messages map[string]*messageState
	buffered map[string][]opencode.Part
	sent     map[string]bool // part ids already emitted
}

type messageState struct {
	text      *throttledMessage
	reasoning *throttledMessage
	diffs     []opencode.Part // completed edit/write parts awaiting step-finish
}

// New creates a projector writing to chatID through sender.
func New(sender Sender, topics Topics, agent Agent, pend *pending.Registry, diff DiffUploader, chatID int64) *Projector {
	return &Projector{
		sender:   sender,
		topics:   topics,
		agent:    agent,
		pend:     pend,
		diff:     diff,
		chatID:   chatID,
		sessions: make(map[string]*sessionState),
	}
}

// HandleEvent routes one agent event. Events arrive ordered from a single
// consumer loop.
func (p *Projector) HandleEvent(ctx context.Context, ev opencode.Event) {
	switch ev.Type {
	case opencode.EventSessionStatus:
		var st opencode.SessionStatus
		if ev.Decode(&st) == nil {
			p.handleStatus(ctx, st)
		}
	case opencode.EventSessionCreated:
		var info opencode.SessionInfo
		if ev.Decode(&info) == nil && info.Info.ID != "" {
			if _, err := p.topics.ThreadFor(ctx, info.Info.ID); err != nil {
				slog.Warn("ensure topic failed", "session", info.Info.ID, "error", err)
			}
		}
	case opencode.EventSessionIdle:
		var idle opencode.SessionIdle
		if ev.Decode(&idle) == nil {
			p.handleIdle(ctx, idle.SessionID)
		}
	case opencode.EventSessionError:
		var serr opencode.SessionError
		if ev.Decode(&serr) == nil {
			p.handleError(ctx, serr)
		}
	case opencode.EventSessionDiff, opencode.EventSessionUpdated:
		// Too verbose to render / no Telegram surface.
	case opencode.EventMessageUpdated:
		var mu opencode.MessageUpdated
		if ev.Decode(&mu) == nil && mu.Info.Role == "assistant" {
			p.registerMessage(ctx, mu.Info)
		}
	case opencode.EventPartUpdated:
		var pu opencode.PartUpdated
		if ev.Decode(&pu) == nil {
			p.handlePart(ctx, pu.Part)
		}
	case opencode.EventQuestionAsked:
		var qa opencode.QuestionAsked
		if ev.Decode(&qa) == nil {
			p.openQuestion(ctx, qa)
		}
	case opencode.EventPermissionAsked:
		var pa opencode.PermissionAsked
		if ev.Decode(&pa) == nil {
			p.openPermission(ctx, pa)
		}
	default:
		p.surfaceUnknown(ctx, ev)
	}
}

// session returns (creating if needed) the state for sessionID. Topic
// resolution happens outside the lock; it may call the Telegram API.
func (p *Projector) session(ctx context.Context, sessionID string) *sessionState {
	p.mu.Lock()
	if s, ok := p.sessions[sessionID]; ok {
		p.mu.Unlock()
		return s
	}
	p.mu.Unlock()

	threadID := 0
	if tid, err := p.topics.ThreadFor(ctx, sessionID); err == nil {
		threadID = tid
	} else {
		slog.Warn("resolve topic failed", "session", sessionID, "error", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok {
		return s
	}
	s := &sessionState{
		threadID: threadID,
		typing:   newTypingState(p.sender.StartTyping),
		messages: make(map[string]*messageState),
		buffered: make(map[string][]opencode.Part),
		sent:     make(map[string]bool),
	}
	p.sessions[sessionID] = s
	return s
}

func (p *Projector) handleStatus(ctx context.Context, st opencode.SessionStatus) {
	s := p.session(ctx, st.SessionID)
	switch st.Status {
	case "busy":
		s.typing.Set(s.threadID, typingIdle)
	case "retry", "error":
		text := fmt.Sprintf("⚠️ session %s", st.Status)
		if st.Message != "" {
			text += ": " + st.Message
		}
		p.notify(ctx, s.threadID, text)
	default:
		s.typing.Release()
	}
}

func (p *Projector) handleIdle(ctx context.Context, sessionID string) {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return
	}
	s.typing.Release()
	for _, ms := range s.messages {
		p.flushMessage(ctx, s, ms)
	}
	p.mu.Lock()
	s.messages = make(map[string]*messageState)
	s.buffered = make(map[string][]opencode.Part)
	p.mu.Unlock()
}

func (p *Projector) handleError(ctx context.Context, serr opencode.SessionError) {
	p.mu.Lock()
	s, ok := p.sessions[serr.SessionID]
	p.mu.Unlock()
	threadID := 0
	if ok {
		s.typing.Release()
		for _, ms := range s.messages {
			if ms.text != nil {
				ms.text.Discard()
			}
			if ms.reasoning != nil {
				ms.reasoning.Discard()
			}
		}
		threadID = s.threadID
	}
	raw := string(serr.Error)
	if strings.Contains(strings.ToLower(raw), "aborted") {
		p.notify(ctx, threadID, "Interrupted.")
		return
	}
	if len(raw) > 500 {
		raw = raw[:500] + "…"
	}
	p.notify(ctx, threadID, "❌ session error: "+raw)
}

// registerMessage marks an assistant message as live and drains parts
// that arrived ahead of it.
func (p *Projector) registerMessage(ctx context.Context, info opencode.MessageInfo) {
	s := p.session(ctx, info.SessionID)
	p.mu.Lock()
	if _, ok := s.messages[info.ID]; !ok {
		s.messages[info.ID] = &messageState{}
	}
	queued := s.buffered[info.ID]
	delete(s.buffered, info.ID)
	p.mu.Unlock()

	for _, part := range queued {
		p.routePart(ctx, s, part)
	}
}

func (p *Projector) handlePart(ctx context.Context, part opencode.Part) {
	s := p.session(ctx, part.SessionID)
	p.mu.Lock()
	_, registered := s.messages[part.MessageID]
	if !registered {
		s.buffered[part.MessageID] = append(s.buffered[part.MessageID], part)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.routePart(ctx, s, part)
}

func (p *Projector) routePart(ctx context.Context, s *sessionState, part opencode.Part) {
	p.mu.Lock()
	ms := s.messages[part.MessageID]
	p.mu.Unlock()
	if ms == nil {
		return
	}

	switch part.Type {
	case opencode.PartText:
		if ms.text == nil {
			ms.text = newThrottledMessage(p.sendOn(s.threadID), p.editOn(), nil, editFloor)
		}
		ms.text.Update(ctx, part.Text)
	case opencode.PartReasoning:
		if ms.reasoning == nil {
			ms.reasoning = newThrottledMessage(p.sendOn(s.threadID), p.editOn(), formatReasoning, reasoningDebounce)
		}
		ms.reasoning.Update(ctx, part.Text)
	case opencode.PartTool:
		p.routeTool(ctx, s, ms, part)
	case opencode.PartStepStart:
		s.typing.Set(s.threadID, typingTool)
	case opencode.PartStepFinish:
		p.flushMessage(ctx, s, ms)
		s.typing.Set(s.threadID, typingIdle)
	case opencode.PartPatch:
		// Structural only.
	default:
		p.emitOnce(ctx, s, part.ID, yamlish(part.Type, part))
	}
}

func (p *Projector) routeTool(ctx context.Context, s *sessionState, ms *messageState, part opencode.Part) {
	if part.State == nil {
		return
	}
	if part.Tool == "todowrite" {
		if part.State.Status == opencode.ToolCompleted {
			if text := renderTodos(part.State.Input); text != "" {
				p.emitOnce(ctx, s, part.ID, text)
			}
		}
		return
	}
	isFileTool := part.Tool == "edit" || part.Tool == "write"
	switch {
	case part.State.Status == opencode.ToolRunning && !isFileTool:
		p.emitOnce(ctx, s, part.ID, formatToolSummary(part.Tool, part.State.Title))
	case part.State.Status == opencode.ToolCompleted && isFileTool:
		p.mu.Lock()
		already := s.sent[part.ID]
		if !already {
			s.sent[part.ID] = true
			ms.diffs = append(ms.diffs, part)
		}
		p.mu.Unlock()
	case part.State.Status == opencode.ToolError:
		p.emitOnce(ctx, s, part.ID+":err", fmt.Sprintf("⚠️ %s failed: %s", part.Tool, part.State.Output))
	}
}

// flushMessage finalizes streaming state and delivers queued diffs.
func (p *Projector) flushMessage(ctx context.Context, s *sessionState, ms *messageState) {
	if ms.reasoning != nil {
		ms.reasoning.Finalize(ctx)
	}
	if ms.text != nil {
		ms.text.Finalize(ctx)
	}
	p.mu.Lock()
	diffs := ms.diffs
	ms.diffs = nil
	p.mu.Unlock()
	for _, part := range diffs {
		p.sendDiff(ctx, s, part)
	}
}

func (p *Projector) sendDiff(ctx context.Context, s *sessionState, part opencode.Part) {
	filePath, diff := buildToolDiff(part.Tool, part.State.Input)
	if diff == "" {
		return
	}
	text := fmt.Sprintf("📝 %s %s\n```\n%s\n```", part.Tool, filePath, diffPreview(diff, diffPreviewLines))

	var markup *telego.InlineKeyboardMarkup
	if p.diff != nil {
		if url, err := p.diff.Upload(ctx, filePath, diff); err == nil && url != "" {
			markup = &telego.InlineKeyboardMarkup{
				InlineKeyboard: [][]telego.InlineKeyboardButton{{
					{Text: "View Diff", URL: url},
				}},
			}
		} else if err != nil {
			slog.Warn("diff upload failed", "file", filePath, "error", err)
		}
	}
	if _, _, err := p.sender.Send(ctx, s.threadID, text, markup); err != nil {
		slog.Warn("diff message failed", "error", err)
	}
}

// emitOnce sends a one-shot message, deduplicated on id.
func (p *Projector) emitOnce(ctx context.Context, s *sessionState, id, text string) {
	if text == "" {
		return
	}
	p.mu.Lock()
	if s.sent[id] {
		p.mu.Unlock()
		return
	}
	s.sent[id] = true
	p.mu.Unlock()
	p.notify(ctx, s.threadID, text)
}

func (p *Projector) openQuestion(ctx context.Context, qa opencode.QuestionAsked) {
	s := p.session(ctx, qa.SessionID)
	key := pending.Key{ChatID: p.chatID, ThreadID: s.threadID}

	q := &pending.Question{
		RequestID:           qa.RequestID,
		SessionID:           qa.SessionID,
		Key:                 key,
		Questions:           qa.Questions,
		MessageIDs:          make([]int, len(qa.Questions)),
		Answers:             make([][]string, len(qa.Questions)),
		AwaitingFreetextIdx: -1,
	}
	for i, question := range qa.Questions {
		markup := pending.QuestionKeyboard(key, i, question.Options)
		id, _, err := p.sender.Send(ctx, s.threadID, "❓ "+question.Text, markup)
		if err != nil {
			slog.Warn("question message failed", "error", err)
		}
		q.MessageIDs[i] = id
	}
	if displaced := p.pend.PutQuestion(q); displaced != nil {
		if err := p.agent.RejectQuestion(ctx, displaced.RequestID); err != nil {
			slog.Warn("reject displaced question failed", "request_id", displaced.RequestID, "error", err)
		}
	}
}

func (p *Projector) openPermission(ctx context.Context, pa opencode.PermissionAsked) {
	s := p.session(ctx, pa.SessionID)
	key := pending.Key{ChatID: p.chatID, ThreadID: s.threadID}

	title := pa.Title
	if title == "" {
		title = pa.Tool
	}
	id, _, err := p.sender.Send(ctx, s.threadID, "🔐 Permission: "+title, pending.PermissionKeyboard(key))
	if err != nil {
		slog.Warn("permission message failed", "error", err)
	}
	perm := &pending.Permission{
		ID:        pa.ID,
		SessionID: pa.SessionID,
		Key:       key,
		MessageID: id,
		Title:     title,
	}
	if displaced := p.pend.PutPermission(perm); displaced != nil {
		if err := p.agent.ReplyPermission(ctx, displaced.SessionID, displaced.ID, pending.PermissionReject); err != nil {
			slog.Warn("reject displaced permission failed", "id", displaced.ID, "error", err)
		}
	}
}

func (p *Projector) surfaceUnknown(ctx context.Context, ev opencode.Event) {
	slog.Debug("unrecognized event", "type", ev.Type)
	p.notify(ctx, 0, yamlish(ev.Type, ev.Properties))
}

func (p *Projector) notify(ctx context.Context, threadID int, text string) {
	if _, _, err := p.sender.Send(ctx, threadID, text, nil); err != nil {
		slog.Warn("notify failed", "error", err)
	}
}

func (p *Projector) sendOn(threadID int) sendFunc {
	return func(ctx context.Context, text string) (int, bool, error) {
		return p.sender.Send(ctx, threadID, text, nil)
	}
}

func (p *Projector) editOn() editFunc {
	return func(ctx context.Context, messageID int, text string) (bool, bool, error) {
		return p.sender.Edit(ctx, messageID, text, nil)
	}
}

// yamlish renders an arbitrary payload as an indented key-value dump,
// good enough to eyeball in a chat.
func yamlish(title string, v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return title
	}
	out := string(raw)
	out = strings.NewReplacer("{", "", "}", "", "\"", "").Replace(out)
	out = strings.TrimSpace(out)
	if len(out) > 800 {
		out = out[:800] + "…"
	}
	return title + ":\n" + out
}
