package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/teleclaw/internal/pending"
	"github.com/nextlevelbuilder/teleclaw/internal/telegram"
)

// routeUpdate dispatches one filtered update.
func (b *Bridge) routeUpdate(ctx context.Context, update telego.Update) {
	if cb := update.CallbackQuery; cb != nil {
		b.handleCallback(ctx, cb)
		return
	}
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	}
}

// handleMessage applies the classification order: freetext answer first,
// then pending cancellation, then abort, then commands, then prompt.
func (b *Bridge) handleMessage(ctx context.Context, msg *telego.Message) {
	key := b.pendingKey(msg.MessageThreadID)
	text := strings.TrimSpace(msg.Text)

	if q, ok := b.pend.Question(key); ok && q.AwaitingFreetextIdx >= 0 && text != "" {
		b.answerFreetext(ctx, q, text)
		return
	}

	if q, p := b.pend.Drain(key); q != nil || p != nil {
		b.cancelPending(ctx, q, p)
		// The message still gets processed below.
	}

	if strings.EqualFold(text, "x") {
		b.abortSession(ctx, msg.MessageThreadID)
		return
	}

	if strings.HasPrefix(text, "/") {
		if b.handleCommand(ctx, msg, text) {
			return
		}
	}

	b.submitPrompt(ctx, msg)
}

// handleCallback routes a callback query through the question handler,
// then the permission handler. Tokens with no live record expire with an
// alert.
func (b *Bridge) handleCallback(ctx context.Context, cb *telego.CallbackQuery) {
	if qcb, ok := pending.ParseQuestionCallback(cb.Data); ok {
		b.handleQuestionCallback(ctx, cb, qcb)
		return
	}
	if pcb, ok := pending.ParsePermissionCallback(cb.Data); ok {
		b.handlePermissionCallback(ctx, cb, pcb)
		return
	}
	slog.Debug("unrecognized callback", "data", cb.Data)
	b.tg.AnswerCallback(ctx, cb.ID, "", false)
}

func (b *Bridge) handleQuestionCallback(ctx context.Context, cb *telego.CallbackQuery, qcb pending.QuestionCallback) {
	q, ok := b.pend.Question(qcb.Key)
	if !ok || qcb.QuestionIdx >= len(q.Questions) {
		b.tg.AnswerCallback(ctx, cb.ID, "This has expired.", true)
		return
	}
	question := q.Questions[qcb.QuestionIdx]

	if qcb.Other {
		q.AwaitingFreetextIdx = qcb.QuestionIdx
		b.editQuestionMessage(ctx, q, qcb.QuestionIdx, "Please type your answer:")
		b.tg.AnswerCallback(ctx, cb.ID, "", false)
		return
	}
	if qcb.OptionIdx >= len(question.Options) {
		b.tg.AnswerCallback(ctx, cb.ID, "This has expired.", true)
		return
	}

	label := question.Options[qcb.OptionIdx]
	q.Answers[qcb.QuestionIdx] = []string{label}
	b.editQuestionMessage(ctx, q, qcb.QuestionIdx, fmt.Sprintf("❓ %s\n_%s_", question.Text, label))
	b.tg.AnswerCallback(ctx, cb.ID, "", false)
	b.completeQuestionIfDone(ctx, q)
}

// answerFreetext resolves the question awaiting a typed answer.
func (b *Bridge) answerFreetext(ctx context.Context, q *pending.Question, text string) {
	idx := q.AwaitingFreetextIdx
	q.AwaitingFreetextIdx = -1
	q.Answers[idx] = []string{text}
	b.editQuestionMessage(ctx, q, idx, fmt.Sprintf("❓ %s\n_%s_", q.Questions[idx].Text, text))
	b.completeQuestionIfDone(ctx, q)
}

func (b *Bridge) completeQuestionIfDone(ctx context.Context, q *pending.Question) {
	if !q.Complete() {
		return
	}
	b.pend.ClearQuestion(q.Key)
	if err := b.agent.ReplyQuestion(ctx, q.RequestID, q.Answers); err != nil {
		slog.Warn("question reply failed", "request_id", q.RequestID, "error", err)
	}
}

func (b *Bridge) editQuestionMessage(ctx context.Context, q *pending.Question, idx int, text string) {
	if idx >= len(q.MessageIDs) || q.MessageIDs[idx] == 0 {
		return
	}
	if _, err := b.tg.EditMessage(ctx, q.MessageIDs[idx], text, nil); err != nil {
		slog.Warn("question edit failed", "error", err)
	}
}

func (b *Bridge) handlePermissionCallback(ctx context.Context, cb *telego.CallbackQuery, pcb pending.PermissionCallback) {
	p, ok := b.pend.ClearPermission(pcb.Key)
	if !ok {
		b.tg.AnswerCallback(ctx, cb.ID, "This has expired.", true)
		return
	}
	verdictLabel := map[string]string{
		pending.PermissionOnce:   "accepted",
		pending.PermissionAlways: "always accepted",
		pending.PermissionReject: "denied",
	}[pcb.Verdict]

	if _, err := b.tg.EditMessage(ctx, p.MessageID, fmt.Sprintf("🔐 Permission: %s\n_%s_", p.Title, verdictLabel), nil); err != nil {
		slog.Warn("permission edit failed", "error", err)
	}
	b.tg.AnswerCallback(ctx, cb.ID, "", false)
	if err := b.agent.ReplyPermission(ctx, p.SessionID, p.ID, pcb.Verdict); err != nil {
		slog.Warn("permission reply failed", "id", p.ID, "error", err)
	}
}

// cancelPending rejects interactions displaced by an unrelated message.
func (b *Bridge) cancelPending(ctx context.Context, q *pending.Question, p *pending.Permission) {
	if q != nil {
		if err := b.agent.RejectQuestion(ctx, q.RequestID); err != nil {
			slog.Warn("question reject failed", "request_id", q.RequestID, "error", err)
		}
	}
	if p != nil {
		if err := b.agent.ReplyPermission(ctx, p.SessionID, p.ID, pending.PermissionReject); err != nil {
			slog.Warn("permission reject failed", "id", p.ID, "error", err)
		}
	}
}

func (b *Bridge) abortSession(ctx context.Context, threadID int) {
	id := b.SessionID()
	if id == "" {
		return
	}
	if err := b.agent.Abort(ctx, id); err != nil {
		slog.Warn("abort failed", "session", id, "error", err)
		b.reply(ctx, threadID, "⚠️ Abort failed: "+err.Error())
	}
}

// pendingKey builds the registry key for a message's topic, falling back
// to the configured one.
func (b *Bridge) pendingKey(threadID int) pending.Key {
	if threadID == 0 {
		threadID = b.cfg.ThreadID
	}
	return pending.Key{ChatID: b.cfg.ChatID, ThreadID: threadID}
}

func (b *Bridge) reply(ctx context.Context, threadID int, text string) {
	if _, err := b.tg.SendMessage(ctx, text, &telegram.SendOpts{ThreadID: threadID}); err != nil {
		slog.Warn("reply failed", "error", err)
	}
}
