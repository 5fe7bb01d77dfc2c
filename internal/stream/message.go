package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nextlevelbuilder/teleclaw/internal/telegram"
)

const (
	// editFloor is the minimum gap between edits to one message.
	editFloor = 2 * time.Second

	// reasoningDebounce is the extra settle time for reasoning updates.
	reasoningDebounce = 2500 * time.Millisecond

	// minSendLen defers creation of near-empty messages.
	minSendLen = 10

	// earlyFlushLen splits a message before it can outgrow the API cap.
	earlyFlushLen = telegram.MessageLimit * 9 / 10
)

// throttledMessage maintains one Telegram message mirroring one streaming
// part.
//
//	created=false → first substantive Update → send → streaming
//	streaming     → Update → edit now or debounce at lastEdit+floor
//	streaming     → markdown edit failure → degraded (buffer until final)
//	any           → Finalize → cancel debounce, full edit
type throttledMessage struct {
	mu sync.Mutex

	send     sendFunc
	edit     editFunc
	format   func(string) string
	floor    time.Duration
	debounce time.Duration
	now      func() time.Time

	messageID  int
	created    bool
	content    string // latest full part text
	splitAt    int    // rune offset already flushed into earlier messages
	lastEdit   time.Time
	timer      *time.Timer
	markdownOk bool
	degraded   bool
}

type sendFunc func(ctx context.Context, text string) (messageID int, usedMarkdown bool, err error)
type editFunc func(ctx context.Context, messageID int, text string) (ok, usedMarkdown bool, err error)

func newThrottledMessage(send sendFunc, edit editFunc, format func(string) string, debounce time.Duration) *throttledMessage {
	if format == nil {
		format = func(s string) string { return s }
	}
	return &throttledMessage{
		send:     send,
		edit:     edit,
		format:   format,
		floor:    editFloor,
		debounce: debounce,
		now:      time.Now,
	}
}

// Update ingests the latest full content of the part.
func (m *throttledMessage) Update(ctx context.Context, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = text

	rendered := m.rendered()
	if !m.created {
		if utf8.RuneCountInString(rendered) <= minSendLen {
			return
		}
		m.sendLocked(ctx, rendered)
		return
	}
	if m.degraded {
		return
	}
	if utf8.RuneCountInString(rendered) >= earlyFlushLen {
		m.earlyFlushLocked(ctx)
		return
	}

	if m.now().Sub(m.lastEdit) >= m.floor {
		m.editLocked(ctx, rendered)
		return
	}
	m.scheduleLocked(ctx)
}

// Finalize cancels any pending debounce and delivers the complete content.
func (m *throttledMessage) Finalize(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()

	rendered := m.rendered()
	if !m.created {
		if rendered == "" {
			return
		}
		m.sendLocked(ctx, rendered)
		return
	}
	ok, usedMarkdown, err := m.edit(ctx, m.messageID, rendered)
	if err != nil || !ok {
		slog.Warn("final stream edit failed", "message_id", m.messageID, "error", err)
		return
	}
	slog.Debug("final stream edit", "message_id", m.messageID, "markdown", usedMarkdown)
}

// Discard releases the debounce timer without a final edit.
func (m *throttledMessage) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

// rendered is the formatted content still owned by the current message.
func (m *throttledMessage) rendered() string {
	r := []rune(m.content)
	if m.splitAt >= len(r) {
		return ""
	}
	return m.format(string(r[m.splitAt:]))
}

func (m *throttledMessage) sendLocked(ctx context.Context, text string) {
	id, usedMarkdown, err := m.send(ctx, text)
	if err != nil {
		slog.Warn("stream send failed", "error", err)
		return
	}
	m.messageID = id
	m.created = true
	m.markdownOk = usedMarkdown
	m.lastEdit = m.now()
}

func (m *throttledMessage) editLocked(ctx context.Context, text string) {
	ok, usedMarkdown, err := m.edit(ctx, m.messageID, text)
	m.lastEdit = m.now()
	if err != nil {
		slog.Warn("stream edit failed", "message_id", m.messageID, "error", err)
		return
	}
	if !ok {
		return
	}
	if m.markdownOk && !usedMarkdown {
		m.markdownOk = false
		m.degraded = true
	}
}

// scheduleLocked arms a single debounce firing at lastEdit + debounce.
func (m *throttledMessage) scheduleLocked(ctx context.Context) {
	if m.timer != nil {
		return // latest content is picked up when it fires
	}
	delay := m.debounce - m.now().Sub(m.lastEdit)
	if delay < 0 {
		delay = 0
	}
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.timer = nil
		if !m.created || m.degraded {
			return
		}
		m.editLocked(ctx, m.rendered())
	})
}

func (m *throttledMessage) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// earlyFlushLocked closes out the current message with the best-boundary
// first half and starts a fresh message with the remainder.
func (m *throttledMessage) earlyFlushLocked(ctx context.Context) {
	m.stopTimerLocked()
	rendered := m.rendered()
	chunks := telegram.SplitMessage(rendered, earlyFlushLen)
	first := chunks[0]
	if ok, _, err := m.edit(ctx, m.messageID, first); err != nil || !ok {
		slog.Warn("early flush edit failed", "message_id", m.messageID, "error", err)
	}
	m.splitAt += len([]rune(first))
	// Skip whitespace consumed by the splitter.
	r := []rune(m.content)
	for m.splitAt < len(r) && (r[m.splitAt] == ' ' || r[m.splitAt] == '\n') {
		m.splitAt++
	}
	m.created = false
	m.messageID = 0
	m.degraded = false
	if rest := m.rendered(); utf8.RuneCountInString(rest) > minSendLen {
		m.sendLocked(ctx, rest)
	}
}
