package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// DefaultTypingInterval keeps the indicator alive; Telegram expires a
// typing action after about five seconds.
const DefaultTypingInterval = 2500 * time.Millisecond

// TypingHandle cancels a typing loop. Stop is idempotent.
type TypingHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop ends the typing loop and waits for the final action to finish.
func (h *TypingHandle) Stop() {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}

// StartTyping sends a typing chat action immediately and then every
// interval until the handle is stopped or ctx ends.
func (c *Client) StartTyping(ctx context.Context, threadID int, interval time.Duration) *TypingHandle {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	loopCtx, cancel := context.WithCancel(ctx)
	h := &TypingHandle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			c.sendTypingAction(loopCtx, threadID)
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return h
}

func (c *Client) sendTypingAction(ctx context.Context, threadID int) {
	if ctx.Err() != nil {
		return
	}
	action := tu.ChatAction(tu.ID(c.chatID), telego.ChatActionTyping)
	if tid := c.resolveThreadID(threadID); tid > 0 {
		action.MessageThreadID = tid
	}
	if err := c.bot.SendChatAction(ctx, action); err != nil && ctx.Err() == nil {
		slog.Debug("typing action failed", "error", err)
	}
}
