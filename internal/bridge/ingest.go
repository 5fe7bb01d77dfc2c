package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/teleclaw/internal/telegram"
)

const (
	// loopBackoff is the recovery pause after an ingest loop failure.
	loopBackoff = 5 * time.Second

	// standbyPause keeps the standby loop cheap between timer checks.
	standbyPause = time.Second
)

// Run drives the ingest-and-heartbeat loop until ctx ends. nudges may be
// nil; when set, a receive triggers an immediate standby check.
func (b *Bridge) Run(ctx context.Context, nudges <-chan struct{}) error {
	b.coord.OnPromote(func() { b.announceActive() })

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.coord.Tick(ctx)

		if !b.coord.IsLeader() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-nudges:
				b.coord.CheckNow(ctx)
			case <-time.After(standbyPause):
			}
			continue
		}

		updates, err := b.poller.Poll(ctx, b.coord.LastUpdateID())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("poll failed", "error", err, "retry_in", loopBackoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(loopBackoff):
			}
			continue
		}
		for _, update := range updates {
			b.ingestUpdate(ctx, update)
		}
	}
}

// ingestUpdate filters one update and dispatches survivors to the router.
// The update id commits regardless of filtering so replays stay bounded.
func (b *Bridge) ingestUpdate(ctx context.Context, update telego.Update) {
	defer b.coord.CommitUpdateID(int64(update.UpdateID))

	chatID, threadID, date, fromID := updateOrigin(update)
	if chatID == 0 {
		return
	}
	if chatID != b.cfg.ChatID {
		b.warnForeignChat(ctx, chatID)
		return
	}
	if b.cfg.ThreadID != 0 && threadID != 0 && threadID != b.cfg.ThreadID {
		return
	}
	if fromID != 0 && fromID == b.tg.BotID() {
		return
	}
	if update.Message != nil && date > 0 {
		msgTime := time.Unix(date, 0)
		if msgTime.Before(b.coord.BecameActiveAt()) || msgTime.Before(b.startedAt) {
			slog.Debug("dropping stale update", "update_id", update.UpdateID, "date", date)
			return
		}
	}
	b.routeUpdate(ctx, update)
}

// updateOrigin extracts the addressing fields of either update kind.
func updateOrigin(update telego.Update) (chatID int64, threadID int, date int64, fromID int64) {
	if msg := update.Message; msg != nil {
		chatID = msg.Chat.ID
		threadID = msg.MessageThreadID
		date = msg.Date
		if msg.From != nil {
			fromID = msg.From.ID
		}
		return chatID, threadID, date, fromID
	}
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message != nil {
			chatID = cb.Message.GetChat().ID
		}
		// Thread filtering happens in the callback token itself.
		fromID = cb.From.ID
		return chatID, 0, 0, fromID
	}
	return 0, 0, 0, 0
}

// warnForeignChat records an unexpected chat id and emits one aggregate
// warning per newly seen id.
func (b *Bridge) warnForeignChat(ctx context.Context, chatID int64) {
	isNew, total, lastFive := b.coord.RecordForeignChat(chatID)
	if !isNew {
		return
	}
	text := fmt.Sprintf("⚠️ Ignored updates from %d foreign chat(s). Last seen: %v", total, lastFive)
	if _, err := b.tg.SendMessage(ctx, text, nil); err != nil {
		slog.Warn("foreign chat warning failed", "error", err)
	}
}

// announceActive posts the one-line promotion notice.
func (b *Bridge) announceActive() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	device := "this instance"
	if b.reg != nil {
		device = b.reg.DeviceID()
	}
	text := fmt.Sprintf("⚡ %s is now ACTIVE in %s", device, b.cfg.WorkingDir)
	if commit := headCommit(b.cfg.WorkingDir); commit != "" {
		text += "\nAt: " + commit
	}
	if _, err := b.tg.SendMessage(ctx, text, &telegram.SendOpts{}); err != nil {
		slog.Warn("active notice failed", "error", err)
	}
}

// headCommit returns "shorthash subject" for the working directory, or ""
// when it is not a git checkout.
func headCommit(dir string) string {
	out, err := exec.Command("git", "-C", dir, "log", "-1", "--format=%h %s").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
