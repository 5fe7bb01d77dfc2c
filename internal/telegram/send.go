package telegram

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// SendOpts carries the optional parts of a send.
type SendOpts struct {
	ThreadID int // 0 falls back to the configured topic
	Markup   telego.ReplyMarkup
	ReplyTo  int
}

// SendResult reports the last delivered chunk.
type SendResult struct {
	MessageID    int
	UsedMarkdown bool
}

// EditResult reports how an edit landed.
type EditResult struct {
	OK           bool
	UsedMarkdown bool
}

// SendMessage delivers text to the configured chat, splitting it into
// API-sized chunks. Each chunk is tried as markdown first and retried as
// plain text on rejection. Returns the last chunk's message id; a markdown
// fallback on any chunk flips UsedMarkdown off.
func (c *Client) SendMessage(ctx context.Context, text string, opts *SendOpts) (SendResult, error) {
	if opts == nil {
		opts = &SendOpts{}
	}
	chunks := SplitMessage(text, MessageLimit)
	res := SendResult{UsedMarkdown: true}
	for i, chunk := range chunks {
		params := tu.Message(tu.ID(c.chatID), chunk)
		if tid := c.resolveThreadID(opts.ThreadID); tid > 0 {
			params.MessageThreadID = tid
		}
		if i == 0 && opts.ReplyTo != 0 {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: opts.ReplyTo}
		}
		if i == len(chunks)-1 && opts.Markup != nil {
			params.ReplyMarkup = opts.Markup
		}

		params.ParseMode = telego.ModeMarkdown
		if err := c.wait(ctx); err != nil {
			return res, err
		}
		msg, err := c.bot.SendMessage(ctx, params)
		if err != nil {
			if err = classify(err); IsFatal(err) {
				return res, err
			}
			params.ParseMode = ""
			msg, err = c.bot.SendMessage(ctx, params)
			if err != nil {
				return res, classify(err)
			}
			res.UsedMarkdown = false
		}
		res.MessageID = msg.MessageID
	}
	return res, nil
}

// EditMessage rewrites a previously sent message, with the same
// markdown-then-plain fallback as SendMessage. An unchanged-content
// rejection counts as success.
func (c *Client) EditMessage(ctx context.Context, messageID int, text string, markup *telego.InlineKeyboardMarkup) (EditResult, error) {
	params := &telego.EditMessageTextParams{
		ChatID:      tu.ID(c.chatID),
		MessageID:   messageID,
		Text:        text,
		ParseMode:   telego.ModeMarkdown,
		ReplyMarkup: markup,
	}
	if err := c.wait(ctx); err != nil {
		return EditResult{}, err
	}
	_, err := c.bot.EditMessageText(ctx, params)
	if err == nil {
		return EditResult{OK: true, UsedMarkdown: true}, nil
	}
	if isNotModified(err) {
		return EditResult{OK: true, UsedMarkdown: true}, nil
	}
	if err = classify(err); IsFatal(err) {
		return EditResult{}, err
	}

	params.ParseMode = ""
	_, err = c.bot.EditMessageText(ctx, params)
	if err == nil || isNotModified(err) {
		return EditResult{OK: true, UsedMarkdown: false}, nil
	}
	return EditResult{}, classify(err)
}

// AnswerCallback acknowledges a callback query. Best effort: failures are
// logged, never propagated.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) {
	err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		slog.Debug("answer callback failed", "error", err)
	}
}

// resolveThreadID picks the effective topic, dropping the implicit General
// topic which the API refuses on sends.
func (c *Client) resolveThreadID(override int) int {
	tid := override
	if tid == 0 {
		tid = c.threadID
	}
	if tid == generalTopicID {
		return 0
	}
	return tid
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
