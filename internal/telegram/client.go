// Package telegram wraps the Bot API surface the bridge needs: sends with
// automatic splitting and markdown fallback, edits, forum topics, typing
// actions, file downloads, and update polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	"golang.org/x/time/rate"
)

// generalTopicID is the implicit "General" topic of a forum supergroup.
// The API rejects sends that name it explicitly, so it is omitted.
const generalTopicID = 1

// Fatal transport errors. Everything else is transient: logged by the
// caller and retried on the next occasion.
var (
	ErrUnauthorized = errors.New("telegram: unauthorized")
	ErrConflict     = errors.New("telegram: conflicting getUpdates consumer")
	ErrChatNotFound = errors.New("telegram: chat not found")
)

// api is the slice of telego.Bot this package calls. Narrow so tests can
// substitute a fake.
type api interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
	CreateForumTopic(ctx context.Context, params *telego.CreateForumTopicParams) (*telego.ForumTopic, error)
	EditForumTopic(ctx context.Context, params *telego.EditForumTopicParams) error
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	GetUpdates(ctx context.Context, params *telego.GetUpdatesParams) ([]telego.Update, error)
	SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error
	GetMe(ctx context.Context) (*telego.User, error)
}

// Client is a rate-limited Bot API client bound to one configured chat.
type Client struct {
	bot      api
	token    string
	chatID   int64
	threadID int

	limiter *rate.Limiter
	httpc   *http.Client

	botID       int64
	botUsername string
}

// NewClient builds a client for the configured chat. sendURL overrides the
// Bot API base (empty means api.telegram.org).
func NewClient(token string, chatID int64, threadID int, sendURL string) (*Client, error) {
	var opts []telego.BotOption
	if sendURL != "" {
		opts = append(opts, telego.WithAPIServer(sendURL))
	}
	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Client{
		bot:      bot,
		token:    token,
		chatID:   chatID,
		threadID: threadID,
		limiter:  rate.NewLimiter(rate.Every(time.Second/25), 5),
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// ChatID returns the configured chat.
func (c *Client) ChatID() int64 { return c.chatID }

// ThreadID returns the configured forum topic, 0 if unset.
func (c *Client) ThreadID() int { return c.threadID }

// Identify resolves and caches the bot's own identity, used to drop the
// bot's echoes during ingest.
func (c *Client) Identify(ctx context.Context) error {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return classify(err)
	}
	c.botID = me.ID
	c.botUsername = me.Username
	return nil
}

// BotID returns the bot's own user id after Identify.
func (c *Client) BotID() int64 { return c.botID }

// IsFatal reports whether err is one of the non-retriable transport errors.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrConflict) || errors.Is(err, ErrChatNotFound)
}

// classify maps API failures onto the fatal sentinels, passing everything
// else through as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode {
		case 401:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Description)
		case 409:
			return fmt.Errorf("%w: %s", ErrConflict, apiErr.Description)
		case 400:
			if strings.Contains(strings.ToLower(apiErr.Description), "chat not found") {
				return fmt.Errorf("%w: %s", ErrChatNotFound, apiErr.Description)
			}
		}
		return err
	}
	low := strings.ToLower(err.Error())
	switch {
	case strings.Contains(low, "unauthorized"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case strings.Contains(low, "chat not found"):
		return fmt.Errorf("%w: %v", ErrChatNotFound, err)
	}
	return err
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
