package telegram

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
)

// Poller yields Telegram updates newer than a committed id. Both the
// direct long-poll path and the proxy path satisfy it.
type Poller interface {
	Poll(ctx context.Context, since int64) ([]telego.Update, error)
}

const longPollTimeout = 30 // seconds

var allowedUpdates = []string{"message", "callback_query"}

// LongPollUpdates runs one getUpdates long poll, returning updates with
// id greater than since.
func (c *Client) LongPollUpdates(ctx context.Context, since int64) ([]telego.Update, error) {
	updates, err := c.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:         int(since) + 1,
		Timeout:        longPollTimeout,
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return nil, classify(err)
	}
	return updates, nil
}

// Poll makes a Client satisfy Poller via the direct long-poll path.
func (c *Client) Poll(ctx context.Context, since int64) ([]telego.Update, error) {
	return c.LongPollUpdates(ctx, since)
}

// ProxyPoller fetches updates from a relay endpoint instead of the Bot
// API, for setups where only one consumer may hold getUpdates. Basic-auth
// credentials embedded in the URL move into the Authorization header.
type ProxyPoller struct {
	endpoint *url.URL
	auth     string // Authorization header value, empty if none
	chatID   int64
	threadID int
	httpc    *http.Client
}

// NewProxyPoller parses the relay URL and strips any userinfo into an
// Authorization header.
func NewProxyPoller(rawURL string, chatID int64, threadID int) (*ProxyPoller, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse updates url: %w", err)
	}
	p := &ProxyPoller{
		endpoint: u,
		chatID:   chatID,
		threadID: threadID,
		httpc:    &http.Client{Timeout: (longPollTimeout + 15) * time.Second},
	}
	if u.User != nil {
		user := u.User.Username()
		pass, _ := u.User.Password()
		p.auth = "Basic " + basicAuth(user, pass)
		u.User = nil
	}
	return p, nil
}

type proxyUpdate struct {
	Payload  telego.Update `json:"payload"`
	UpdateID int64         `json:"update_id"`
}

type proxyResponse struct {
	Updates []proxyUpdate `json:"updates"`
}

// Poll fetches updates newer than since from the relay.
func (p *ProxyPoller) Poll(ctx context.Context, since int64) ([]telego.Update, error) {
	u := *p.endpoint
	q := u.Query()
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("chat_id", strconv.FormatInt(p.chatID, 10))
	if p.threadID != 0 {
		q.Set("thread_id", strconv.Itoa(p.threadID))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if p.auth != "" {
		req.Header.Set("Authorization", p.auth)
	}
	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll updates proxy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("updates proxy status %d: %s", resp.StatusCode, body)
	}

	var out proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode updates proxy response: %w", err)
	}
	updates := make([]telego.Update, 0, len(out.Updates))
	for _, pu := range out.Updates {
		pu.Payload.UpdateID = int(pu.UpdateID)
		updates = append(updates, pu.Payload)
	}
	return updates, nil
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
