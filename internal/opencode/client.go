package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout marks an agent call that exceeded its deadline. The caller
// may restart the agent process and retry once.
var ErrTimeout = errors.New("opencode: request timed out")

const requestTimeout = 2 * time.Minute

// Client is the HTTP surface of a local opencode server.
type Client struct {
	baseURL string
	httpc   *http.Client

	// restart, when set, relaunches the agent process after a timeout so
	// the call can be retried once.
	restart func(ctx context.Context) error
}

// NewClient builds a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: requestTimeout},
	}
}

// BaseURL returns the configured server address.
func (c *Client) BaseURL() string { return c.baseURL }

// OnTimeoutRestart registers the agent relaunch hook used for the
// restart-then-retry path.
func (c *Client) OnTimeoutRestart(fn func(ctx context.Context) error) { c.restart = fn }

// Session is the server's session object.
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Model identifies a provider/model pair.
type Model struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

func (m Model) String() string { return m.ProviderID + "/" + m.ModelID }

// ParseModel splits "provider/model" into a Model.
func ParseModel(s string) (Model, bool) {
	provider, model, ok := strings.Cut(s, "/")
	if !ok || provider == "" || model == "" {
		return Model{}, false
	}
	return Model{ProviderID: provider, ModelID: model}, true
}

// TitleResult is the reply of the title-generation RPC.
type TitleResult struct {
	Type  string `json:"type"` // "title" or "unknown"
	Value string `json:"value"`
}

// CreateSession opens a new session.
func (c *Client) CreateSession(ctx context.Context, title string) (Session, error) {
	var out Session
	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}
	err := c.do(ctx, http.MethodPost, "/session", body, &out)
	return out, err
}

// RenameSession updates a session's title.
func (c *Client) RenameSession(ctx context.Context, sessionID, title string) error {
	return c.do(ctx, http.MethodPatch, "/session/"+sessionID, map[string]string{"title": title}, nil)
}

// Prompt submits a user turn. Parts carry text and data-URL file parts;
// a non-zero model overrides the session default for this turn.
func (c *Client) Prompt(ctx context.Context, sessionID string, parts []Part, model Model) error {
	body := map[string]any{"parts": parts}
	if model.ProviderID != "" {
		body["model"] = model
	}
	return c.do(ctx, http.MethodPost, "/session/"+sessionID+"/message", body, nil)
}

// Command forwards a named command (plan, build, review) to the session.
func (c *Client) Command(ctx context.Context, sessionID, command, arguments string) error {
	body := map[string]string{"command": command}
	if arguments != "" {
		body["arguments"] = arguments
	}
	return c.do(ctx, http.MethodPost, "/session/"+sessionID+"/command", body, nil)
}

// Abort cancels the session's in-flight turn.
func (c *Client) Abort(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/session/"+sessionID+"/abort", nil, nil)
}

// Models lists every provider/model pair the server knows.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	var out struct {
		Providers []struct {
			ID     string `json:"id"`
			Models map[string]struct {
				ID string `json:"id"`
			} `json:"models"`
		} `json:"providers"`
	}
	if err := c.do(ctx, http.MethodGet, "/config/providers", nil, &out); err != nil {
		return nil, err
	}
	var models []Model
	for _, p := range out.Providers {
		for id := range p.Models {
			models = append(models, Model{ProviderID: p.ID, ModelID: id})
		}
	}
	return models, nil
}

// ReplyQuestion delivers the ordered answer lists for a question request.
func (c *Client) ReplyQuestion(ctx context.Context, requestID string, answers [][]string) error {
	return c.do(ctx, http.MethodPost, "/question/"+requestID+"/reply", map[string]any{"answers": answers}, nil)
}

// RejectQuestion cancels a question request.
func (c *Client) RejectQuestion(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/question/"+requestID+"/reject", nil, nil)
}

// ReplyPermission answers a permission request with once, always, or
// reject.
func (c *Client) ReplyPermission(ctx context.Context, sessionID, permissionID, response string) error {
	path := "/session/" + sessionID + "/permissions/" + permissionID
	return c.do(ctx, http.MethodPost, path, map[string]string{"response": response}, nil)
}

// GenerateTitle asks the server to derive a session title from the first
// user message.
func (c *Client) GenerateTitle(ctx context.Context, sessionID, text string) (TitleResult, error) {
	var out TitleResult
	body := map[string]string{"text": text}
	err := c.do(ctx, http.MethodPost, "/session/"+sessionID+"/title", body, &out)
	return out, err
}

// do runs one JSON request. A timeout triggers the restart hook (if any)
// and a single retry.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.doOnce(ctx, method, path, body, out)
	if !errors.Is(err, ErrTimeout) || c.restart == nil {
		return err
	}
	if rerr := c.restart(ctx); rerr != nil {
		return fmt.Errorf("restart after timeout: %w", rerr)
	}
	return c.doOnce(ctx, method, path, body, out)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("opencode %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
