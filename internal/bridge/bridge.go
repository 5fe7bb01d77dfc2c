// Package bridge ties the pieces together: it ingests Telegram updates as
// the leader, routes them to commands or agent prompts, and exposes the
// wiring the projector needs to write back.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/teleclaw/internal/config"
	"github.com/nextlevelbuilder/teleclaw/internal/coordinator"
	"github.com/nextlevelbuilder/teleclaw/internal/opencode"
	"github.com/nextlevelbuilder/teleclaw/internal/pending"
	"github.com/nextlevelbuilder/teleclaw/internal/stt"
	"github.com/nextlevelbuilder/teleclaw/internal/telegram"
)

// Messenger is the Telegram surface the bridge writes through.
// *telegram.Client implements it.
type Messenger interface {
	SendMessage(ctx context.Context, text string, opts *telegram.SendOpts) (telegram.SendResult, error)
	EditMessage(ctx context.Context, messageID int, text string, markup *telego.InlineKeyboardMarkup) (telegram.EditResult, error)
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	CreateForumTopic(ctx context.Context, name string) (int, error)
	EditForumTopic(ctx context.Context, threadID int, name string) error
	BotID() int64
}

// Agent is the opencode surface the bridge drives. *opencode.Client
// implements it.
type Agent interface {
	BaseURL() string
	CreateSession(ctx context.Context, title string) (opencode.Session, error)
	RenameSession(ctx context.Context, sessionID, title string) error
	Prompt(ctx context.Context, sessionID string, parts []opencode.Part, model opencode.Model) error
	Command(ctx context.Context, sessionID, command, arguments string) error
	Abort(ctx context.Context, sessionID string) error
	Models(ctx context.Context) ([]opencode.Model, error)
	ReplyQuestion(ctx context.Context, requestID string, answers [][]string) error
	RejectQuestion(ctx context.Context, requestID string) error
	ReplyPermission(ctx context.Context, sessionID, permissionID, response string) error
	GenerateTitle(ctx context.Context, sessionID, text string) (opencode.TitleResult, error)
}

// Bridge is the per-instance controller.
type Bridge struct {
	cfg     *config.Config
	tg      Messenger
	poller  telegram.Poller
	agent   Agent
	coord   *coordinator.Coordinator
	reg     *coordinator.Registry // nil in single-instance mode
	pend    *pending.Registry
	stt     *stt.Transcriber
	procs   *procTable
	topics  *topicMap
	version string

	startedAt time.Time

	mu        sync.Mutex
	sessionID string         // session bound to the configured topic
	model     opencode.Model // per-session override, zero when unset
	titled    bool           // session already has a generated title
}

// New wires a bridge. reg may be nil (single-instance mode).
func New(
	cfg *config.Config,
	tg Messenger,
	poller telegram.Poller,
	agent Agent,
	coord *coordinator.Coordinator,
	reg *coordinator.Registry,
	pend *pending.Registry,
	transcriber *stt.Transcriber,
	version string,
) *Bridge {
	b := &Bridge{
		cfg:       cfg,
		tg:        tg,
		poller:    poller,
		agent:     agent,
		coord:     coord,
		reg:       reg,
		pend:      pend,
		stt:       transcriber,
		procs:     newProcTable(),
		version:   version,
		startedAt: time.Now(),
		sessionID: cfg.SessionID,
	}
	b.topics = newTopicMap(tg, cfg.ThreadID)
	if cfg.SessionID != "" {
		b.topics.Bind(cfg.SessionID, cfg.ThreadID)
	}
	return b
}

// Topics exposes the session-to-topic resolver for the projector.
func (b *Bridge) Topics() *topicMap { return b.topics }

// SessionID returns the session currently bound to the configured topic.
func (b *Bridge) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

func (b *Bridge) setSessionID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionID = id
}

// ensureSession returns the bound session, creating one on first use.
func (b *Bridge) ensureSession(ctx context.Context) (string, error) {
	b.mu.Lock()
	id := b.sessionID
	b.mu.Unlock()
	if id != "" {
		return id, nil
	}
	ses, err := b.agent.CreateSession(ctx, "")
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.sessionID = ses.ID
	b.mu.Unlock()
	b.topics.Bind(ses.ID, b.cfg.ThreadID)
	return ses.ID, nil
}

func (b *Bridge) modelOverride() opencode.Model {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model
}
