package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/teleclaw/internal/opencode"
)

// handleCommand runs a slash command. Returns false for unknown verbs so
// the message falls through to prompt submission.
func (b *Bridge) handleCommand(ctx context.Context, msg *telego.Message, text string) bool {
	verb, args, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	verb, _, _ = strings.Cut(strings.ToLower(verb), "@") // strip @botname suffix
	args = strings.TrimSpace(args)
	threadID := msg.MessageThreadID

	switch verb {
	case "connect":
		b.reply(ctx, threadID, "🔗 "+b.agent.BaseURL())
	case "version":
		b.reply(ctx, threadID, "teleclaw "+b.version)
	case "model":
		b.cmdModel(ctx, threadID, args)
	case "interrupt":
		b.cmdInterrupt(ctx, threadID, args)
	case "plan", "build":
		b.cmdForward(ctx, threadID, verb, "")
	case "review":
		b.cmdForward(ctx, threadID, "review", args)
	case "rename":
		b.cmdRename(ctx, threadID, args)
	case "cap":
		b.cmdCapture(ctx, threadID, args)
	case "ps":
		b.cmdProcesses(ctx, threadID)
	case "dev":
		b.cmdDevices(ctx, threadID)
	case "use":
		b.cmdUse(ctx, threadID, args)
	case "stop":
		b.cmdStopDevice(ctx, threadID, args)
	case "restart", "upgrade":
		b.cmdRelaunch(ctx, threadID, verb)
	case "start":
		b.cmdStartInstance(ctx, threadID, args)
	default:
		return false
	}
	return true
}

func (b *Bridge) cmdModel(ctx context.Context, threadID int, args string) {
	switch {
	case args == "":
		current := b.modelOverride()
		if current.ProviderID == "" {
			b.reply(ctx, threadID, "Model: session default")
			return
		}
		b.reply(ctx, threadID, "Model: "+current.String())
	case args == "list":
		models, err := b.agent.Models(ctx)
		if err != nil {
			b.reply(ctx, threadID, "⚠️ Could not list models: "+err.Error())
			return
		}
		var lines []string
		for _, m := range models {
			lines = append(lines, m.String())
		}
		b.reply(ctx, threadID, "Available models:\n"+strings.Join(lines, "\n"))
	case args == "reset":
		b.mu.Lock()
		b.model = opencode.Model{}
		b.mu.Unlock()
		b.reply(ctx, threadID, "Model override cleared.")
	default:
		model, ok := opencode.ParseModel(args)
		if !ok {
			b.reply(ctx, threadID, "Usage: /model [list | reset | <provider>/<model>]")
			return
		}
		b.mu.Lock()
		b.model = model
		b.mu.Unlock()
		b.reply(ctx, threadID, "Model set to "+model.String())
	}
}

// cmdInterrupt kills one tracked process by pid, or all of them, or
// aborts the session when nothing is tracked.
func (b *Bridge) cmdInterrupt(ctx context.Context, threadID int, args string) {
	if args != "" {
		if b.procs.Kill(args) {
			b.reply(ctx, threadID, "Killed "+args)
		} else {
			b.reply(ctx, threadID, "No tracked process "+args)
		}
		return
	}
	if n := b.procs.KillAll(); n > 0 {
		b.reply(ctx, threadID, fmt.Sprintf("Killed %d process(es)", n))
		return
	}
	b.abortSession(ctx, threadID)
	b.reply(ctx, threadID, "Interrupt sent.")
}

// cmdForward relays a named command (plan, build, review) to the agent.
func (b *Bridge) cmdForward(ctx context.Context, threadID int, command, args string) {
	id, err := b.ensureSession(ctx)
	if err != nil {
		b.reply(ctx, threadID, "⚠️ No session: "+err.Error())
		return
	}
	if err := b.agent.Command(ctx, id, command, args); err != nil {
		b.reply(ctx, threadID, fmt.Sprintf("⚠️ /%s failed: %v", command, err))
	}
}

func (b *Bridge) cmdRename(ctx context.Context, threadID int, title string) {
	if title == "" {
		b.reply(ctx, threadID, "Usage: /rename <title>")
		return
	}
	id := b.SessionID()
	if id == "" {
		b.reply(ctx, threadID, "No session yet.")
		return
	}
	if err := b.agent.RenameSession(ctx, id, title); err != nil {
		b.reply(ctx, threadID, "⚠️ Rename failed: "+err.Error())
		return
	}
	if err := b.topics.Rename(ctx, id, title); err != nil {
		slog.Warn("topic rename failed", "error", err)
	}
	b.reply(ctx, threadID, "Renamed to: "+title)
}

func (b *Bridge) cmdRelaunch(ctx context.Context, threadID int, verb string) {
	if err := b.relaunch(ctx, verb); err != nil {
		b.reply(ctx, threadID, fmt.Sprintf("⚠️ /%s failed: %v", verb, err))
		return
	}
	b.reply(ctx, threadID, "♻️ "+verb+" initiated.")
}
