package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// captureTimeout is the hard kill for /cap shell runs.
const captureTimeout = 3 * time.Minute

// captureOutputLimit keeps /cap replies inside one or two Telegram
// messages.
const captureOutputLimit = 6000

// trackedProc is one live /cap shell.
type trackedProc struct {
	pid     int
	command string
	started time.Time
	cancel  context.CancelFunc
}

// procTable tracks shell processes spawned through the bot.
type procTable struct {
	mu    sync.Mutex
	procs map[int]*trackedProc
}

func newProcTable() *procTable {
	return &procTable{procs: make(map[int]*trackedProc)}
}

func (t *procTable) add(p *trackedProc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.procs[p.pid] = p
}

func (t *procTable) remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, pid)
}

// List returns tracked processes ordered by start time.
func (t *procTable) List() []*trackedProc {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*trackedProc, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].started.Before(out[j].started) })
	return out
}

// Kill cancels the process with the given pid string.
func (t *procTable) Kill(pidStr string) bool {
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return false
	}
	t.mu.Lock()
	p, ok := t.procs[pid]
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.cancel()
	return true
}

// KillAll cancels every tracked process and reports how many.
func (t *procTable) KillAll() int {
	t.mu.Lock()
	procs := make([]*trackedProc, 0, len(t.procs))
	for _, p := range t.procs {
		procs = append(procs, p)
	}
	t.mu.Unlock()
	for _, p := range procs {
		p.cancel()
	}
	return len(procs)
}

// cmdCapture spawns a shell, tracks it, and replies with the combined
// output once it exits or hits the timeout.
func (b *Bridge) cmdCapture(ctx context.Context, threadID int, command string) {
	if command == "" {
		b.reply(ctx, threadID, "Usage: /cap <command>")
		return
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), captureTimeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, "bash", "-c", command)
		cmd.Dir = b.cfg.WorkingDir
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		if err := cmd.Start(); err != nil {
			b.reply(ctx, threadID, "⚠️ Start failed: "+err.Error())
			return
		}
		proc := &trackedProc{pid: cmd.Process.Pid, command: command, started: time.Now(), cancel: cancel}
		b.procs.add(proc)
		defer b.procs.remove(proc.pid)

		err := cmd.Wait()
		text := strings.TrimSpace(out.String())
		if len(text) > captureOutputLimit {
			text = text[:captureOutputLimit] + "\n… (truncated)"
		}
		switch {
		case runCtx.Err() == context.DeadlineExceeded:
			text = "⏱ Killed after 3 minutes.\n" + text
		case err != nil:
			text = fmt.Sprintf("exit: %v\n%s", err, text)
		case text == "":
			text = "(no output)"
		}
		b.reply(ctx, threadID, "```\n"+text+"\n```")
	}()
}

func (b *Bridge) cmdProcesses(ctx context.Context, threadID int) {
	procs := b.procs.List()
	if len(procs) == 0 {
		b.reply(ctx, threadID, "No tracked processes.")
		return
	}
	var lines []string
	for _, p := range procs {
		lines = append(lines, fmt.Sprintf("%d  %s  (%s)", p.pid, p.command, time.Since(p.started).Round(time.Second)))
	}
	b.reply(ctx, threadID, strings.Join(lines, "\n"))
}
