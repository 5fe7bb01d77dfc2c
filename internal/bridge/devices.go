package bridge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/teleclaw/internal/config"
)

// cmdDevices lists every registered device, numbered, active first.
func (b *Bridge) cmdDevices(ctx context.Context, threadID int) {
	if b.reg == nil {
		b.reply(ctx, threadID, "Running in single-instance mode; no device registry.")
		return
	}
	devices, err := b.reg.ListDevices()
	if err != nil {
		b.reply(ctx, threadID, "⚠️ Could not list devices: "+err.Error())
		return
	}
	if len(devices) == 0 {
		b.reply(ctx, threadID, "No devices registered.")
		return
	}
	var lines []string
	for _, d := range devices {
		marker := " "
		if d.Active {
			marker = "⚡"
		}
		age := time.Since(time.UnixMilli(d.Record.LastSeen)).Round(time.Second)
		lines = append(lines, fmt.Sprintf("%d. %s %s (seen %s ago)", d.Number, marker, d.Record.Name, age))
	}
	b.reply(ctx, threadID, strings.Join(lines, "\n"))
}

// cmdUse force-activates a device by number or name. Targeting this
// instance claims leadership immediately; targeting another hands it off.
func (b *Bridge) cmdUse(ctx context.Context, threadID int, args string) {
	if b.reg == nil {
		b.reply(ctx, threadID, "Running in single-instance mode.")
		return
	}
	if args == "" {
		b.reply(ctx, threadID, "Usage: /use <number|name>")
		return
	}
	d, ok := b.reg.FindDevice(args)
	if !ok {
		b.reply(ctx, threadID, "No device matches "+args)
		return
	}
	if d.Record.Name == b.reg.DeviceID() {
		if b.coord.ForceActivate(ctx) {
			b.reply(ctx, threadID, "⚡ This device is now active.")
		} else {
			b.reply(ctx, threadID, "⚠️ Activation did not stick; try again.")
		}
		return
	}
	if err := b.coord.SetActiveDevice(d.Record.Name); err != nil {
		b.reply(ctx, threadID, "⚠️ Handoff failed: "+err.Error())
		return
	}
	b.reply(ctx, threadID, "⚡ Handed off to "+d.Record.Name)
}

// cmdStopDevice removes a standby device's record and, when it runs on
// this host, tries to kill its process.
func (b *Bridge) cmdStopDevice(ctx context.Context, threadID int, args string) {
	if b.reg == nil {
		b.reply(ctx, threadID, "Running in single-instance mode.")
		return
	}
	if args == "" {
		b.reply(ctx, threadID, "Usage: /stop <number|name>")
		return
	}
	d, ok := b.reg.FindDevice(args)
	if !ok {
		b.reply(ctx, threadID, "No device matches "+args)
		return
	}
	if d.Active {
		b.reply(ctx, threadID, "Refusing to stop the active device; /use another one first.")
		return
	}
	hostname, _ := os.Hostname()
	if d.Record.Hostname == hostname && d.Record.PID > 0 {
		if proc, err := os.FindProcess(d.Record.PID); err == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}
	if err := b.reg.RemoveDevice(d.Record.Name); err != nil {
		b.reply(ctx, threadID, "⚠️ Remove failed: "+err.Error())
		return
	}
	b.reply(ctx, threadID, "Removed "+d.Record.Name)
}

// cmdStartInstance launches a sibling bridge in another working
// directory on this host.
func (b *Bridge) cmdStartInstance(ctx context.Context, threadID int, dir string) {
	if dir == "" {
		b.reply(ctx, threadID, "Usage: /start <directory>")
		return
	}
	dir = config.ExpandHome(dir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		b.reply(ctx, threadID, "Not a directory: "+dir)
		return
	}
	self, err := os.Executable()
	if err != nil {
		b.reply(ctx, threadID, "⚠️ Cannot resolve binary: "+err.Error())
		return
	}
	cmd := exec.Command(self, dir)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		b.reply(ctx, threadID, "⚠️ Start failed: "+err.Error())
		return
	}
	_ = cmd.Process.Release()
	b.reply(ctx, threadID, fmt.Sprintf("🚀 Started instance in %s (pid %d)", dir, cmd.Process.Pid))
}

// relaunch invokes the external restart or upgrade helper.
func (b *Bridge) relaunch(ctx context.Context, verb string) error {
	script := fmt.Sprintf("%s/.opencode/%s.sh", b.cfg.WorkingDir, verb)
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("no %s helper installed", verb)
	}
	cmd := exec.Command("bash", script)
	cmd.Dir = b.cfg.WorkingDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
