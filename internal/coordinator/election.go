package coordinator

import (
	"context"
	"log/slog"
	"time"
)

// Role is this instance's place in the fleet.
type Role int

const (
	RoleStandby Role = iota
	RoleLeader
)

func (r Role) String() string {
	if r == RoleLeader {
		return "leader"
	}
	return "standby"
}

// Coordinator runs the per-instance election state machine:
// Standby → (stale leader) candidation → Leader → Standby on loss.
//
// The shared store has no compare-and-swap, so promotion is write-then-verify:
// a randomized candidation delay separates contenders in wall time, and a
// re-read after VerifyDelay catches a concurrent winner. Every store error
// short-circuits to Standby; retries are structural (the next tick).
type Coordinator struct {
	reg  *Registry // nil in single-instance mode
	self string

	role           Role
	sched          *schedule
	state          StateRecord // last observed snapshot
	becameActiveAt time.Time   // monotonic; gates replayed updates

	onPromote func()
	onDemote  func()

	// Injectable for tests.
	now    func() time.Time
	sleep  func(context.Context, time.Duration)
	jitter func(time.Duration) time.Duration
}

// New creates a coordinator. A nil registry means single-instance mode:
// the instance is permanently leader and all store traffic is skipped.
func New(reg *Registry) *Coordinator {
	c := &Coordinator{
		reg:    reg,
		now:    time.Now,
		sleep:  sleepCtx,
		jitter: randDuration,
	}
	if reg != nil {
		c.self = reg.DeviceID()
		c.sched = standbySchedule(c.now())
	} else {
		c.role = RoleLeader
		c.becameActiveAt = c.now()
	}
	return c
}

// OnPromote registers the became-leader callback (the "now ACTIVE" notice).
func (c *Coordinator) OnPromote(fn func()) { c.onPromote = fn }

// OnDemote registers the lost-leadership callback.
func (c *Coordinator) OnDemote(fn func()) { c.onDemote = fn }

// Role returns the current role.
func (c *Coordinator) Role() Role { return c.role }

// IsLeader reports whether this instance may ingest updates.
func (c *Coordinator) IsLeader() bool { return c.role == RoleLeader }

// BecameActiveAt returns when leadership was last acquired. Telegram
// messages dated before this are history and must not be replayed.
func (c *Coordinator) BecameActiveAt() time.Time { return c.becameActiveAt }

// LastUpdateID returns the highest committed Telegram update id.
func (c *Coordinator) LastUpdateID() int64 { return c.state.LastUpdateID }

// Tick advances timers and the election. Called once per ingest loop pass.
func (c *Coordinator) Tick(ctx context.Context) {
	if c.reg == nil {
		return
	}
	now := c.now()
	switch c.role {
	case RoleLeader:
		if c.sched.deviceBeat.Due(now) {
			c.sched.deviceBeat.Fire(now)
			if err := c.reg.WriteDeviceRecord(now); err != nil {
				slog.Warn("device heartbeat failed", "error", err)
			}
		}
		if c.sched.activeBeat.Due(now) {
			c.sched.activeBeat.Fire(now)
			c.activeHeartbeat(now)
		}
		if c.sched.staleSweep.Due(now) {
			c.sched.staleSweep.Fire(now)
			c.reg.SweepStale(now)
		}
	case RoleStandby:
		if c.sched.deviceBeat.Due(now) {
			c.sched.deviceBeat.Fire(now)
			if err := c.reg.WriteDeviceRecord(now); err != nil {
				slog.Warn("device heartbeat failed", "error", err)
			}
		}
		if c.sched.check.Due(now) {
			c.sched.check.Fire(now)
			c.standbyCheck(ctx)
		}
	}
}

// CheckNow runs one standby check outside the schedule, used when the
// state watcher sees the shared state change. The periodic tick remains
// authoritative; this only shortens detection latency.
func (c *Coordinator) CheckNow(ctx context.Context) {
	if c.reg == nil || c.role != RoleStandby {
		return
	}
	c.standbyCheck(ctx)
}

// activeHeartbeat refreshes the leader's claim, demoting if another device
// has taken over in the meantime.
func (c *Coordinator) activeHeartbeat(now time.Time) {
	st, err := c.reg.ReadState()
	if err != nil {
		slog.Warn("active heartbeat read failed", "error", err)
		return
	}
	if st.ActiveDevice != c.self {
		slog.Info("leadership lost", "active_device", st.ActiveDevice)
		c.state = st
		c.demote()
		return
	}
	st.ActiveDeviceHeartbeat = now.UnixMilli()
	st.LastModified = now.UnixMilli()
	st.ModifiedBy = c.self
	if err := c.reg.WriteState(st); err != nil {
		slog.Warn("active heartbeat write failed", "error", err)
		return
	}
	c.state = st
}

func (c *Coordinator) standbyCheck(ctx context.Context) {
	st, err := c.reg.ReadState()
	if err != nil {
		slog.Warn("standby check read failed", "error", err)
		return
	}
	c.state = st
	if st.ActiveDevice == c.self {
		c.promote()
		return
	}
	if !st.LeaderStale(c.now()) {
		return
	}
	c.candidate(ctx)
}

// candidate runs the candidation protocol: jittered sleep, re-read,
// claim, replication wait, verify.
func (c *Coordinator) candidate(ctx context.Context) {
	c.sleep(ctx, c.jitter(FailoverJitter))
	if ctx.Err() != nil {
		return
	}

	st, err := c.reg.ReadState()
	if err != nil {
		slog.Warn("candidation re-read failed", "error", err)
		return
	}
	if st.ActiveDevice != c.self && !st.LeaderStale(c.now()) {
		// Someone else won while we slept.
		c.state = st
		return
	}

	prevModified := st.LastModified
	now := c.now()
	st.ActiveDevice = c.self
	st.ActiveDeviceHeartbeat = now.UnixMilli()
	st.LastModified = now.UnixMilli()
	st.ModifiedBy = c.self
	if err := c.reg.WriteState(st); err != nil {
		slog.Warn("candidation write failed", "error", err)
		return
	}

	c.sleep(ctx, VerifyDelay)
	if ctx.Err() != nil {
		return
	}

	verify, err := c.reg.ReadState()
	if err != nil {
		slog.Warn("candidation verify read failed", "error", err)
		return
	}
	if verify.ActiveDevice != c.self || verify.LastModified < prevModified {
		slog.Info("candidation lost", "active_device", verify.ActiveDevice)
		c.state = verify
		return
	}
	c.state = verify
	c.promote()
}

// ForceActivate claims leadership on user request (/use), skipping the
// staleness check but keeping the verification window.
func (c *Coordinator) ForceActivate(ctx context.Context) bool {
	if c.reg == nil {
		return true
	}
	st, err := c.reg.ReadState()
	if err != nil {
		slog.Warn("force activate read failed", "error", err)
		return false
	}
	prevModified := st.LastModified
	now := c.now()
	st.ActiveDevice = c.self
	st.ActiveDeviceHeartbeat = now.UnixMilli()
	st.LastModified = now.UnixMilli()
	st.ModifiedBy = c.self
	if err := c.reg.WriteState(st); err != nil {
		slog.Warn("force activate write failed", "error", err)
		return false
	}
	c.sleep(ctx, VerifyDelay)
	verify, err := c.reg.ReadState()
	if err != nil || verify.ActiveDevice != c.self || verify.LastModified < prevModified {
		return false
	}
	c.state = verify
	if c.role != RoleLeader {
		c.promote()
	}
	return true
}

// SetActiveDevice hands leadership to another device (/use targeting a
// different instance). The target promotes itself on its next check.
func (c *Coordinator) SetActiveDevice(name string) error {
	if c.reg == nil {
		return nil
	}
	st, err := c.reg.ReadState()
	if err != nil {
		return err
	}
	now := c.now()
	st.ActiveDevice = name
	st.ActiveDeviceHeartbeat = now.UnixMilli()
	st.LastModified = now.UnixMilli()
	st.ModifiedBy = c.self
	if err := c.reg.WriteState(st); err != nil {
		return err
	}
	c.state = st
	if name != c.self && c.role == RoleLeader {
		c.demote()
	}
	return nil
}

// CommitUpdateID persists the highest ingested Telegram update id.
// Monotonic across every writer that ever becomes leader.
func (c *Coordinator) CommitUpdateID(id int64) {
	if id <= c.state.LastUpdateID {
		return
	}
	c.state.LastUpdateID = id
	if c.reg == nil {
		return
	}
	now := c.now()
	st := c.state
	st.LastModified = now.UnixMilli()
	st.ModifiedBy = c.self
	if err := c.reg.WriteState(st); err != nil {
		slog.Warn("commit update id failed", "update_id", id, "error", err)
		return
	}
	c.state = st
}

// RecordForeignChat appends a chat id the bot saw but is not configured
// for. Returns whether the id is new, the running total, and the last
// five foreign ids for the aggregate warning.
func (c *Coordinator) RecordForeignChat(chatID int64) (isNew bool, total int, lastFive []int64) {
	for _, id := range c.state.ForeignChatIDs {
		if id == chatID {
			return false, len(c.state.ForeignChatIDs), tailInt64(c.state.ForeignChatIDs, 5)
		}
	}
	c.state.ForeignChatIDs = append(c.state.ForeignChatIDs, chatID)
	if c.reg != nil {
		now := c.now()
		st := c.state
		st.LastModified = now.UnixMilli()
		st.ModifiedBy = c.self
		if err := c.reg.WriteState(st); err != nil {
			slog.Warn("record foreign chat failed", "chat_id", chatID, "error", err)
		} else {
			c.state = st
		}
	}
	return true, len(c.state.ForeignChatIDs), tailInt64(c.state.ForeignChatIDs, 5)
}

func (c *Coordinator) promote() {
	c.role = RoleLeader
	c.becameActiveAt = c.now()
	c.sched = leaderSchedule(c.becameActiveAt)
	slog.Info("promoted to leader", "device", c.self)
	if c.onPromote != nil {
		c.onPromote()
	}
}

func (c *Coordinator) demote() {
	c.role = RoleStandby
	c.sched = standbySchedule(c.now())
	slog.Info("demoted to standby", "device", c.self)
	if c.onDemote != nil {
		c.onDemote()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func tailInt64(s []int64, n int) []int64 {
	if len(s) <= n {
		return append([]int64(nil), s...)
	}
	return append([]int64(nil), s[len(s)-n:]...)
}
