package coordinator

import (
	"math/rand"
	"time"
)

// Timer cadences per role (§ heartbeat table). Each next deadline is
// resampled as base + U[0, jitter) so devices drift apart instead of
// detecting staleness in lockstep.
const (
	leaderDeviceBeatBase    = 30 * time.Second
	leaderDeviceBeatJitter  = 10 * time.Second
	leaderActiveBeatBase    = 30 * time.Second
	leaderActiveBeatJitter  = 10 * time.Second
	standbyDeviceBeatBase   = 5 * time.Minute
	standbyDeviceBeatJitter = 60 * time.Second
	standbyCheckBase        = 30 * time.Second
	standbyCheckJitter      = 10 * time.Second
	staleSweepBase          = 24 * time.Hour
)

// jitterTimer is a timestamp-based timer: it stores the next deadline and
// resamples it from the distribution after each fire. Never counter-based.
type jitterTimer struct {
	base   time.Duration
	jitter time.Duration
	nextAt time.Time
	rnd    func(time.Duration) time.Duration
}

func newJitterTimer(base, jitter time.Duration, now time.Time) *jitterTimer {
	t := &jitterTimer{base: base, jitter: jitter, rnd: randDuration}
	t.Reset(now)
	return t
}

// Due reports whether the deadline has passed.
func (t *jitterTimer) Due(now time.Time) bool {
	return !now.Before(t.nextAt)
}

// Fire marks the timer as handled and resamples the next deadline.
func (t *jitterTimer) Fire(now time.Time) {
	t.Reset(now)
}

// Reset resamples the deadline from now.
func (t *jitterTimer) Reset(now time.Time) {
	d := t.base
	if t.jitter > 0 {
		d += t.rnd(t.jitter)
	}
	t.nextAt = now.Add(d)
}

func randDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// schedule bundles the role-dependent timers. Role transitions replace the
// whole schedule, which resets every deadline.
type schedule struct {
	deviceBeat *jitterTimer
	activeBeat *jitterTimer // leader only
	check      *jitterTimer // standby only
	staleSweep *jitterTimer // leader only
}

func leaderSchedule(now time.Time) *schedule {
	return &schedule{
		deviceBeat: newJitterTimer(leaderDeviceBeatBase, leaderDeviceBeatJitter, now),
		activeBeat: newJitterTimer(leaderActiveBeatBase, leaderActiveBeatJitter, now),
		staleSweep: newJitterTimer(staleSweepBase, 0, now),
	}
}

func standbySchedule(now time.Time) *schedule {
	return &schedule{
		deviceBeat: newJitterTimer(standbyDeviceBeatBase, standbyDeviceBeatJitter, now),
		check:      newJitterTimer(standbyCheckBase, standbyCheckJitter, now),
	}
}
