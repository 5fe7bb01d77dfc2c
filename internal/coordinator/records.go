package coordinator

import (
	"fmt"
	"strings"
	"time"
)

const (
	// HeartbeatTimeout is the age at which a leader's active heartbeat is
	// considered stale. Strictly greater than the maximum active-heartbeat
	// interval (30s base + 10s jitter).
	HeartbeatTimeout = 90 * time.Second

	// VerifyDelay is how long a candidate waits after writing the state
	// record before re-reading it, covering one replication period of the
	// sync medium.
	VerifyDelay = 500 * time.Millisecond

	// FailoverJitter bounds the random candidation delay that separates
	// contenders in wall time.
	FailoverJitter = 10 * time.Second

	// StaleDeviceAge is the lastSeen age past which a device record is
	// garbage and gets swept.
	StaleDeviceAge = 24 * time.Hour

	// devicesDir is the store subdirectory holding one record per instance.
	devicesDir = "devices"

	// stateFile is the single shared state record.
	stateFile = "state.json"
)

// DeviceRecord is one file per instance under devices/. Only the owning
// instance writes it; any instance may read it.
type DeviceRecord struct {
	Name      string `json:"name"`
	ThreadID  int    `json:"threadId,omitempty"`
	Hostname  string `json:"hostname"`
	Directory string `json:"directory"`
	PID       int    `json:"pid"`
	LastSeen  int64  `json:"lastSeen"` // epoch millis
}

// StateRecord is the single contested file. Only the current leader writes
// it; writes are serialized by the election protocol, not by the store.
type StateRecord struct {
	ActiveDevice          string  `json:"activeDevice"` // empty = no leader
	ActiveDeviceHeartbeat int64   `json:"activeDeviceHeartbeat"`
	LastUpdateID          int64   `json:"lastUpdateId"`
	LastModified          int64   `json:"lastModified"`
	ModifiedBy            string  `json:"modifiedBy"`
	ForeignChatIDs        []int64 `json:"foreignChatIds,omitempty"`
}

// HeartbeatAge returns how old the active heartbeat is at now.
func (s *StateRecord) HeartbeatAge(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(s.ActiveDeviceHeartbeat))
}

// LeaderStale reports whether the state has no leader or a stale one.
func (s *StateRecord) LeaderStale(now time.Time) bool {
	return s.ActiveDevice == "" || s.HeartbeatAge(now) > HeartbeatTimeout
}

// DeviceID builds the stable instance identity:
// [prefix@]hostname:absolute-working-directory.
func DeviceID(prefix, hostname, workingDir string) string {
	if prefix != "" {
		return fmt.Sprintf("%s@%s:%s", prefix, hostname, workingDir)
	}
	return fmt.Sprintf("%s:%s", hostname, workingDir)
}

// SanitizeDeviceID maps a device id to a filesystem-safe file stem:
// every character outside [A-Za-z0-9._@-] becomes '-'.
func SanitizeDeviceID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '@', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
