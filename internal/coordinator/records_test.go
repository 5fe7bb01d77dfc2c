package coordinator

import (
	"testing"
	"time"
)

func TestDeviceID(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		host   string
		dir    string
		want   string
	}{
		{"no prefix", "", "mini", "/Users/me/proj", "mini:/Users/me/proj"},
		{"with prefix", "desk", "mini", "/Users/me/proj", "desk@mini:/Users/me/proj"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeviceID(tt.prefix, tt.host, tt.dir); got != tt.want {
				t.Errorf("DeviceID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeDeviceID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mini:/Users/me/proj", "mini--Users-me-proj"},
		{"desk@mini:/a b", "desk@mini--a-b"},
		{"safe.name_ok-1", "safe.name_ok-1"},
		{"häst:/p", "h-st--p"},
	}
	for _, tt := range tests {
		if got := SanitizeDeviceID(tt.in); got != tt.want {
			t.Errorf("SanitizeDeviceID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLeaderStale(t *testing.T) {
	now := time.Now()
	fresh := StateRecord{ActiveDevice: "a", ActiveDeviceHeartbeat: now.Add(-30 * time.Second).UnixMilli()}
	if fresh.LeaderStale(now) {
		t.Error("30s-old heartbeat should not be stale")
	}
	old := StateRecord{ActiveDevice: "a", ActiveDeviceHeartbeat: now.Add(-91 * time.Second).UnixMilli()}
	if !old.LeaderStale(now) {
		t.Error("91s-old heartbeat should be stale")
	}
	none := StateRecord{}
	if !none.LeaderStale(now) {
		t.Error("empty activeDevice should count as stale")
	}
}
