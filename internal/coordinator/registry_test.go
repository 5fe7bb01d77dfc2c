package coordinator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/teleclaw/internal/store"
)

func newTestRegistry(t *testing.T, s *store.Store, deviceID string) *Registry {
	t.Helper()
	reg, err := NewRegistry(s, deviceID, 0, "host", "/w", os.Getpid())
	if err != nil {
		t.Fatalf("NewRegistry(%s): %v", deviceID, err)
	}
	return reg
}

func newSharedStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir(), "teleclaw")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRegistryInitWritesRecords(t *testing.T) {
	s := newSharedStore(t)
	reg := newTestRegistry(t, s, "host:/w")

	var st StateRecord
	if err := s.ReadJSON("", "state.json", &st); err != nil {
		t.Fatalf("state.json should exist after init: %v", err)
	}
	if st.ActiveDevice != "" {
		t.Errorf("fresh state should have no active device, got %q", st.ActiveDevice)
	}

	var rec DeviceRecord
	if err := s.ReadJSON("devices", SanitizeDeviceID(reg.DeviceID())+".json", &rec); err != nil {
		t.Fatalf("device record should exist after init: %v", err)
	}
	if rec.Name != "host:/w" || rec.LastSeen == 0 {
		t.Errorf("unexpected device record %+v", rec)
	}
}

func TestRegistryInitKeepsExistingState(t *testing.T) {
	s := newSharedStore(t)
	prev := StateRecord{ActiveDevice: "other", LastUpdateID: 42, LastModified: 1}
	if err := s.WriteJSON("", "state.json", prev); err != nil {
		t.Fatal(err)
	}
	reg := newTestRegistry(t, s, "host:/w")
	st, err := reg.ReadState()
	if err != nil {
		t.Fatal(err)
	}
	if st.ActiveDevice != "other" || st.LastUpdateID != 42 {
		t.Errorf("init must not clobber an existing state record: %+v", st)
	}
}

func TestListDevicesOrderAndNumbering(t *testing.T) {
	s := newSharedStore(t)
	regA := newTestRegistry(t, s, "a:/w")
	newTestRegistry(t, s, "b:/w")
	newTestRegistry(t, s, "c:/w")

	now := time.Now()
	writeDevice := func(name string, lastSeen time.Time) {
		rec := DeviceRecord{Name: name, Hostname: "h", Directory: "/w", LastSeen: lastSeen.UnixMilli()}
		if err := s.WriteJSON("devices", SanitizeDeviceID(name)+".json", rec); err != nil {
			t.Fatal(err)
		}
	}
	writeDevice("a:/w", now.Add(-time.Hour))
	writeDevice("b:/w", now.Add(-time.Minute))
	writeDevice("c:/w", now)

	st, _ := regA.ReadState()
	st.ActiveDevice = "a:/w"
	if err := regA.WriteState(st); err != nil {
		t.Fatal(err)
	}

	devices, err := regA.ListDevices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(devices))
	}
	// Active first despite oldest heartbeat, then lastSeen descending.
	if devices[0].Record.Name != "a:/w" || !devices[0].Active {
		t.Errorf("active device must sort first: %+v", devices[0])
	}
	if devices[1].Record.Name != "c:/w" || devices[2].Record.Name != "b:/w" {
		t.Errorf("standby order should be lastSeen desc: %s, %s",
			devices[1].Record.Name, devices[2].Record.Name)
	}
	for i, d := range devices {
		if d.Number != i+1 {
			t.Errorf("device %d numbered %d", i, d.Number)
		}
	}
}

func TestListDevicesSkipsMalformed(t *testing.T) {
	s := newSharedStore(t)
	reg := newTestRegistry(t, s, "a:/w")
	bad := filepath.Join(s.Base(), "devices", "broken.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	devices, err := reg.ListDevices()
	if err != nil {
		t.Fatalf("malformed record must not fail the listing: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
}

func TestFindDevice(t *testing.T) {
	s := newSharedStore(t)
	reg := newTestRegistry(t, s, "alpha:/work")
	newTestRegistry(t, s, "beta:/work")

	if d, ok := reg.FindDevice("1"); !ok || d.Number != 1 {
		t.Errorf("FindDevice(1) = %+v, %v", d, ok)
	}
	if d, ok := reg.FindDevice("beta"); !ok || d.Record.Name != "beta:/work" {
		t.Errorf("FindDevice(beta) = %+v, %v", d, ok)
	}
	if _, ok := reg.FindDevice("99"); ok {
		t.Error("FindDevice(99) should miss")
	}
	if _, ok := reg.FindDevice("gamma"); ok {
		t.Error("FindDevice(gamma) should miss")
	}
}

func TestSweepStale(t *testing.T) {
	s := newSharedStore(t)
	reg := newTestRegistry(t, s, "a:/w")

	now := time.Now()
	old := DeviceRecord{Name: "dead:/w", LastSeen: now.Add(-25 * time.Hour).UnixMilli()}
	if err := s.WriteJSON("devices", SanitizeDeviceID(old.Name)+".json", old); err != nil {
		t.Fatal(err)
	}
	fresh := DeviceRecord{Name: "alive:/w", LastSeen: now.Add(-23 * time.Hour).UnixMilli()}
	if err := s.WriteJSON("devices", SanitizeDeviceID(fresh.Name)+".json", fresh); err != nil {
		t.Fatal(err)
	}

	reg.SweepStale(now)

	names, _ := s.List("devices")
	if len(names) != 2 {
		t.Fatalf("expected own + alive records after sweep, got %v", names)
	}
	for _, n := range names {
		if n == SanitizeDeviceID("dead:/w")+".json" {
			t.Error("24h-stale record should have been swept")
		}
	}
}
