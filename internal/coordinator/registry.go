package coordinator

import (
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/teleclaw/internal/store"
)

// Registry maintains this instance's device record and gives a consistent
// view of the device fleet.
type Registry struct {
	store    *store.Store
	deviceID string
	fileName string
	threadID int

	hostname  string
	directory string
	pid       int
}

// DeviceListing is one row of ListDevices, numbered for UI selection.
type DeviceListing struct {
	Number int
	Record DeviceRecord
	Active bool
}

// NewRegistry prepares the registry. It creates the devices/ subdirectory,
// initializes the state record when missing, and writes the local device
// record once.
func NewRegistry(s *store.Store, deviceID string, threadID int, hostname, directory string, pid int) (*Registry, error) {
	r := &Registry{
		store:     s,
		deviceID:  deviceID,
		fileName:  SanitizeDeviceID(deviceID) + ".json",
		threadID:  threadID,
		hostname:  hostname,
		directory: directory,
		pid:       pid,
	}
	if err := s.EnsureDir(devicesDir); err != nil {
		return nil, err
	}
	var st StateRecord
	if err := s.ReadJSON("", stateFile, &st); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		init := StateRecord{LastModified: time.Now().UnixMilli(), ModifiedBy: deviceID}
		if err := s.WriteJSON("", stateFile, init); err != nil {
			return nil, err
		}
	}
	if err := r.WriteDeviceRecord(time.Now()); err != nil {
		return nil, err
	}
	return r, nil
}

// DeviceID returns this instance's identity.
func (r *Registry) DeviceID() string { return r.deviceID }

// WriteDeviceRecord refreshes the local device record's heartbeat.
func (r *Registry) WriteDeviceRecord(now time.Time) error {
	rec := DeviceRecord{
		Name:      r.deviceID,
		ThreadID:  r.threadID,
		Hostname:  r.hostname,
		Directory: r.directory,
		PID:       r.pid,
		LastSeen:  now.UnixMilli(),
	}
	return r.store.WriteJSON(devicesDir, r.fileName, rec)
}

// ReadState reads the shared state record.
func (r *Registry) ReadState() (StateRecord, error) {
	var st StateRecord
	err := r.store.ReadJSON("", stateFile, &st)
	return st, err
}

// WriteState replaces the shared state record. Only the leader (or a
// verifying candidate) may call this.
func (r *Registry) WriteState(st StateRecord) error {
	return r.store.WriteJSON("", stateFile, st)
}

// ListDevices reads every device record, skipping malformed files, and
// returns them active-first then lastSeen descending, numbered from 1.
func (r *Registry) ListDevices() ([]DeviceListing, error) {
	names, err := r.store.List(devicesDir)
	if err != nil {
		return nil, err
	}
	st, stErr := r.ReadState()
	active := ""
	if stErr == nil {
		active = st.ActiveDevice
	}

	var recs []DeviceRecord
	for _, name := range names {
		var rec DeviceRecord
		if err := r.store.ReadJSON(devicesDir, name, &rec); err != nil {
			slog.Warn("skipping malformed device record", "file", name, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		ai, aj := recs[i].Name == active, recs[j].Name == active
		if ai != aj {
			return ai
		}
		return recs[i].LastSeen > recs[j].LastSeen
	})

	out := make([]DeviceListing, len(recs))
	for i, rec := range recs {
		out[i] = DeviceListing{Number: i + 1, Record: rec, Active: rec.Name == active}
	}
	return out, nil
}

// FindDevice resolves a /use or /stop selector: a 1-based number or a
// device-name fragment.
func (r *Registry) FindDevice(selector string) (DeviceListing, bool) {
	devices, err := r.ListDevices()
	if err != nil {
		return DeviceListing{}, false
	}
	if n, err := strconv.Atoi(selector); err == nil {
		for _, d := range devices {
			if d.Number == n {
				return d, true
			}
		}
		return DeviceListing{}, false
	}
	for _, d := range devices {
		if d.Record.Name == selector || strings.Contains(d.Record.Name, selector) {
			return d, true
		}
	}
	return DeviceListing{}, false
}

// RemoveDevice deletes a device record by name.
func (r *Registry) RemoveDevice(name string) error {
	return r.store.Delete(devicesDir, SanitizeDeviceID(name)+".json")
}

// SweepStale removes device records whose lastSeen exceeds StaleDeviceAge.
func (r *Registry) SweepStale(now time.Time) {
	names, err := r.store.List(devicesDir)
	if err != nil {
		slog.Warn("stale sweep list failed", "error", err)
		return
	}
	for _, name := range names {
		var rec DeviceRecord
		if err := r.store.ReadJSON(devicesDir, name, &rec); err != nil {
			continue
		}
		if now.Sub(time.UnixMilli(rec.LastSeen)) > StaleDeviceAge {
			if err := r.store.Delete(devicesDir, name); err != nil {
				slog.Warn("stale sweep delete failed", "file", name, "error", err)
			} else {
				slog.Info("swept stale device record", "device", rec.Name)
			}
		}
	}
}
