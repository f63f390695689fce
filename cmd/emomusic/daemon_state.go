package main

import (
	"time"

	"github.com/vaishakh3/emomusic/internal/detection"
	"github.com/vaishakh3/emomusic/internal/device"
	"github.com/vaishakh3/emomusic/internal/domain"
	"github.com/vaishakh3/emomusic/internal/fault"
	"github.com/vaishakh3/emomusic/internal/mood"
	"github.com/vaishakh3/emomusic/internal/queue"
)

// PlaybackState is the session manager's connection/playback state.
type PlaybackState string

const (
	PlaybackDisconnected PlaybackState = "disconnected"
	PlaybackConnecting   PlaybackState = "connecting"
	PlaybackReady        PlaybackState = "ready"
	PlaybackActive       PlaybackState = "active"
	PlaybackPaused       PlaybackState = "paused"
	PlaybackError        PlaybackState = "error"
)

// connected reports whether playback commands can be issued in this state.
func (p PlaybackState) connected() bool {
	return p == PlaybackReady || p == PlaybackActive || p == PlaybackPaused
}

// MoodOrigin records who set the current mood.
type MoodOrigin string

const (
	MoodManual    MoodOrigin = "manual"
	MoodDetection MoodOrigin = "detection"
)

// DaemonState is the top-level, daemon-owned state container.
//
// Only the daemon goroutine mutates it (through Reduce). Other goroutines
// observe it via StateSnapshot.
type DaemonState struct {
	Playback   PlaybackState
	Device     device.Handle
	DeviceName string
	Track      domain.Track

	// Volume is the last known device volume in percent.
	Volume      int
	VolumeKnown bool

	Mood       mood.Label
	MoodOrigin MoodOrigin
	MoodAt     time.Time

	// FetchGen is the generation of the latest requested fetch. Results
	// carrying any other generation are stale.
	FetchGen uint64
	Fetching bool

	Queue *queue.Queue
	// QueueVersion changes every time the queue is loaded or its cursor moves.
	QueueVersion uint64

	// ConnectAttempt identifies the current device subscription. Observations
	// tagged with an older attempt are ignored.
	ConnectAttempt  uint64
	ConnectingSince time.Time

	Detection DetectionState

	Err *CurrentError

	UpdatedAt time.Time
}

// DetectionState mirrors the most recent detection session update.
type DetectionState struct {
	SessionID string          `json:"session_id,omitempty"`
	State     detection.State `json:"state"`
	Mood      mood.Label      `json:"mood,omitempty"`
	Err       string          `json:"error,omitempty"`
	At        time.Time       `json:"at,omitzero"`
}

// CurrentError is the single user-visible error slot.
type CurrentError struct {
	Kind    fault.Kind `json:"kind"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// NewDaemonState returns the initial state: disconnected, no mood, empty queue.
func NewDaemonState() *DaemonState {
	return &DaemonState{
		Playback:  PlaybackDisconnected,
		Queue:     queue.New(),
		Detection: DetectionState{State: detection.StateIdle},
	}
}

// setError stores err as the current error. A nil err clears it.
func (s *DaemonState) setError(err error, now time.Time) {
	if err == nil {
		s.Err = nil
		return
	}
	s.Err = &CurrentError{Kind: fault.KindOf(err), Message: err.Error(), At: now}
}

func (s *DaemonState) clearError() { s.Err = nil }

// releaseDevice forgets the device handle and everything reported about it.
func (s *DaemonState) releaseDevice() {
	s.Device = ""
	s.DeviceName = ""
	s.VolumeKnown = false
}

// ============================================================================
// Snapshots
// ============================================================================

// StateSnapshot is the JSON view of DaemonState published over IPC and websocket.
type StateSnapshot struct {
	Playback   PlaybackState  `json:"playback"`
	Device     device.Handle  `json:"device,omitempty"`
	DeviceName string         `json:"device_name,omitempty"`
	Track      *domain.Track  `json:"track,omitempty"`
	Volume     *int           `json:"volume_percent,omitempty"`
	Mood       mood.Label     `json:"mood,omitempty"`
	MoodOrigin MoodOrigin     `json:"mood_origin,omitempty"`
	Fetching   bool           `json:"fetching"`
	Queue      queue.Snapshot `json:"queue"`
	Detection  DetectionState `json:"detection"`
	Error      *CurrentError  `json:"error,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Snapshot copies the state into its published form.
func (s *DaemonState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Playback:   s.Playback,
		Device:     s.Device,
		DeviceName: s.DeviceName,
		Mood:       s.Mood,
		MoodOrigin: s.MoodOrigin,
		Fetching:   s.Fetching,
		Detection:  s.Detection,
		UpdatedAt:  s.UpdatedAt,
	}
	if !s.Track.IsZero() {
		t := s.Track
		snap.Track = &t
	}
	if s.VolumeKnown {
		v := s.Volume
		snap.Volume = &v
	}
	if s.Queue != nil {
		snap.Queue = s.Queue.Snapshot()
	} else {
		snap.Queue.Tracks = []domain.Track{}
	}
	if s.Err != nil {
		e := *s.Err
		snap.Error = &e
	}
	return snap
}
