package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/vaishakh3/emomusic/internal/detection"
	"github.com/vaishakh3/emomusic/internal/device"
	"github.com/vaishakh3/emomusic/internal/domain"
	"github.com/vaishakh3/emomusic/internal/fault"
	"github.com/vaishakh3/emomusic/internal/mood"
	"github.com/vaishakh3/emomusic/internal/queue"
)

// This file implements the playback session manager as a reducer:
//
//   - Events: inputs (control events, ticks, device/fetch/detection observations)
//   - Commands: side effects requested by the reducer (device calls, fetches, detection)
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//
// The daemon loop executes Commands through the effect runner, which feeds
// observations back as Events.

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at a fixed cadence.
type Tick struct {
	Now time.Time
	Dt  float64
}

// TimedEvent stamps an inbound event with its arrival time.
type TimedEvent struct {
	Event Event
	At    time.Time
}

// ConnectFailed is emitted when subscribing to the device fails.
type ConnectFailed struct {
	Attempt uint64
	Err     error
}

// DeviceReady and DeviceNotReady translate subscription Ready/NotReady events.
type DeviceReady struct {
	Attempt uint64
	Device  device.Handle
	Name    string
}

type DeviceNotReady struct {
	Attempt uint64
	Device  device.Handle
}

// SubscriptionEnded is emitted when a subscription's event feed closes.
type SubscriptionEnded struct {
	Attempt uint64
}

type RecommendationsFetched struct {
	Gen    uint64
	Mood   mood.Label
	Tracks []domain.Track
}

type RecommendationsFailed struct {
	Gen  uint64
	Mood mood.Label
	Err  error
}

// TrackDispatched is emitted after the device accepted a dispatch.
type TrackDispatched struct {
	Device device.Handle
	Track  domain.Track
}

// CommandFailed is emitted when executing a Command fails.
type CommandFailed struct {
	Command Command
	Err     error
}

// DetectionUpdated carries a detection session update.
type DetectionUpdated struct {
	Update detection.Update
}

// RequestStateSnapshot asks the reducer for a snapshot delivered on Reply.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (Tick) eventMarker()                   {}
func (TimedEvent) eventMarker()             {}
func (ConnectFailed) eventMarker()          {}
func (DeviceReady) eventMarker()            {}
func (DeviceNotReady) eventMarker()         {}
func (SubscriptionEnded) eventMarker()      {}
func (RecommendationsFetched) eventMarker() {}
func (RecommendationsFailed) eventMarker()  {}
func (TrackDispatched) eventMarker()        {}
func (CommandFailed) eventMarker()          {}
func (DetectionUpdated) eventMarker()       {}
func (RequestStateSnapshot) eventMarker()   {}

// ==============================
// Reducer input/output
// ==============================

// ReducerConfig holds the policy knobs the reducer needs.
type ReducerConfig struct {
	RecommendLimit int
	InitialVolume  int           // percent, applied once per device attach
	ConnectTimeout time.Duration // 0 disables
}

// ReduceResult is the output of Reduce(): next state, Commands to execute and
// Broadcasts for websocket clients.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Only mutates s (which is owned by the daemon goroutine)
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState()
	}
	if s.Queue == nil {
		s.Queue = queue.New()
	}

	now := time.Now()
	switch ev := e.(type) {
	case TimedEvent:
		e = ev.Event
		if !ev.At.IsZero() {
			now = ev.At
		}
	case Tick:
		now = ev.Now
	}

	before := s.view()
	st := &step{s: s, cfg: cfg, now: now}
	st.apply(e)

	bcasts := diffBroadcasts(before, s, now)
	if len(bcasts) > 0 {
		s.UpdatedAt = now
	}

	return ReduceResult{
		State:      s,
		Commands:   st.cmds,
		Broadcasts: bcasts,
	}
}

// step carries one reduction.
type step struct {
	s    *DaemonState
	cfg  ReducerConfig
	now  time.Time
	cmds []Command
}

func (st *step) emit(c Command) { st.cmds = append(st.cmds, c) }

func (st *step) apply(e Event) {
	s := st.s

	switch ev := e.(type) {
	case Tick:
		if s.Playback == PlaybackConnecting && st.cfg.ConnectTimeout > 0 &&
			st.now.Sub(s.ConnectingSince) >= st.cfg.ConnectTimeout {
			s.ConnectAttempt++
			s.Playback = PlaybackError
			s.releaseDevice()
			s.setError(fmt.Errorf("device not ready after %s: %w", st.cfg.ConnectTimeout, fault.ErrNoDevice), st.now)
			st.emit(CmdDisconnect{})
		}

	// ---- connection lifecycle ----

	case Connect:
		if s.Playback != PlaybackDisconnected && s.Playback != PlaybackError {
			return
		}
		st.beginConnect()

	case Disconnect:
		if s.Playback == PlaybackDisconnected {
			return
		}
		s.ConnectAttempt++
		s.Playback = PlaybackDisconnected
		s.releaseDevice()
		s.Track = domain.Track{}
		s.clearError()
		st.emit(CmdDisconnect{})

	case ConnectFailed:
		if ev.Attempt != s.ConnectAttempt || s.Playback == PlaybackDisconnected {
			return
		}
		s.Playback = PlaybackError
		s.releaseDevice()
		s.setError(ev.Err, st.now)

	case SubscriptionEnded:
		if ev.Attempt != s.ConnectAttempt || s.Playback == PlaybackDisconnected {
			return
		}
		s.Playback = PlaybackError
		s.releaseDevice()
		s.setError(fmt.Errorf("device subscription ended: %w", fault.ErrNetwork), st.now)

	case DeviceReady:
		if ev.Attempt != s.ConnectAttempt || s.Playback == PlaybackDisconnected {
			return
		}
		if s.Device == ev.Device && s.Playback.connected() {
			return
		}
		s.Device = ev.Device
		s.DeviceName = ev.Name
		s.Playback = PlaybackReady
		s.clearError()
		st.emit(CmdSetVolume{Device: ev.Device, Percent: clampPercent(st.cfg.InitialVolume)})
		if s.Mood != "" {
			st.startFetch()
		}

	case DeviceNotReady:
		if ev.Attempt != s.ConnectAttempt || s.Device == "" || ev.Device != s.Device {
			return
		}
		s.Playback = PlaybackConnecting
		s.ConnectingSince = st.now
		s.releaseDevice()
		s.Track = domain.Track{}
		s.setError(fmt.Errorf("device %s went away: %w", ev.Device, fault.ErrNoDevice), st.now)

	case DeviceLost:
		if !s.Playback.connected() {
			return
		}
		st.beginConnect()
		s.setError(fmt.Errorf("remote session lost: %w", fault.ErrNoDevice), st.now)

	// ---- mood and recommendations ----

	case SelectMood:
		label, err := mood.ParseLabel(ev.Mood)
		if err != nil {
			s.setError(err, st.now)
			return
		}
		st.recordMood(label, MoodManual)

	case RecommendationsFetched:
		if ev.Gen != s.FetchGen {
			return
		}
		s.Fetching = false
		if err := s.Queue.Load(ev.Tracks); err != nil {
			s.setError(err, st.now)
			return
		}
		s.QueueVersion++
		s.clearError()
		if s.Playback.connected() && s.Device != "" {
			st.dispatchCurrent()
		}

	case RecommendationsFailed:
		if ev.Gen != s.FetchGen {
			return
		}
		s.Fetching = false
		s.setError(ev.Err, st.now)

	// ---- playback commands ----

	case Play:
		if !st.requireConnected("play") {
			return
		}
		st.dispatchCurrent()

	case Pause:
		if !st.requireConnected("pause") {
			return
		}
		if s.Playback == PlaybackActive {
			s.Playback = PlaybackPaused
		}
		st.emit(CmdPause{Device: s.Device})

	case Resume:
		if !st.requireConnected("resume") {
			return
		}
		if s.Playback == PlaybackPaused {
			s.Playback = PlaybackActive
		}
		st.emit(CmdResume{Device: s.Device})

	case TogglePlay:
		if !st.requireConnected("toggle") {
			return
		}
		switch s.Playback {
		case PlaybackActive:
			s.Playback = PlaybackPaused
		case PlaybackPaused:
			s.Playback = PlaybackActive
		}
		st.emit(CmdTogglePlay{Device: s.Device})

	case Next:
		if !st.requireConnected("next") {
			return
		}
		st.navigate(s.Queue.Advance)

	case Previous:
		if !st.requireConnected("previous") {
			return
		}
		st.navigate(s.Queue.Retreat)

	case SkipNext:
		if !st.requireConnected("skip next") {
			return
		}
		st.emit(CmdSkipNext{Device: s.Device})

	case SkipPrevious:
		if !st.requireConnected("skip previous") {
			return
		}
		st.emit(CmdSkipPrevious{Device: s.Device})

	case SetVolume:
		if !st.requireConnected("set volume") {
			return
		}
		st.emit(CmdSetVolume{Device: s.Device, Percent: clampPercent(ev.Percent)})

	// ---- effect observations ----

	case TrackDispatched:
		if ev.Device != s.Device || !s.Playback.connected() {
			return
		}
		s.Playback = PlaybackActive
		s.Track = ev.Track
		s.clearError()

	case CommandFailed:
		if h, ok := commandDevice(ev.Command); ok && h != "" && h == s.Device && errors.Is(ev.Err, fault.ErrNoDevice) {
			s.Playback = PlaybackError
			s.releaseDevice()
		}
		s.setError(ev.Err, st.now)

	case DeviceStateReported:
		st.applyReport(ev)

	case DeviceVolumeReported:
		if s.Device == "" {
			return
		}
		s.Volume = clampPercent(ev.Percent)
		s.VolumeKnown = true

	// ---- detection ----

	case StartDetection:
		st.emit(CmdStartDetection{})

	case StopDetection:
		st.emit(CmdStopDetection{})

	case DetectionUpdated:
		u := ev.Update
		// Idle only follows Stop, so it is accepted for a session that
		// replaced the tracked one before its first update.
		if u.SessionID != s.Detection.SessionID && u.State != detection.StateLoadingModels && u.State != detection.StateIdle {
			return
		}
		s.Detection = DetectionState{SessionID: u.SessionID, State: u.State, Mood: u.Mood, At: u.At}
		switch u.State {
		case detection.StateCompleted:
			s.clearError()
			st.recordMood(u.Mood, MoodDetection)
		case detection.StateError:
			err := u.Err
			if err == nil {
				err = errors.New("detection failed")
			}
			s.Detection.Err = err.Error()
			s.setError(err, st.now)
		}

	// ---- queries ----

	case RequestStateSnapshot:
		st.emit(CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot()})

	case GetState:
		// Answered by the IPC layer through RequestStateSnapshot.

	default:
		// Unknown event type: no-op.
	}
}

// beginConnect starts a fresh subscription attempt.
func (st *step) beginConnect() {
	s := st.s
	s.ConnectAttempt++
	s.Playback = PlaybackConnecting
	s.ConnectingSince = st.now
	s.releaseDevice()
	st.emit(CmdConnect{Attempt: s.ConnectAttempt})
}

// recordMood stores the mood and, while connected, starts a fetch for it.
// Otherwise the fetch waits for the next DeviceReady.
func (st *step) recordMood(label mood.Label, origin MoodOrigin) {
	s := st.s
	s.Mood = label
	s.MoodOrigin = origin
	s.MoodAt = st.now
	if s.Playback.connected() {
		st.startFetch()
	}
}

// startFetch bumps the fetch generation so results of older fetches are discarded.
func (st *step) startFetch() {
	s := st.s
	s.FetchGen++
	s.Fetching = true
	st.emit(CmdFetchRecommendations{Gen: s.FetchGen, Mood: s.Mood, Limit: st.cfg.RecommendLimit})
}

func (st *step) dispatchCurrent() {
	s := st.s
	t, err := s.Queue.Current()
	if err != nil {
		s.setError(fmt.Errorf("play: %w", err), st.now)
		return
	}
	st.emit(CmdDispatch{Device: s.Device, Track: t})
}

func (st *step) navigate(move func() (queue.Position, error)) {
	s := st.s
	pos, err := move()
	if err != nil {
		s.setError(err, st.now)
		return
	}
	if pos.AtBoundary {
		return
	}
	s.QueueVersion++
	st.emit(CmdDispatch{Device: s.Device, Track: pos.Track})
}

// requireConnected reports NotReady unless a device is held in a playable state.
func (st *step) requireConnected(op string) bool {
	s := st.s
	if s.Playback.connected() && s.Device != "" {
		return true
	}
	s.setError(fmt.Errorf("%s in state %s: %w", op, s.Playback, fault.ErrNotReady), st.now)
	return false
}

// applyReport overwrites the optimistic playback state with a device report.
func (st *step) applyReport(ev DeviceStateReported) {
	s := st.s
	if ev.Attempt != 0 && ev.Attempt != s.ConnectAttempt {
		return
	}

	switch {
	case s.Device != "":
		if ev.Device != "" && ev.Device != string(s.Device) {
			return
		}
		if !s.Playback.connected() {
			return
		}
	case s.Playback == PlaybackError && ev.Attempt != 0 && ev.Device != "":
		// The live subscription still sees the device: re-attach.
		s.Device = device.Handle(ev.Device)
	default:
		return
	}

	switch ev.State {
	case reportPlaying:
		s.Playback = PlaybackActive
	case reportPaused:
		s.Playback = PlaybackPaused
	default:
		s.Playback = PlaybackReady
		s.Track = domain.Track{}
	}
	if ev.Track != nil && !ev.Track.IsZero() {
		s.Track = *ev.Track
	}
	s.clearError()
}

// commandDevice returns the device a command targets, if any.
func commandDevice(c Command) (device.Handle, bool) {
	switch c := c.(type) {
	case CmdDispatch:
		return c.Device, true
	case CmdPause:
		return c.Device, true
	case CmdResume:
		return c.Device, true
	case CmdTogglePlay:
		return c.Device, true
	case CmdSkipNext:
		return c.Device, true
	case CmdSkipPrevious:
		return c.Device, true
	case CmdSetVolume:
		return c.Device, true
	}
	return "", false
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
