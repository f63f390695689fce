package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vaishakh3/emomusic/internal/detection"
	"github.com/vaishakh3/emomusic/internal/device"
	"github.com/vaishakh3/emomusic/internal/domain"
	"github.com/vaishakh3/emomusic/internal/fault"
	"github.com/vaishakh3/emomusic/internal/mood"
)

var testReducerCfg = ReducerConfig{
	RecommendLimit: 20,
	InitialVolume:  50,
	ConnectTimeout: 5 * time.Second,
}

func tracks(prefix string, n int) []domain.Track {
	out := make([]domain.Track, n)
	for i := range out {
		id := fmt.Sprintf("%s%d", prefix, i+1)
		out[i] = domain.Track{ID: id, Title: "Song " + id, Artist: "Artist", URI: "spotify:track:" + id}
	}
	return out
}

// reduceAt runs one reduction stamped with at.
func reduceAt(t *testing.T, s *DaemonState, ev Event, at time.Time) ReduceResult {
	t.Helper()
	rr := Reduce(s, TimedEvent{Event: ev, At: at}, testReducerCfg)
	if rr.State == nil {
		t.Fatalf("expected non-nil state")
	}
	return rr
}

// readyState returns a state holding device "dev-1" in Ready.
func readyState(t *testing.T, t0 time.Time) *DaemonState {
	t.Helper()
	s := NewDaemonState()
	rr := reduceAt(t, s, Connect{}, t0)
	c, ok := rr.Commands[0].(CmdConnect)
	if !ok {
		t.Fatalf("expected CmdConnect, got %T", rr.Commands[0])
	}
	reduceAt(t, s, DeviceReady{Attempt: c.Attempt, Device: "dev-1", Name: "EmoMusic"}, t0)
	if s.Playback != PlaybackReady {
		t.Fatalf("expected ready, got %s", s.Playback)
	}
	return s
}

func findCommand[T Command](cmds []Command) (T, bool) {
	for _, c := range cmds {
		if v, ok := c.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func findBroadcast[T StateBroadcast](bs []StateBroadcast) (T, bool) {
	for _, b := range bs {
		if v, ok := b.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestReduce_ConnectLifecycle(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := NewDaemonState()

	rr := reduceAt(t, s, Connect{}, t0)
	if s.Playback != PlaybackConnecting {
		t.Fatalf("expected connecting, got %s", s.Playback)
	}
	c, ok := findCommand[CmdConnect](rr.Commands)
	if !ok || c.Attempt != s.ConnectAttempt {
		t.Fatalf("expected CmdConnect for attempt %d, got %v", s.ConnectAttempt, rr.Commands)
	}

	// A second Connect while connecting is ignored.
	rr = reduceAt(t, s, Connect{}, t0)
	if len(rr.Commands) != 0 {
		t.Fatalf("expected no commands for duplicate connect, got %v", rr.Commands)
	}

	rr = reduceAt(t, s, DeviceReady{Attempt: c.Attempt, Device: "dev-1", Name: "EmoMusic"}, t0)
	if s.Playback != PlaybackReady || s.Device != "dev-1" || s.DeviceName != "EmoMusic" {
		t.Fatalf("unexpected state after ready: %+v", s)
	}
	vol, ok := findCommand[CmdSetVolume](rr.Commands)
	if !ok || vol.Percent != 50 || vol.Device != "dev-1" {
		t.Fatalf("expected initial CmdSetVolume(50), got %v", rr.Commands)
	}
	if _, ok := findCommand[CmdFetchRecommendations](rr.Commands); ok {
		t.Fatalf("expected no fetch without a mood")
	}

	rr = reduceAt(t, s, Disconnect{}, t0)
	if s.Playback != PlaybackDisconnected || s.Device != "" {
		t.Fatalf("expected released device after disconnect, got %+v", s)
	}
	if _, ok := findCommand[CmdDisconnect](rr.Commands); !ok {
		t.Fatalf("expected CmdDisconnect, got %v", rr.Commands)
	}
}

func TestReduce_StaleAttemptIgnored(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := NewDaemonState()

	reduceAt(t, s, Connect{}, t0)
	old := s.ConnectAttempt
	reduceAt(t, s, Disconnect{}, t0)
	reduceAt(t, s, Connect{}, t0)

	reduceAt(t, s, DeviceReady{Attempt: old, Device: "dev-old"}, t0)
	if s.Playback != PlaybackConnecting || s.Device != "" {
		t.Fatalf("stale DeviceReady must be ignored, got %s device=%q", s.Playback, s.Device)
	}
	reduceAt(t, s, SubscriptionEnded{Attempt: old}, t0)
	if s.Playback != PlaybackConnecting {
		t.Fatalf("stale SubscriptionEnded must be ignored, got %s", s.Playback)
	}
}

func TestReduce_CommandsBeforeReadyFailNotReady(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := NewDaemonState()
	reduceAt(t, s, Connect{}, t0)

	for _, ev := range []Event{Play{}, Pause{}, Resume{}, TogglePlay{}, Next{}, Previous{}, SkipNext{}, SetVolume{Percent: 10}} {
		rr := reduceAt(t, s, ev, t0)
		if len(rr.Commands) != 0 {
			t.Fatalf("%T: expected no commands, got %v", ev, rr.Commands)
		}
		if s.Err == nil || s.Err.Kind != fault.KindNotReady {
			t.Fatalf("%T: expected not_ready error, got %+v", ev, s.Err)
		}
		if s.Playback != PlaybackConnecting {
			t.Fatalf("%T: playback state changed to %s", ev, s.Playback)
		}
	}
}

func TestReduce_ConnectTimeout(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := NewDaemonState()
	reduceAt(t, s, Connect{}, t0)
	attempt := s.ConnectAttempt

	rr := Reduce(s, Tick{Now: t0.Add(4 * time.Second)}, testReducerCfg)
	if s.Playback != PlaybackConnecting || len(rr.Commands) != 0 {
		t.Fatalf("expected still connecting before timeout, got %s %v", s.Playback, rr.Commands)
	}

	rr = Reduce(s, Tick{Now: t0.Add(5 * time.Second)}, testReducerCfg)
	if s.Playback != PlaybackError {
		t.Fatalf("expected error after timeout, got %s", s.Playback)
	}
	if s.Err == nil || s.Err.Kind != fault.KindNoDevice {
		t.Fatalf("expected no_device error, got %+v", s.Err)
	}
	if _, ok := findCommand[CmdDisconnect](rr.Commands); !ok {
		t.Fatalf("expected CmdDisconnect on timeout, got %v", rr.Commands)
	}

	// The timed-out attempt can no longer attach.
	reduceAt(t, s, DeviceReady{Attempt: attempt, Device: "dev-1"}, t0)
	if s.Device != "" {
		t.Fatalf("expected timed-out attempt to be ignored")
	}

	// Connect is accepted again from Error.
	rr = reduceAt(t, s, Connect{}, t0.Add(6*time.Second))
	if s.Playback != PlaybackConnecting {
		t.Fatalf("expected reconnect from error, got %s", s.Playback)
	}
	if _, ok := findCommand[CmdConnect](rr.Commands); !ok {
		t.Fatalf("expected CmdConnect, got %v", rr.Commands)
	}
}

func TestReduce_SelectMoodFetchesAndPlays(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	rr := reduceAt(t, s, SelectMood{Mood: " Happy "}, t0)
	if s.Mood != mood.Happy || s.MoodOrigin != MoodManual {
		t.Fatalf("expected manual happy mood, got %q/%q", s.Mood, s.MoodOrigin)
	}
	f, ok := findCommand[CmdFetchRecommendations](rr.Commands)
	if !ok || f.Mood != mood.Happy || f.Limit != 20 || f.Gen != s.FetchGen {
		t.Fatalf("expected fetch for happy, got %v", rr.Commands)
	}
	if !s.Fetching {
		t.Fatalf("expected fetching=true")
	}

	list := tracks("a", 3)
	rr = reduceAt(t, s, RecommendationsFetched{Gen: f.Gen, Mood: mood.Happy, Tracks: list}, t0)
	if s.Fetching {
		t.Fatalf("expected fetching=false after results")
	}
	d, ok := findCommand[CmdDispatch](rr.Commands)
	if !ok || d.Track != list[0] || d.Device != "dev-1" {
		t.Fatalf("expected dispatch of first track, got %v", rr.Commands)
	}
	if _, ok := findBroadcast[BroadcastQueueChanged](rr.Broadcasts); !ok {
		t.Fatalf("expected queue_changed broadcast, got %v", rr.Broadcasts)
	}

	reduceAt(t, s, TrackDispatched{Device: "dev-1", Track: list[0]}, t0)
	if s.Playback != PlaybackActive || s.Track != list[0] {
		t.Fatalf("expected active on %s, got %s %+v", list[0].ID, s.Playback, s.Track)
	}
}

func TestReduce_InvalidMoodKeepsState(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)
	reduceAt(t, s, SelectMood{Mood: "sad"}, t0)
	gen := s.FetchGen

	rr := reduceAt(t, s, SelectMood{Mood: "furious"}, t0)
	if s.Mood != mood.Sad || s.FetchGen != gen {
		t.Fatalf("invalid mood must not change mood or fetch, got %q gen=%d", s.Mood, s.FetchGen)
	}
	if len(rr.Commands) != 0 {
		t.Fatalf("expected no commands, got %v", rr.Commands)
	}
	if s.Err == nil || s.Err.Kind != fault.KindInvalidInput {
		t.Fatalf("expected invalid_input error, got %+v", s.Err)
	}
}

func TestReduce_MoodChangeWhileActiveSwitchesQueue(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	rr := reduceAt(t, s, SelectMood{Mood: "happy"}, t0)
	f1, _ := findCommand[CmdFetchRecommendations](rr.Commands)
	first := tracks("a", 2)
	reduceAt(t, s, RecommendationsFetched{Gen: f1.Gen, Mood: mood.Happy, Tracks: first}, t0)
	reduceAt(t, s, TrackDispatched{Device: "dev-1", Track: first[0]}, t0)

	rr = reduceAt(t, s, SelectMood{Mood: "sad"}, t0)
	f2, ok := findCommand[CmdFetchRecommendations](rr.Commands)
	if !ok || f2.Mood != mood.Sad {
		t.Fatalf("expected fetch for sad, got %v", rr.Commands)
	}
	if s.Playback != PlaybackActive || s.Track != first[0] {
		t.Fatalf("playback must continue while fetching, got %s %+v", s.Playback, s.Track)
	}

	second := tracks("b", 2)
	rr = reduceAt(t, s, RecommendationsFetched{Gen: f2.Gen, Mood: mood.Sad, Tracks: second}, t0)
	d, ok := findCommand[CmdDispatch](rr.Commands)
	if !ok || d.Track != second[0] {
		t.Fatalf("expected dispatch of %s, got %v", second[0].ID, rr.Commands)
	}
	reduceAt(t, s, TrackDispatched{Device: "dev-1", Track: second[0]}, t0)
	if s.Playback != PlaybackActive || s.Track != second[0] {
		t.Fatalf("expected active on %s, got %s %+v", second[0].ID, s.Playback, s.Track)
	}
}

func TestReduce_StaleFetchDiscarded(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	rr := reduceAt(t, s, SelectMood{Mood: "happy"}, t0)
	f1, _ := findCommand[CmdFetchRecommendations](rr.Commands)
	rr = reduceAt(t, s, SelectMood{Mood: "sad"}, t0)
	f2, _ := findCommand[CmdFetchRecommendations](rr.Commands)

	newer := tracks("sad", 2)
	reduceAt(t, s, RecommendationsFetched{Gen: f2.Gen, Mood: mood.Sad, Tracks: newer}, t0)

	// The happy results arrive late and must not replace the sad queue.
	rr = reduceAt(t, s, RecommendationsFetched{Gen: f1.Gen, Mood: mood.Happy, Tracks: tracks("happy", 3)}, t0)
	if len(rr.Commands) != 0 {
		t.Fatalf("expected stale results to produce no commands, got %v", rr.Commands)
	}
	cur, err := s.Queue.Current()
	if err != nil || cur != newer[0] {
		t.Fatalf("expected queue to keep %s, got %+v (%v)", newer[0].ID, cur, err)
	}

	// A stale failure must not set an error either.
	reduceAt(t, s, RecommendationsFailed{Gen: f1.Gen, Mood: mood.Happy, Err: fault.ErrNetwork}, t0)
	if s.Err != nil {
		t.Fatalf("expected stale failure to be ignored, got %+v", s.Err)
	}
}

func TestReduce_EmptyRecommendationsKeepQueue(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	rr := reduceAt(t, s, SelectMood{Mood: "neutral"}, t0)
	f, _ := findCommand[CmdFetchRecommendations](rr.Commands)
	reduceAt(t, s, RecommendationsFetched{Gen: f.Gen, Mood: mood.Neutral, Tracks: tracks("n", 2)}, t0)

	rr = reduceAt(t, s, SelectMood{Mood: "energetic"}, t0)
	f, _ = findCommand[CmdFetchRecommendations](rr.Commands)
	rr = reduceAt(t, s, RecommendationsFetched{Gen: f.Gen, Mood: mood.Energetic, Tracks: nil}, t0)
	if len(rr.Commands) != 0 {
		t.Fatalf("expected no dispatch for empty results, got %v", rr.Commands)
	}
	if n := len(s.Queue.Snapshot().Tracks); n != 2 {
		t.Fatalf("expected previous queue to survive, len=%d", n)
	}
	if s.Err == nil || s.Err.Kind != fault.KindEmptyQueue {
		t.Fatalf("expected empty_queue error, got %+v", s.Err)
	}
}

func TestReduce_FetchFailureSetsError(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	rr := reduceAt(t, s, SelectMood{Mood: "happy"}, t0)
	f, _ := findCommand[CmdFetchRecommendations](rr.Commands)
	rr = reduceAt(t, s, RecommendationsFailed{Gen: f.Gen, Mood: mood.Happy, Err: fmt.Errorf("recommendations: %w", fault.ErrNetwork)}, t0)
	if s.Fetching {
		t.Fatalf("expected fetching=false")
	}
	if s.Err == nil || s.Err.Kind != fault.KindNetwork {
		t.Fatalf("expected network_error, got %+v", s.Err)
	}
	if _, ok := findBroadcast[BroadcastErrorChanged](rr.Broadcasts); !ok {
		t.Fatalf("expected error_changed broadcast")
	}
}

func TestReduce_MoodBeforeConnectFetchesOnReady(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := NewDaemonState()

	rr := reduceAt(t, s, SelectMood{Mood: "happy"}, t0)
	if len(rr.Commands) != 0 {
		t.Fatalf("expected no fetch while disconnected, got %v", rr.Commands)
	}

	rr = reduceAt(t, s, Connect{}, t0)
	c, _ := findCommand[CmdConnect](rr.Commands)
	rr = reduceAt(t, s, DeviceReady{Attempt: c.Attempt, Device: "dev-1"}, t0)
	f, ok := findCommand[CmdFetchRecommendations](rr.Commands)
	if !ok || f.Mood != mood.Happy {
		t.Fatalf("expected fetch for stored mood on ready, got %v", rr.Commands)
	}
}

func TestReduce_QueueNavigationAtBoundary(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	rr := reduceAt(t, s, SelectMood{Mood: "happy"}, t0)
	f, _ := findCommand[CmdFetchRecommendations](rr.Commands)
	list := tracks("a", 2)
	reduceAt(t, s, RecommendationsFetched{Gen: f.Gen, Mood: mood.Happy, Tracks: list}, t0)

	var dispatched []domain.Track
	for i := 0; i < 3; i++ {
		rr = reduceAt(t, s, Next{}, t0)
		if d, ok := findCommand[CmdDispatch](rr.Commands); ok {
			dispatched = append(dispatched, d.Track)
		}
	}
	if len(dispatched) != 1 || dispatched[0] != list[1] {
		t.Fatalf("expected a single dispatch of %s, got %v", list[1].ID, dispatched)
	}
	cur, _ := s.Queue.Current()
	if cur != list[1] {
		t.Fatalf("expected cursor on last track, got %+v", cur)
	}
	if s.Err != nil {
		t.Fatalf("boundary is not an error, got %+v", s.Err)
	}

	rr = reduceAt(t, s, Previous{}, t0)
	d, ok := findCommand[CmdDispatch](rr.Commands)
	if !ok || d.Track != list[0] {
		t.Fatalf("expected previous to dispatch %s, got %v", list[0].ID, rr.Commands)
	}
}

func TestReduce_PlayWithEmptyQueue(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	rr := reduceAt(t, s, Play{}, t0)
	if len(rr.Commands) != 0 {
		t.Fatalf("expected no dispatch, got %v", rr.Commands)
	}
	if s.Err == nil || s.Err.Kind != fault.KindNoCurrentTrack {
		t.Fatalf("expected no_current_track, got %+v", s.Err)
	}

	rr = reduceAt(t, s, Next{}, t0)
	if len(rr.Commands) != 0 || s.Err == nil || s.Err.Kind != fault.KindNoCurrentTrack {
		t.Fatalf("expected next on empty queue to fail, got %v %+v", rr.Commands, s.Err)
	}
}

func TestReduce_PauseResumeToggle(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)
	s.Playback = PlaybackActive

	rr := reduceAt(t, s, Pause{}, t0)
	if s.Playback != PlaybackPaused {
		t.Fatalf("expected paused, got %s", s.Playback)
	}
	if _, ok := findCommand[CmdPause](rr.Commands); !ok {
		t.Fatalf("expected CmdPause, got %v", rr.Commands)
	}

	rr = reduceAt(t, s, TogglePlay{}, t0)
	if s.Playback != PlaybackActive {
		t.Fatalf("expected active after toggle, got %s", s.Playback)
	}
	if _, ok := findCommand[CmdTogglePlay](rr.Commands); !ok {
		t.Fatalf("expected CmdTogglePlay, got %v", rr.Commands)
	}

	rr = reduceAt(t, s, SetVolume{Percent: 140}, t0)
	v, ok := findCommand[CmdSetVolume](rr.Commands)
	if !ok || v.Percent != 100 {
		t.Fatalf("expected clamped CmdSetVolume(100), got %v", rr.Commands)
	}
}

func TestReduce_LastDeviceReportWins(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)
	track := domain.Track{ID: "x1", URI: "spotify:track:x1", Title: "X"}

	reduceAt(t, s, DeviceStateReported{State: reportPlaying, Track: &track}, t0)
	if s.Playback != PlaybackActive || s.Track != track {
		t.Fatalf("expected active on x1, got %s %+v", s.Playback, s.Track)
	}

	// Optimistic pause, then the device reports playing again.
	reduceAt(t, s, Pause{}, t0)
	reduceAt(t, s, DeviceStateReported{State: reportPlaying}, t0)
	if s.Playback != PlaybackActive {
		t.Fatalf("expected report to override optimistic pause, got %s", s.Playback)
	}

	reduceAt(t, s, DeviceStateReported{State: reportStopped}, t0)
	if s.Playback != PlaybackReady || !s.Track.IsZero() {
		t.Fatalf("expected ready with no track after stop, got %s %+v", s.Playback, s.Track)
	}

	// Reports for another device are ignored.
	reduceAt(t, s, DeviceStateReported{Device: "dev-2", State: reportPlaying}, t0)
	if s.Playback != PlaybackReady {
		t.Fatalf("expected report for another device to be ignored, got %s", s.Playback)
	}
}

func TestReduce_ReportIgnoredWhileDisconnected(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := NewDaemonState()

	rr := reduceAt(t, s, DeviceStateReported{State: reportPlaying}, t0)
	if s.Playback != PlaybackDisconnected || len(rr.Broadcasts) != 0 {
		t.Fatalf("expected no change, got %s %v", s.Playback, rr.Broadcasts)
	}
}

func TestReduce_DeviceNotReadyReturnsToConnecting(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)
	attempt := s.ConnectAttempt

	reduceAt(t, s, DeviceNotReady{Attempt: attempt, Device: "dev-1"}, t0.Add(time.Second))
	if s.Playback != PlaybackConnecting || s.Device != "" {
		t.Fatalf("expected connecting without device, got %s %q", s.Playback, s.Device)
	}
	if s.Err == nil || s.Err.Kind != fault.KindNoDevice {
		t.Fatalf("expected no_device error, got %+v", s.Err)
	}

	// The same subscription reports the device again.
	rr := reduceAt(t, s, DeviceReady{Attempt: attempt, Device: "dev-1"}, t0.Add(2*time.Second))
	if s.Playback != PlaybackReady || s.Err != nil {
		t.Fatalf("expected ready again, got %s %+v", s.Playback, s.Err)
	}
	if _, ok := findCommand[CmdSetVolume](rr.Commands); !ok {
		t.Fatalf("expected initial volume on re-attach, got %v", rr.Commands)
	}
}

func TestReduce_DeviceLostReconnects(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)
	before := s.ConnectAttempt

	rr := reduceAt(t, s, DeviceLost{}, t0)
	c, ok := findCommand[CmdConnect](rr.Commands)
	if !ok || c.Attempt != before+1 {
		t.Fatalf("expected reconnect with new attempt, got %v", rr.Commands)
	}
	if s.Playback != PlaybackConnecting {
		t.Fatalf("expected connecting, got %s", s.Playback)
	}
}

func TestReduce_CommandFailedNoDeviceReleasesDevice(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	err := fmt.Errorf("dispatch: %w", fault.ErrNoDevice)
	reduceAt(t, s, CommandFailed{Command: CmdDispatch{Device: "dev-1"}, Err: err}, t0)
	if s.Playback != PlaybackError || s.Device != "" {
		t.Fatalf("expected error without device, got %s %q", s.Playback, s.Device)
	}

	// A failure that is not about the device only records the error.
	s = readyState(t, t0)
	reduceAt(t, s, CommandFailed{Command: CmdPause{Device: "dev-1"}, Err: errors.New("boom")}, t0)
	if s.Playback != PlaybackReady {
		t.Fatalf("expected ready, got %s", s.Playback)
	}
	if s.Err == nil || s.Err.Kind != fault.KindInternal {
		t.Fatalf("expected internal error, got %+v", s.Err)
	}
}

func TestReduce_ErrorRecoveredByLiveReport(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)
	attempt := s.ConnectAttempt

	reduceAt(t, s, CommandFailed{Command: CmdDispatch{Device: "dev-1"}, Err: fault.ErrNoDevice}, t0)
	if s.Playback != PlaybackError {
		t.Fatalf("expected error, got %s", s.Playback)
	}

	reduceAt(t, s, DeviceStateReported{Device: "dev-1", State: reportPaused, Attempt: attempt}, t0)
	if s.Playback != PlaybackPaused || s.Device != "dev-1" || s.Err != nil {
		t.Fatalf("expected re-attached paused device, got %s %q %+v", s.Playback, s.Device, s.Err)
	}
}

func TestReduce_DetectionCompletedSelectsMood(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	rr := reduceAt(t, s, StartDetection{}, t0)
	if _, ok := findCommand[CmdStartDetection](rr.Commands); !ok {
		t.Fatalf("expected CmdStartDetection, got %v", rr.Commands)
	}

	reduceAt(t, s, DetectionUpdated{Update: detection.Update{SessionID: "s1", State: detection.StateLoadingModels, At: t0}}, t0)
	reduceAt(t, s, DetectionUpdated{Update: detection.Update{SessionID: "s1", State: detection.StateDetecting, At: t0}}, t0)

	// Updates from an older session are ignored.
	reduceAt(t, s, DetectionUpdated{Update: detection.Update{SessionID: "s0", State: detection.StateCompleted, Mood: mood.Sad, At: t0}}, t0)
	if s.Mood != "" {
		t.Fatalf("expected update from old session to be ignored, got mood %q", s.Mood)
	}

	rr = reduceAt(t, s, DetectionUpdated{Update: detection.Update{SessionID: "s1", State: detection.StateCompleted, Mood: mood.Happy, At: t0}}, t0)
	if s.Mood != mood.Happy || s.MoodOrigin != MoodDetection {
		t.Fatalf("expected detected happy mood, got %q/%q", s.Mood, s.MoodOrigin)
	}
	if f, ok := findCommand[CmdFetchRecommendations](rr.Commands); !ok || f.Mood != mood.Happy {
		t.Fatalf("expected fetch for detected mood, got %v", rr.Commands)
	}
	if _, ok := findBroadcast[BroadcastDetectionChanged](rr.Broadcasts); !ok {
		t.Fatalf("expected detection_changed broadcast")
	}
	if b, ok := findBroadcast[BroadcastMoodChanged](rr.Broadcasts); !ok || b.Origin != MoodDetection {
		t.Fatalf("expected mood_changed from detection, got %v", rr.Broadcasts)
	}
}

func TestReduce_DetectionErrorSetsError(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := NewDaemonState()

	reduceAt(t, s, DetectionUpdated{Update: detection.Update{SessionID: "s1", State: detection.StateLoadingModels}}, t0)
	reduceAt(t, s, DetectionUpdated{Update: detection.Update{
		SessionID: "s1",
		State:     detection.StateError,
		Err:       fmt.Errorf("open camera: %w", fault.ErrCameraAccess),
	}}, t0)
	if s.Err == nil || s.Err.Kind != fault.KindCameraAccess {
		t.Fatalf("expected camera_access_error, got %+v", s.Err)
	}
	if s.Detection.State != detection.StateError || s.Detection.Err == "" {
		t.Fatalf("expected detection error state, got %+v", s.Detection)
	}
}

func TestReduce_StopDuringSessionReplacementReturnsToIdle(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	reduceAt(t, s, DetectionUpdated{Update: detection.Update{SessionID: "b", State: detection.StateLoadingModels, At: t0}}, t0)
	reduceAt(t, s, DetectionUpdated{Update: detection.Update{SessionID: "b", State: detection.StateDetecting, At: t0}}, t0)

	// Session a replaced b and was stopped before its first update.
	rr := reduceAt(t, s, DetectionUpdated{Update: detection.Update{SessionID: "a", State: detection.StateIdle, At: t0}}, t0)
	if s.Detection.State != detection.StateIdle || s.Detection.SessionID != "a" {
		t.Fatalf("expected idle for session a, got %+v", s.Detection)
	}
	if _, ok := findBroadcast[BroadcastDetectionChanged](rr.Broadcasts); !ok {
		t.Fatalf("expected detection_changed broadcast")
	}

	// Late non-idle updates from b stay ignored.
	reduceAt(t, s, DetectionUpdated{Update: detection.Update{SessionID: "b", State: detection.StateCompleted, Mood: mood.Sad, At: t0}}, t0)
	if s.Detection.State != detection.StateIdle || s.Mood != "" {
		t.Fatalf("expected late result from b to be ignored, got %+v mood %q", s.Detection, s.Mood)
	}
}

func TestReduce_VolumeBroadcastOnlyOnChange(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)

	rr := reduceAt(t, s, DeviceVolumeReported{Percent: 40}, t0)
	b, ok := findBroadcast[BroadcastVolumeChanged](rr.Broadcasts)
	if !ok || b.Percent != 40 || !b.At.Equal(t0) {
		t.Fatalf("expected volume_changed(40) at t0, got %v", rr.Broadcasts)
	}

	rr = reduceAt(t, s, DeviceVolumeReported{Percent: 40}, t0.Add(time.Second))
	if len(rr.Broadcasts) != 0 {
		t.Fatalf("expected no broadcast for same volume, got %v", rr.Broadcasts)
	}
	if !s.UpdatedAt.Equal(t0) {
		t.Fatalf("expected UpdatedAt unchanged without broadcasts, got %v", s.UpdatedAt)
	}
}

func TestReduce_SnapshotRequest(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	s := readyState(t, t0)
	reply := make(chan StateSnapshot, 1)

	rr := reduceAt(t, s, RequestStateSnapshot{Reply: reply}, t0)
	c, ok := findCommand[CmdPublishStateSnapshot](rr.Commands)
	if !ok {
		t.Fatalf("expected CmdPublishStateSnapshot, got %v", rr.Commands)
	}
	if c.Snapshot.Playback != PlaybackReady || c.Snapshot.Device != device.Handle("dev-1") {
		t.Fatalf("unexpected snapshot %+v", c.Snapshot)
	}
	if c.Snapshot.Queue.Tracks == nil {
		t.Fatalf("expected non-nil queue tracks in snapshot")
	}
}
