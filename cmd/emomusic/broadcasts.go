package main

import (
	"time"

	"github.com/vaishakh3/emomusic/internal/device"
	"github.com/vaishakh3/emomusic/internal/domain"
	"github.com/vaishakh3/emomusic/internal/mood"
	"github.com/vaishakh3/emomusic/internal/queue"
)

// ==============================
// Broadcasts (reducer -> websocket)
// ==============================

// StateBroadcast is a state change published to websocket clients.
// Broadcasts are computed by Reduce and carry only the changed slice of state.
type StateBroadcast interface {
	broadcastMarker()
}

type BroadcastPlaybackChanged struct {
	Playback   PlaybackState
	Device     device.Handle
	DeviceName string
	Track      *domain.Track
	Fetching   bool
	At         time.Time
}

type BroadcastMoodChanged struct {
	Mood   mood.Label
	Origin MoodOrigin
	At     time.Time
}

type BroadcastQueueChanged struct {
	Queue queue.Snapshot
	At    time.Time
}

// BroadcastErrorChanged carries the new current error; nil means cleared.
type BroadcastErrorChanged struct {
	Error *CurrentError
	At    time.Time
}

type BroadcastDetectionChanged struct {
	Detection DetectionState
	At        time.Time
}

type BroadcastVolumeChanged struct {
	Percent int
	At      time.Time
}

func (BroadcastPlaybackChanged) broadcastMarker()  {}
func (BroadcastMoodChanged) broadcastMarker()      {}
func (BroadcastQueueChanged) broadcastMarker()     {}
func (BroadcastErrorChanged) broadcastMarker()     {}
func (BroadcastDetectionChanged) broadcastMarker() {}
func (BroadcastVolumeChanged) broadcastMarker()    {}

// stateView is the comparable projection of DaemonState used to detect changes.
type stateView struct {
	playback   PlaybackState
	device     device.Handle
	deviceName string
	track      domain.Track
	fetching   bool

	mood       mood.Label
	moodOrigin MoodOrigin
	moodAt     time.Time

	queueVersion uint64
	err          *CurrentError
	detection    DetectionState

	volume      int
	volumeKnown bool
}

func (s *DaemonState) view() stateView {
	return stateView{
		playback:     s.Playback,
		device:       s.Device,
		deviceName:   s.DeviceName,
		track:        s.Track,
		fetching:     s.Fetching,
		mood:         s.Mood,
		moodOrigin:   s.MoodOrigin,
		moodAt:       s.MoodAt,
		queueVersion: s.QueueVersion,
		err:          s.Err,
		detection:    s.Detection,
		volume:       s.Volume,
		volumeKnown:  s.VolumeKnown,
	}
}

// diffBroadcasts compares the state before a reduction with s and returns one
// broadcast per changed slice, in a fixed order.
func diffBroadcasts(before stateView, s *DaemonState, now time.Time) []StateBroadcast {
	after := s.view()
	var out []StateBroadcast

	if before.playback != after.playback || before.device != after.device ||
		before.deviceName != after.deviceName || before.track != after.track ||
		before.fetching != after.fetching {
		b := BroadcastPlaybackChanged{
			Playback:   after.playback,
			Device:     after.device,
			DeviceName: after.deviceName,
			Fetching:   after.fetching,
			At:         now,
		}
		if !after.track.IsZero() {
			t := after.track
			b.Track = &t
		}
		out = append(out, b)
	}

	if before.mood != after.mood || before.moodOrigin != after.moodOrigin || !before.moodAt.Equal(after.moodAt) {
		out = append(out, BroadcastMoodChanged{Mood: after.mood, Origin: after.moodOrigin, At: now})
	}

	if before.queueVersion != after.queueVersion {
		out = append(out, BroadcastQueueChanged{Queue: s.Queue.Snapshot(), At: now})
	}

	if before.err != after.err {
		var e *CurrentError
		if after.err != nil {
			cp := *after.err
			e = &cp
		}
		out = append(out, BroadcastErrorChanged{Error: e, At: now})
	}

	if before.detection != after.detection {
		out = append(out, BroadcastDetectionChanged{Detection: after.detection, At: now})
	}

	if after.volumeKnown && (!before.volumeKnown || before.volume != after.volume) {
		out = append(out, BroadcastVolumeChanged{Percent: after.volume, At: now})
	}

	return out
}
