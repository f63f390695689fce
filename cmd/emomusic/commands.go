package main

import (
	"fmt"

	"github.com/vaishakh3/emomusic/internal/device"
	"github.com/vaishakh3/emomusic/internal/domain"
	"github.com/vaishakh3/emomusic/internal/mood"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed outside the reducer.
// Device commands run in order on one worker; fetches run concurrently.
type Command interface {
	commandMarker()
	String() string
}

// CmdConnect subscribes to the playback device, replacing any previous subscription.
type CmdConnect struct {
	Attempt uint64
}

func (CmdConnect) commandMarker()   {}
func (c CmdConnect) String() string { return fmt.Sprintf("CmdConnect(attempt=%d)", c.Attempt) }

// CmdDisconnect closes the device subscription.
type CmdDisconnect struct{}

func (CmdDisconnect) commandMarker() {}
func (CmdDisconnect) String() string { return "CmdDisconnect()" }

// CmdFetchRecommendations asks the recommendation fetcher for tracks matching Mood.
type CmdFetchRecommendations struct {
	Gen   uint64
	Mood  mood.Label
	Limit int
}

func (CmdFetchRecommendations) commandMarker() {}
func (c CmdFetchRecommendations) String() string {
	return fmt.Sprintf("CmdFetchRecommendations(gen=%d, mood=%s, limit=%d)", c.Gen, c.Mood, c.Limit)
}

// CmdDispatch starts playing Track on Device.
type CmdDispatch struct {
	Device device.Handle
	Track  domain.Track
}

func (CmdDispatch) commandMarker() {}
func (c CmdDispatch) String() string {
	return fmt.Sprintf("CmdDispatch(device=%s, uri=%s)", c.Device, c.Track.URI)
}

type CmdPause struct {
	Device device.Handle
}

func (CmdPause) commandMarker()   {}
func (c CmdPause) String() string { return fmt.Sprintf("CmdPause(device=%s)", c.Device) }

type CmdResume struct {
	Device device.Handle
}

func (CmdResume) commandMarker()   {}
func (c CmdResume) String() string { return fmt.Sprintf("CmdResume(device=%s)", c.Device) }

type CmdTogglePlay struct {
	Device device.Handle
}

func (CmdTogglePlay) commandMarker()   {}
func (c CmdTogglePlay) String() string { return fmt.Sprintf("CmdTogglePlay(device=%s)", c.Device) }

// CmdSkipNext and CmdSkipPrevious use the device's own skip controls.
type CmdSkipNext struct {
	Device device.Handle
}

func (CmdSkipNext) commandMarker()   {}
func (c CmdSkipNext) String() string { return fmt.Sprintf("CmdSkipNext(device=%s)", c.Device) }

type CmdSkipPrevious struct {
	Device device.Handle
}

func (CmdSkipPrevious) commandMarker() {}
func (c CmdSkipPrevious) String() string {
	return fmt.Sprintf("CmdSkipPrevious(device=%s)", c.Device)
}

// CmdSetVolume sets the device volume in percent.
type CmdSetVolume struct {
	Device  device.Handle
	Percent int
}

func (CmdSetVolume) commandMarker() {}
func (c CmdSetVolume) String() string {
	return fmt.Sprintf("CmdSetVolume(device=%s, percent=%d)", c.Device, c.Percent)
}

// CmdStartDetection starts a new detection session, replacing a running one.
type CmdStartDetection struct{}

func (CmdStartDetection) commandMarker() {}
func (CmdStartDetection) String() string { return "CmdStartDetection()" }

// CmdStopDetection stops the running detection session.
type CmdStopDetection struct{}

func (CmdStopDetection) commandMarker() {}
func (CmdStopDetection) String() string { return "CmdStopDetection()" }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
