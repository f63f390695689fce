// Package device talks to the external playback device: a Spotify Connect
// target driven through the Web API.
package device

import (
	"context"

	"github.com/vaishakh3/emomusic/internal/domain"
)

// DefaultName is the Connect device name the daemon waits for.
const DefaultName = "Mood Music Player"

// Handle identifies the current output target. It is only meaningful between
// a Ready and the matching NotReady (or until the subscription is closed).
type Handle string

// State is one playback report from the device side.
type State struct {
	Device     Handle       `json:"device"`
	DeviceName string       `json:"device_name,omitempty"`
	Active     bool         `json:"active"` // something is loaded for playback on Device
	Paused     bool         `json:"paused"`
	Track      domain.Track `json:"track"`
	Volume     int          `json:"volume_percent"`
}

// Event is delivered on a Subscription.
type Event interface {
	deviceEvent()
}

// Ready is emitted when the named device becomes available.
type Ready struct {
	Device Handle
	Name   string
}

// NotReady is emitted when a previously ready device goes away.
type NotReady struct {
	Device Handle
}

// StateChanged is emitted when the reported playback state changes.
type StateChanged struct {
	State State
}

func (Ready) deviceEvent()        {}
func (NotReady) deviceEvent()     {}
func (StateChanged) deviceEvent() {}

// Subscription is a live feed of device events. Events is closed once the
// feed stops. Close unsubscribes and is safe to call more than once.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Player is the playback collaborator used by the session manager.
type Player interface {
	Connect(ctx context.Context) (Subscription, error)
	Dispatch(ctx context.Context, h Handle, t domain.Track) error
	Pause(ctx context.Context, h Handle) error
	Resume(ctx context.Context, h Handle) error
	TogglePlay(ctx context.Context, h Handle) error
	NextTrack(ctx context.Context, h Handle) error
	PreviousTrack(ctx context.Context, h Handle) error
	SetVolume(ctx context.Context, h Handle, percent int) error
	CurrentState(ctx context.Context) (State, error)
}
