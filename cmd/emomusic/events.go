package main

import (
	"encoding/json"
	"fmt"

	"github.com/vaishakh3/emomusic/internal/domain"
)

// ============================================================================
// Control Events
// ============================================================================
// Control events represent intent from the outside world (IPC, websocket
// clients, media keys, the librespot hook). They all travel through the
// daemon's single inbound channel and are reduced in arrival order.
// ============================================================================

// Connect asks the daemon to subscribe to the playback device.
type Connect struct{}

// Disconnect releases the device handle and closes the subscription.
type Disconnect struct{}

// SelectMood sets the mood explicitly.
type SelectMood struct {
	Mood string `json:"mood"`
}

// Play dispatches the current queue track to the device.
type Play struct{}

type Pause struct{}
type Resume struct{}
type TogglePlay struct{}

// Next and Previous navigate the queue and dispatch the new current track.
type Next struct{}
type Previous struct{}

// SkipNext and SkipPrevious are device-native skips; the queue cursor is not moved.
type SkipNext struct{}
type SkipPrevious struct{}

// SetVolume sets the device volume in percent.
type SetVolume struct {
	Percent int `json:"percent"`
}

type StartDetection struct{}
type StopDetection struct{}

// DeviceStateReported is an asynchronous playback report. It arrives from the
// device subscription and from the librespot hook. The last report wins.
//
// An empty Device means "the device currently held".
type DeviceStateReported struct {
	Device string        `json:"device,omitempty"`
	State  string        `json:"state"` // "playing", "paused", "stopped"
	Track  *domain.Track `json:"track,omitempty"`

	// Attempt tags reports coming from a device subscription; 0 for external reports.
	Attempt uint64 `json:"-"`
}

// DeviceVolumeReported carries the device volume in percent.
type DeviceVolumeReported struct {
	Percent int `json:"percent"`
}

// DeviceLost reports that the remote session on the device went away.
type DeviceLost struct{}

// GetState asks for a state snapshot. IPC answers it directly; reducing it is a no-op.
type GetState struct{}

const (
	reportPlaying = "playing"
	reportPaused  = "paused"
	reportStopped = "stopped"
)

func (Connect) eventMarker()              {}
func (Disconnect) eventMarker()           {}
func (SelectMood) eventMarker()           {}
func (Play) eventMarker()                 {}
func (Pause) eventMarker()                {}
func (Resume) eventMarker()               {}
func (TogglePlay) eventMarker()           {}
func (Next) eventMarker()                 {}
func (Previous) eventMarker()             {}
func (SkipNext) eventMarker()             {}
func (SkipPrevious) eventMarker()         {}
func (SetVolume) eventMarker()            {}
func (StartDetection) eventMarker()       {}
func (StopDetection) eventMarker()        {}
func (DeviceStateReported) eventMarker()  {}
func (DeviceVolumeReported) eventMarker() {}
func (DeviceLost) eventMarker()           {}
func (GetState) eventMarker()             {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// controlEventTypes maps wire names to zero values of the control events.
// Events without payload are decoded without looking at data.
var controlEventTypes = map[string]Event{
	"connect":                Connect{},
	"disconnect":             Disconnect{},
	"select_mood":            SelectMood{},
	"play":                   Play{},
	"pause":                  Pause{},
	"resume":                 Resume{},
	"toggle_play":            TogglePlay{},
	"next":                   Next{},
	"previous":               Previous{},
	"skip_next":              SkipNext{},
	"skip_previous":          SkipPrevious{},
	"set_volume":             SetVolume{},
	"start_detection":        StartDetection{},
	"stop_detection":         StopDetection{},
	"device_state_reported":  DeviceStateReported{},
	"device_volume_reported": DeviceVolumeReported{},
	"device_lost":            DeviceLost{},
	"get_state":              GetState{},
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "select_mood":
		var e SelectMood
		if err := decodeData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SelectMood: %w", err)
		}
		return e, nil

	case "set_volume":
		var e SetVolume
		if err := decodeData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SetVolume: %w", err)
		}
		return e, nil

	case "device_state_reported":
		var e DeviceStateReported
		if err := decodeData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal DeviceStateReported: %w", err)
		}
		switch e.State {
		case reportPlaying, reportPaused, reportStopped:
		default:
			return nil, fmt.Errorf("unmarshal DeviceStateReported: unknown state %q", e.State)
		}
		return e, nil

	case "device_volume_reported":
		var e DeviceVolumeReported
		if err := decodeData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal DeviceVolumeReported: %w", err)
		}
		return e, nil
	}

	if ev, ok := controlEventTypes[env.Type]; ok {
		return ev, nil
	}
	return nil, fmt.Errorf("unknown event type: %q", env.Type)
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(data, v)
}

// MarshalEvent serializes a control Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	env := EventEnvelope{Type: eventWireName(e)}
	if env.Type == "" {
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	switch e.(type) {
	case SelectMood, SetVolume, DeviceStateReported, DeviceVolumeReported:
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal %T: %w", e, err)
		}
		env.Data = data
	}

	return json.Marshal(env)
}

// eventWireName returns the envelope type for a control event, or "" for
// events that never cross the wire.
func eventWireName(e Event) string {
	switch e.(type) {
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case SelectMood:
		return "select_mood"
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case TogglePlay:
		return "toggle_play"
	case Next:
		return "next"
	case Previous:
		return "previous"
	case SkipNext:
		return "skip_next"
	case SkipPrevious:
		return "skip_previous"
	case SetVolume:
		return "set_volume"
	case StartDetection:
		return "start_detection"
	case StopDetection:
		return "stop_detection"
	case DeviceStateReported:
		return "device_state_reported"
	case DeviceVolumeReported:
		return "device_volume_reported"
	case DeviceLost:
		return "device_lost"
	case GetState:
		return "get_state"
	}
	return ""
}
