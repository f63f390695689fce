// Package fault defines the error taxonomy shared by every emomusic component.
//
// Components wrap one of the sentinels below with context using fmt.Errorf("...: %w").
// Callers classify with errors.Is or KindOf.
package fault

import "errors"

// Kind is a stable, externally visible error classification.
type Kind string

const (
	KindInvalidInput   Kind = "invalid_input"
	KindNotReady       Kind = "not_ready"
	KindNoDevice       Kind = "no_device"
	KindEmptyQueue     Kind = "empty_queue"
	KindNoCurrentTrack Kind = "no_current_track"
	KindNetwork        Kind = "network_error"
	KindEmptyResult    Kind = "empty_result"
	KindModelLoad      Kind = "model_load_error"
	KindCameraAccess   Kind = "camera_access_error"
	KindInternal       Kind = "internal"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotReady       = errors.New("playback not ready")
	ErrNoDevice       = errors.New("no playback device")
	ErrEmptyQueue     = errors.New("empty queue")
	ErrNoCurrentTrack = errors.New("no current track")
	ErrNetwork        = errors.New("network error")
	ErrEmptyResult    = errors.New("empty result")
	ErrModelLoad      = errors.New("model load failed")
	ErrCameraAccess   = errors.New("camera access failed")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrNotReady, KindNotReady},
	{ErrNoDevice, KindNoDevice},
	{ErrEmptyQueue, KindEmptyQueue},
	{ErrNoCurrentTrack, KindNoCurrentTrack},
	{ErrNetwork, KindNetwork},
	{ErrEmptyResult, KindEmptyResult},
	{ErrModelLoad, KindModelLoad},
	{ErrCameraAccess, KindCameraAccess},
}

// KindOf returns the taxonomy kind of err. Errors outside the taxonomy map to
// KindInternal; a nil error maps to "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
