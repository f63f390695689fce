// Package detection runs one-shot mood detection sessions: it loads the face
// models, starts the camera, and classifies the first face it sees.
package detection

import (
	"context"
	"time"

	"github.com/vaishakh3/emomusic/internal/mood"
)

// State is the lifecycle position of a detection session.
type State string

const (
	StateIdle           State = "idle"
	StateLoadingModels  State = "loading_models"
	StateCameraStarting State = "camera_starting"
	StateDetecting      State = "detecting"
	StateCompleted      State = "completed"
	StateError          State = "error"
)

// Frame is one still image from the camera, JPEG encoded.
type Frame struct {
	Seq  uint64
	Data []byte
	At   time.Time
}

// Box is a face bounding box in frame pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Face is one detected face.
type Face struct {
	Expressions mood.Scores
	Box         Box
	Confidence  float64
}

// Camera produces frames until stopped. The frame channel is closed when the
// camera stops for any reason.
type Camera interface {
	Start(ctx context.Context) (<-chan Frame, error)
	Stop() error
}

// Detector locates faces and scores their expressions.
type Detector interface {
	LoadModels(ctx context.Context) error
	Detect(ctx context.Context, f Frame) ([]Face, error)
}

// Update is published on every session state transition. Mood is set only
// with StateCompleted and Err only with StateError.
type Update struct {
	SessionID string
	State     State
	Mood      mood.Label
	Err       error
	At        time.Time
}

// bestFace picks the face with the highest detection confidence. The first
// face wins ties.
func bestFace(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}
	return best, true
}
