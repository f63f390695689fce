// Package mood turns facial expression scores into a coarse mood label.
package mood

import (
	"fmt"
	"strings"

	"github.com/vaishakh3/emomusic/internal/fault"
)

// Label is the coarse mood the rest of the system works with.
type Label string

const (
	Sad       Label = "sad"
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Energetic Label = "energetic"
)

// Labels returns the closed set of labels in display order.
func Labels() []Label {
	return []Label{Sad, Neutral, Happy, Energetic}
}

// Valid reports whether l is one of the four known labels.
func (l Label) Valid() bool {
	switch l {
	case Sad, Neutral, Happy, Energetic:
		return true
	}
	return false
}

func (l Label) String() string { return string(l) }

// ParseLabel parses user input (case-insensitive, surrounding space ignored).
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: unknown mood %q (must be sad, neutral, happy, or energetic)", fault.ErrInvalidInput, s)
	}
	return l, nil
}
