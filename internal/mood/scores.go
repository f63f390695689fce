package mood

import (
	"fmt"
	"math"
	"strings"

	"github.com/vaishakh3/emomusic/internal/fault"
)

// Expression is one of the seven facial expression categories.
type Expression string

const (
	ExprNeutral   Expression = "neutral"
	ExprHappy     Expression = "happy"
	ExprSad       Expression = "sad"
	ExprAngry     Expression = "angry"
	ExprFearful   Expression = "fearful"
	ExprDisgusted Expression = "disgusted"
	ExprSurprised Expression = "surprised"
)

// canonicalOrder doubles as the tie-break order for Rank.
var canonicalOrder = [...]Expression{
	ExprNeutral,
	ExprHappy,
	ExprSad,
	ExprAngry,
	ExprFearful,
	ExprDisgusted,
	ExprSurprised,
}

// Expressions returns all categories in canonical order.
func Expressions() []Expression {
	out := make([]Expression, len(canonicalOrder))
	copy(out, canonicalOrder[:])
	return out
}

// Scores is the fixed per-face confidence record. Values are in [0,1] and are
// not required to sum to 1.
type Scores struct {
	Neutral   float64 `json:"neutral"`
	Happy     float64 `json:"happy"`
	Sad       float64 `json:"sad"`
	Angry     float64 `json:"angry"`
	Fearful   float64 `json:"fearful"`
	Disgusted float64 `json:"disgusted"`
	Surprised float64 `json:"surprised"`
}

// Get returns the confidence for e (0 for unknown categories).
func (s Scores) Get(e Expression) float64 {
	switch e {
	case ExprNeutral:
		return s.Neutral
	case ExprHappy:
		return s.Happy
	case ExprSad:
		return s.Sad
	case ExprAngry:
		return s.Angry
	case ExprFearful:
		return s.Fearful
	case ExprDisgusted:
		return s.Disgusted
	case ExprSurprised:
		return s.Surprised
	}
	return 0
}

func (s *Scores) set(e Expression, v float64) {
	switch e {
	case ExprNeutral:
		s.Neutral = v
	case ExprHappy:
		s.Happy = v
	case ExprSad:
		s.Sad = v
	case ExprAngry:
		s.Angry = v
	case ExprFearful:
		s.Fearful = v
	case ExprDisgusted:
		s.Disgusted = v
	case ExprSurprised:
		s.Surprised = v
	}
}

// NormalizeScores converts the detector's open-ended expression map into a
// fixed Scores record.
//
// Keys are matched case-insensitively; unknown keys are ignored. Values are
// clamped to [0,1] and NaN becomes 0. A map without any known category fails
// with fault.ErrInvalidInput.
func NormalizeScores(raw map[string]float64) (Scores, error) {
	var s Scores
	known := 0
	for k, v := range raw {
		e := Expression(strings.ToLower(strings.TrimSpace(k)))
		if !isExpression(e) {
			continue
		}
		s.set(e, clamp01(v))
		known++
	}
	if known == 0 {
		return Scores{}, fmt.Errorf("%w: no expression categories in %d scores", fault.ErrInvalidInput, len(raw))
	}
	return s, nil
}

func isExpression(e Expression) bool {
	for _, c := range canonicalOrder {
		if c == e {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
