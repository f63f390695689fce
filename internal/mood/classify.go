package mood

import "slices"

// labelFor maps the top expression to a mood. Missing entries fall back to Neutral.
var labelFor = map[Expression]Label{
	ExprHappy:     Happy,
	ExprSad:       Sad,
	ExprAngry:     Energetic,
	ExprDisgusted: Energetic,
	ExprFearful:   Neutral,
	ExprSurprised: Neutral,
	ExprNeutral:   Neutral,
}

// Rank orders all categories by descending confidence. Equal confidences keep
// canonical order (neutral, happy, sad, angry, fearful, disgusted, surprised).
func Rank(s Scores) []Expression {
	ranked := Expressions()
	slices.SortStableFunc(ranked, func(a, b Expression) int {
		va, vb := s.Get(a), s.Get(b)
		switch {
		case va > vb:
			return -1
		case va < vb:
			return 1
		}
		return 0
	})
	return ranked
}

// Top returns the highest ranked category.
func Top(s Scores) Expression {
	return Rank(s)[0]
}

// Classify maps scores to exactly one Label.
func Classify(s Scores) Label {
	if l, ok := labelFor[Top(s)]; ok {
		return l
	}
	return Neutral
}
