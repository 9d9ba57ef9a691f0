package fuzzy_match

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Match is the candidate that scored highest against the input.
type Match struct {
	Candidate string
	Score     float64
}

// Ratio returns the similarity of a and b in [0, 1], computed over their
// characters the same way difflib's SequenceMatcher does.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}

	if a == "" || b == "" {
		return 0
	}

	matcher := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))

	return matcher.Ratio()
}

// BestMatch returns the candidate most similar to input when its score is at
// least cutoff. On equal scores the earlier candidate wins.
func BestMatch(input string, candidates []string, cutoff float64) (Match, bool) {
	var (
		best  Match
		found bool
	)

	for _, candidate := range candidates {
		score := Ratio(input, candidate)
		if score < cutoff {
			continue
		}

		if !found || score > best.Score {
			best = Match{Candidate: candidate, Score: score}
			found = true
		}
	}

	return best, found
}
