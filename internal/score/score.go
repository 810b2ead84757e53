// Package score ranks completion candidates against a partial query.
package score

import (
	"strings"

	"github.com/hbollon/go-edlib"
)

// Tier base scores, highest match quality first. Fuzzy scores always stay
// below tierSubstring so the tier ordering is monotonic at equal
// frequency.
const (
	tierExact        = 1000.0
	tierPrefix       = 800.0
	tierWordBoundary = 600.0
	tierSubstring    = 400.0
	tierFuzzyBase    = 100.0
)

// Word boundary characters inside tags and note names.
const boundaryChars = "-_/ ."

// Scorer scores candidates for completion ranking.
type Scorer struct {
	fuzzy bool
}

// New creates a Scorer. When fuzzy is false, candidates without at least
// a substring match score zero.
func New(fuzzy bool) *Scorer {
	return &Scorer{fuzzy: fuzzy}
}

// Score returns the rank of candidate for query. Matching is
// case-insensitive. The tier score is multiplied by the candidate's
// frequency so popular items rank above rare ones at the same match
// quality.
func (s *Scorer) Score(query, candidate string, frequency int) float64 {
	if candidate == "" {
		return 0
	}
	freq := float64(frequency)
	if freq < 1 {
		freq = 1
	}

	q := strings.ToLower(query)
	c := strings.ToLower(candidate)

	switch {
	case q == "":
		// Empty partial query: every candidate matches; rank by frequency.
		return tierSubstring * freq
	case q == c:
		return tierExact * freq
	case strings.HasPrefix(c, q):
		return tierPrefix * freq
	case matchesWordBoundary(c, q):
		return tierWordBoundary * freq
	case strings.Contains(c, q):
		return tierSubstring * freq
	}

	if !s.fuzzy {
		return 0
	}
	f := fuzzyScore(q, c)
	if f == 0 {
		return 0
	}
	return f * freq
}

// matchesWordBoundary reports whether q starts at a word boundary inside c.
func matchesWordBoundary(c, q string) bool {
	idx := 0
	for {
		i := strings.Index(c[idx:], q)
		if i < 0 {
			return false
		}
		pos := idx + i
		if pos > 0 && strings.ContainsRune(boundaryChars, rune(c[pos-1])) {
			return true
		}
		idx = pos + 1
		if idx >= len(c) {
			return false
		}
	}
}

// fuzzyScore scores a character-subsequence match with bonuses for
// consecutive hits and coverage, blended with Jaro-Winkler similarity.
// Returns 0 when q is not a subsequence of c.
func fuzzyScore(q, c string) float64 {
	matched, maxRun := subsequence(q, c)
	if !matched {
		return 0
	}

	coverage := float64(len(q)) / float64(len(c))
	consecutive := float64(maxRun) / float64(len(q))

	similarity, err := edlib.StringsSimilarity(q, c, edlib.JaroWinkler)
	if err != nil {
		similarity = 0
	}

	// Bounded well under tierSubstring.
	return tierFuzzyBase + 100*coverage + 50*consecutive + 100*float64(similarity)
}

// subsequence reports whether q is a subsequence of c and the longest
// run of consecutive hits.
func subsequence(q, c string) (bool, int) {
	qi := 0
	run, maxRun := 0, 0
	prevHit := -2
	for ci := 0; ci < len(c) && qi < len(q); ci++ {
		if c[ci] != q[qi] {
			continue
		}
		if ci == prevHit+1 {
			run++
		} else {
			run = 1
		}
		if run > maxRun {
			maxRun = run
		}
		prevHit = ci
		qi++
	}
	return qi == len(q), maxRun
}
