// Package similarity computes a deterministic lexical similarity score
// between parameter descriptors. The score is the fast tier of the
// matching strategy: pure, no external calls, symmetric after
// normalization.
package similarity

import (
	"math"
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]`)
	wordSplit = regexp.MustCompile(`[a-z]+`)
)

// genericWords are parameter-name suffixes too common to carry signal.
var genericWords = map[string]struct{}{
	"max": {}, "min": {}, "count": {}, "ratio": {}, "value": {},
}

// Normalize casefolds and strips separators so that "ltv_ratio" and
// "LTV Ratio" compare identically.
func Normalize(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// words extracts the meaningful word set from a parameter name.
// Short fragments and generic suffixes are dropped.
func words(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range wordSplit.FindAllString(strings.ToLower(s), -1) {
		if len(w) <= 2 {
			continue
		}
		if _, generic := genericWords[w]; generic {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// Score returns a lexical similarity in [0,1] between two parameter
// descriptors. Tiers of evidence, strongest first: exact normalized
// match, containment, word-set overlap, edit-distance ratio.
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.85
	}

	wa, wb := words(a), words(b)
	if len(wa) > 0 && len(wb) > 0 {
		overlap := 0
		for w := range wa {
			if _, ok := wb[w]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			union := len(wa) + len(wb) - overlap
			jaccard := float64(overlap) / float64(union)
			// Any shared meaningful word is a strong signal for
			// parameter names; floor at 0.7.
			return math.Max(0.7, jaccard)
		}
	}

	return editRatio(na, nb)
}

// editRatio is the fallback: a Levenshtein-derived similarity over the
// normalized strings.
func editRatio(na, nb string) float64 {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(na, nb, false)
	dist := dmp.DiffLevenshtein(diffs)

	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	if longest == 0 {
		return 0
	}
	return 1.0 - float64(dist)/float64(longest)
}
