package voice

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// phoneticThreshold is the minimum Jaro-Winkler score for a voice whose
	// name shares a Double Metaphone code with the query.
	phoneticThreshold = 0.70

	// fuzzyThreshold is the minimum score for voices without phonetic
	// overlap.
	fuzzyThreshold = 0.85
)

// Suggest returns up to n voices from remainder whose names sound or look
// like query, best match first. It is a hint for "did you mean" prompts
// only; resolution never consults it.
func Suggest(remainder []Voice, query string, n int) []Voice {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || n <= 0 {
		return nil
	}
	queryTokens := strings.Fields(query)
	queryCodes := metaphoneCodes(queryTokens)

	type scored struct {
		v     Voice
		score float64
		idx   int
	}
	var hits []scored
	for i, v := range remainder {
		name := strings.ToLower(v.Name)
		nameTokens := strings.Fields(name)
		score := similarity(queryTokens, nameTokens, query, name)
		threshold := fuzzyThreshold
		if overlaps(queryCodes, metaphoneCodes(nameTokens)) {
			threshold = phoneticThreshold
		}
		if score < threshold {
			continue
		}
		hits = append(hits, scored{v: v, score: score, idx: i})
	}

	slices.SortFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.idx, b.idx)
	})

	out := make([]Voice, 0, min(n, len(hits)))
	for _, h := range hits[:min(n, len(hits))] {
		out = append(out, h.v)
	}
	return out
}

// similarity is the best Jaro-Winkler score across the full strings and
// every token pair.
func similarity(queryTokens, nameTokens []string, query, name string) float64 {
	score := matchr.JaroWinkler(query, name, false)
	for _, qt := range queryTokens {
		for _, nt := range nameTokens {
			if s := matchr.JaroWinkler(qt, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}

func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
