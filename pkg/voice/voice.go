// Package voice resolves a user's voice preference into a backend voice id.
//
// A [Catalog] is loaded once at startup from a static list of [Voice]
// records and never mutated afterwards. It precomputes two non-overlapping
// subsets: a small curated set selected by an ordered list of preferred
// display names, and the remainder. All resolution functions are total: a
// miss degrades to "no match" or the empty string and never panics.
package voice

import (
	"strings"
)

// Voice is a single selectable synthetic speaking persona.
type Voice struct {
	// ID is the opaque identifier understood by the remote backend.
	ID string `json:"id"`

	// Name is the human-readable display label. Not guaranteed unique.
	Name string `json:"name"`

	// Provider tags the backend voice-synthesis provider.
	Provider string `json:"provider"`
}

// DefaultOtherLimit is the maximum number of entries returned by
// [FilterOthers] when no explicit limit is configured.
const DefaultOtherLimit = 4

// DefaultPreferredNames is the ordered preference list used to build the
// curated subset.
var DefaultPreferredNames = []string{
	"English Children's Book Narrator",
	"TikTok Fashion Influencer",
	"Soft Male Conversationalist",
}

// DefaultPrimaryName is the preferred name whose match becomes the default
// voice.
const DefaultPrimaryName = "English Children's Book Narrator"

// FindByPreferredName returns the voice whose name equals name exactly. If
// there is none, it returns the first voice whose name contains name as a
// case-insensitive substring. The case-insensitive pass only runs when the
// exact pass misses.
func FindByPreferredName(voices []Voice, name string) (Voice, bool) {
	for _, v := range voices {
		if v.Name == name {
			return v, true
		}
	}
	lowered := strings.ToLower(name)
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v.Name), lowered) {
			return v, true
		}
	}
	return Voice{}, false
}

// BuildCurated applies [FindByPreferredName] to each preferred name in order
// and collects the matches. A voice is added at most once; names without a
// match are skipped. The result follows the order of preferred, not the
// catalog order.
func BuildCurated(voices []Voice, preferred []string) []Voice {
	found := make([]Voice, 0, len(preferred))
	seen := make(map[string]struct{}, len(preferred))
	for _, name := range preferred {
		v, ok := FindByPreferredName(voices, name)
		if !ok {
			continue
		}
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		found = append(found, v)
	}
	return found
}

// Remainder returns all voices whose id is not in curated, preserving
// catalog order.
func Remainder(voices, curated []Voice) []Voice {
	ids := make(map[string]struct{}, len(curated))
	for _, v := range curated {
		ids[v.ID] = struct{}{}
	}
	out := make([]Voice, 0, len(voices))
	for _, v := range voices {
		if _, ok := ids[v.ID]; ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ResolveDefaultID picks the default voice id in priority order: the voice
// matched by primary, the first curated voice, the first catalog voice, and
// finally the empty string when the catalog is empty.
func ResolveDefaultID(voices, curated []Voice, primary string) string {
	if v, ok := FindByPreferredName(voices, primary); ok {
		return v.ID
	}
	if len(curated) > 0 {
		return curated[0].ID
	}
	if len(voices) > 0 {
		return voices[0].ID
	}
	return ""
}

// FilterOthers returns the remainder voices whose name contains query as a
// case-insensitive substring, truncated to limit entries. An empty query
// returns the unfiltered remainder (still truncated). A non-positive limit
// falls back to [DefaultOtherLimit].
func FilterOthers(remainder []Voice, query string, limit int) []Voice {
	if limit <= 0 {
		limit = DefaultOtherLimit
	}
	lowered := strings.ToLower(query)
	out := make([]Voice, 0, min(limit, len(remainder)))
	for _, v := range remainder {
		if len(out) == limit {
			break
		}
		if lowered != "" && !strings.Contains(strings.ToLower(v.Name), lowered) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ResolveFreeTextID resolves free-text input against the remainder: exact
// name match first, then case-insensitive substring match. It returns the
// empty string for empty input or when nothing matches; callers treat that
// as "voice unresolved" and still connect.
func ResolveFreeTextID(remainder []Voice, query string) string {
	if query == "" {
		return ""
	}
	for _, v := range remainder {
		if v.Name == query {
			return v.ID
		}
	}
	lowered := strings.ToLower(query)
	for _, v := range remainder {
		if strings.Contains(strings.ToLower(v.Name), lowered) {
			return v.ID
		}
	}
	return ""
}
