package voice

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
)

//go:embed voices.json
var defaultCatalogJSON []byte

// catalogDocument is the on-disk layout of a voice catalog file.
type catalogDocument struct {
	Voices []Voice `json:"voices_page"`
}

// Load decodes a catalog document of the form {"voices_page":[...]} from r.
// Entries with an empty id are dropped; duplicate ids keep the first entry.
func Load(r io.Reader) ([]Voice, error) {
	var doc catalogDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("voice: decode catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Voices))
	out := make([]Voice, 0, len(doc.Voices))
	for _, v := range doc.Voices {
		if v.ID == "" {
			continue
		}
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// LoadFile reads the catalog at path. An empty path loads the catalog
// embedded in the binary.
func LoadFile(path string) ([]Voice, error) {
	if path == "" {
		return Load(bytes.NewReader(defaultCatalogJSON))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("voice: open catalog %q: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Options controls how a [Catalog] derives its curated subset and default.
type Options struct {
	// PreferredNames is the ordered preference list for the curated subset.
	// Nil uses [DefaultPreferredNames].
	PreferredNames []string

	// PrimaryName selects the default voice. Empty uses [DefaultPrimaryName].
	PrimaryName string

	// OtherLimit caps [Catalog.FilterOthers]. Zero uses [DefaultOtherLimit].
	OtherLimit int
}

// Catalog is the immutable voice catalog with its precomputed curated and
// remainder subsets. It is safe for concurrent use.
type Catalog struct {
	voices    []Voice
	curated   []Voice
	remainder []Voice
	defaultID string
	limit     int
}

// NewCatalog builds a Catalog from voices. The slice is copied.
func NewCatalog(voices []Voice, opts Options) *Catalog {
	if opts.PreferredNames == nil {
		opts.PreferredNames = DefaultPreferredNames
	}
	if opts.PrimaryName == "" {
		opts.PrimaryName = DefaultPrimaryName
	}
	if opts.OtherLimit <= 0 {
		opts.OtherLimit = DefaultOtherLimit
	}
	all := slices.Clone(voices)
	curated := BuildCurated(all, opts.PreferredNames)
	return &Catalog{
		voices:    all,
		curated:   curated,
		remainder: Remainder(all, curated),
		defaultID: ResolveDefaultID(all, curated, opts.PrimaryName),
		limit:     opts.OtherLimit,
	}
}

// All returns a copy of every voice in catalog order.
func (c *Catalog) All() []Voice { return slices.Clone(c.voices) }

// Curated returns a copy of the curated subset in preference order.
func (c *Catalog) Curated() []Voice { return slices.Clone(c.curated) }

// Remainder returns a copy of the voices not in the curated subset.
func (c *Catalog) Remainder() []Voice { return slices.Clone(c.remainder) }

// Len reports the number of voices in the catalog.
func (c *Catalog) Len() int { return len(c.voices) }

// DefaultID returns the precomputed default voice id, or "" for an empty
// catalog.
func (c *Catalog) DefaultID() string { return c.defaultID }

// OtherLimit returns the configured cap for [Catalog.FilterOthers].
func (c *Catalog) OtherLimit() int { return c.limit }

// FilterOthers filters the remainder by query; see [FilterOthers].
func (c *Catalog) FilterOthers(query string) []Voice {
	return FilterOthers(c.remainder, query, c.limit)
}

// ResolveFreeText resolves free text against the remainder; see
// [ResolveFreeTextID].
func (c *Catalog) ResolveFreeText(query string) string {
	return ResolveFreeTextID(c.remainder, query)
}

// Lookup returns the voice with the given id.
func (c *Catalog) Lookup(id string) (Voice, bool) {
	for _, v := range c.voices {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// Selection is the state of a voice picker at connect time.
type Selection struct {
	// VoiceID is the curated voice currently selected. Ignored when Other is
	// set.
	VoiceID string

	// Other indicates the free-text "Other…" entry is active.
	Other bool

	// OtherInput is the free text typed while Other is active.
	OtherInput string
}

// Resolve returns the voice id to forward with the connection request. A
// free-text miss yields "" and is not an error.
func (c *Catalog) Resolve(sel Selection) string {
	if sel.Other {
		return c.ResolveFreeText(sel.OtherInput)
	}
	return sel.VoiceID
}

// ResolvePreference resolves a single preference string as used by headless
// mode: an empty preference picks the default, a curated match wins next, and
// anything else is treated as free text against the remainder.
func (c *Catalog) ResolvePreference(pref string) string {
	if pref == "" {
		return c.defaultID
	}
	if v, ok := FindByPreferredName(c.curated, pref); ok {
		return v.ID
	}
	return c.ResolveFreeText(pref)
}

// Suggest returns up to OtherLimit remainder voices that sound or look like
// query; see [Suggest].
func (c *Catalog) Suggest(query string) []Voice {
	return Suggest(c.remainder, query, c.limit)
}
