package merge

import (
	fg "clip-merger/internal/filtergraph"
)

// PresetOriginal keeps the first clip's resolution.
const PresetOriginal = "original"

// DefaultResolution is used for unknown presets and when probing the first
// clip fails.
var DefaultResolution = Resolution{Width: 1920, Height: 1080}

// Preset is a named output resolution.
type Preset struct {
	Name       string     `json:"name"`
	Resolution Resolution `json:"resolution"`
}

var presets = []Preset{
	{"480p", Resolution{854, 480}},
	{"720p", Resolution{1280, 720}},
	{"1080p", Resolution{1920, 1080}},
	{"1440p", Resolution{2560, 1440}},
	{"720x1280", Resolution{720, 1280}},
	{"1080x1920", Resolution{1080, 1920}},
	{"1440x2560", Resolution{1440, 2560}},
	{"4K", Resolution{3840, 2160}},
}

// Presets returns the fixed presets. "original" is not included since it has
// no fixed size.
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// LookupPreset resolves a preset name. ok is false for "original" and for
// unknown names; unknown names still return DefaultResolution.
func LookupPreset(name string) (res Resolution, ok bool) {
	for _, p := range presets {
		if p.Name == name {
			return p.Resolution, true
		}
	}
	return DefaultResolution, false
}

// catalogEntry pairs a filter identifier with its filter.
type catalogEntry struct {
	id     string
	filter fg.Filter
}

var filterCatalog = []catalogEntry{
	{"grayscale", fg.F("format", fg.Pos("gray"))},
	{"blur", fg.F("boxblur", fg.Pos(5), fg.Pos(1))},
	{"brightness", fg.F("curves", fg.KV("preset", "lighter"))},
	{"contrast", fg.F("eq", fg.KV("contrast", 1.3))},
	{"sepia", fg.F("colorchannelmixer",
		fg.Pos(".393"), fg.Pos(".769"), fg.Pos(".189"),
		fg.Pos(".349"), fg.Pos(".686"), fg.Pos(".168"),
		fg.Pos(".272"), fg.Pos(".534"), fg.Pos(".131"))},
	{"vivid", fg.F("eq", fg.KV("saturation", 1.35), fg.KV("contrast", 1.15))},
	{"sharpen", fg.F("unsharp", fg.Pos(5), fg.Pos(5), fg.Pos("1.0"), fg.Pos(5), fg.Pos(5), fg.Pos("0.0"))},
}

// FilterNames returns the catalog identifiers in display order.
func FilterNames() []string {
	names := make([]string, len(filterCatalog))
	for i, e := range filterCatalog {
		names[i] = e.id
	}
	return names
}

// LookupFilter returns the filter for a catalog identifier.
func LookupFilter(id string) (fg.Filter, bool) {
	for _, e := range filterCatalog {
		if e.id == id {
			return e.filter, true
		}
	}
	return fg.Filter{}, false
}

// CatalogFilters maps identifiers to filters in the given order, silently
// skipping unknown ones.
func CatalogFilters(ids []string) []fg.Filter {
	var out []fg.Filter
	for _, id := range ids {
		if f, ok := LookupFilter(id); ok {
			out = append(out, f)
		}
	}
	return out
}
