package handlers

import (
	"net/http"

	"clip-merger/internal/merge"
)

// CatalogDefaults are the values used for omitted merge fields.
type CatalogDefaults struct {
	Preset                string  `json:"preset"`
	Transition            string  `json:"transition"`
	TransitionDuration    float64 `json:"transitionDuration"`
	MinTransitionDuration float64 `json:"minTransitionDuration"`
	MaxTransitionDuration float64 `json:"maxTransitionDuration"`
	AudioMode             string  `json:"audioMode"`
	OriginalVolume        float64 `json:"originalVolume"`
	MusicVolume           float64 `json:"musicVolume"`
	OutputName            string  `json:"outputName"`
}

// CatalogResponse lists everything a merge request can select.
type CatalogResponse struct {
	Presets     []merge.Preset     `json:"presets"`
	Filters     []string           `json:"filters"`
	Transitions []merge.Transition `json:"transitions"`
	AudioModes  []merge.AudioMode  `json:"audioModes"`
	Defaults    CatalogDefaults    `json:"defaults"`
}

func catalog() CatalogResponse {
	return CatalogResponse{
		Presets:     merge.Presets(),
		Filters:     merge.FilterNames(),
		Transitions: merge.Transitions(),
		AudioModes:  merge.AudioModes(),
		Defaults: CatalogDefaults{
			Preset:                merge.PresetOriginal,
			Transition:            string(merge.TransitionNone),
			TransitionDuration:    merge.DefaultTransitionDuration,
			MinTransitionDuration: merge.MinTransitionDuration,
			MaxTransitionDuration: merge.MaxTransitionDuration,
			AudioMode:             string(merge.AudioOriginal),
			OriginalVolume:        merge.DefaultOriginalVolume,
			MusicVolume:           merge.DefaultMusicVolume,
			OutputName:            merge.DefaultOutputName,
		},
	}
}

// GetPresets returns the resolution presets and the filter, transition and
// audio mode catalogs.
func (h *Handlers) GetPresets(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, catalog())
}
