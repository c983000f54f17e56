package merge

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Artifact is the path of a media file produced by a pipeline stage.
type Artifact string

// Path returns the artifact as a filesystem path.
func (a Artifact) Path() string { return string(a) }

// Role is the part a media asset plays in a merge.
type Role string

// Asset roles.
const (
	RoleClip            Role = "clip"
	RoleIntro           Role = "intro"
	RoleOutro           Role = "outro"
	RoleBackgroundMusic Role = "backgroundMusic"
)

// MediaAsset references an uploaded file. Width and Height are zero until
// the asset is probed and are not changed afterwards.
type MediaAsset struct {
	Path   string
	Role   Role
	Width  int
	Height int
}

// NewAsset returns an unprobed asset.
func NewAsset(path string, role Role) MediaAsset {
	return MediaAsset{Path: path, Role: role}
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool { return r.Width > 0 && r.Height > 0 }

func (r Resolution) String() string {
	return strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height)
}

// FrameRate is the fixed output frame rate of every normalized clip.
const FrameRate = 30

// NormalizationSpec describes the common format all clips are converted to.
type NormalizationSpec struct {
	Width     int
	Height    int
	FrameRate int
	Filters   []string
}

// Resolution returns the target frame size.
func (s NormalizationSpec) Resolution() Resolution {
	return Resolution{Width: s.Width, Height: s.Height}
}

// Transition is a cross-fade kind understood by ffmpeg's xfade filter.
type Transition string

// Supported transitions.
const (
	TransitionNone       Transition = "none"
	TransitionFade       Transition = "fade"
	TransitionWipeLeft   Transition = "wipeleft"
	TransitionWipeRight  Transition = "wiperight"
	TransitionSlideLeft  Transition = "slideleft"
	TransitionSlideRight Transition = "slideright"
	TransitionCircleOpen Transition = "circleopen"
)

var transitions = []Transition{
	TransitionNone,
	TransitionFade,
	TransitionWipeLeft,
	TransitionWipeRight,
	TransitionSlideLeft,
	TransitionSlideRight,
	TransitionCircleOpen,
}

// Transitions returns the supported transition kinds in display order.
func Transitions() []Transition {
	return append([]Transition(nil), transitions...)
}

// ParseTransition maps a request value to a Transition. Unknown values fall
// back to TransitionNone.
func ParseTransition(s string) Transition {
	s = strings.TrimSpace(s)
	for _, t := range transitions {
		if string(t) == s {
			return t
		}
	}
	return TransitionNone
}

// Transition duration bounds, in seconds.
const (
	DefaultTransitionDuration = 0.6
	MinTransitionDuration     = 0.1
	MaxTransitionDuration     = 2.0
)

// ClampTransitionDuration bounds d to [MinTransitionDuration, MaxTransitionDuration].
// NaN maps to the default.
func ClampTransitionDuration(d float64) float64 {
	if math.IsNaN(d) {
		return DefaultTransitionDuration
	}
	return math.Max(MinTransitionDuration, math.Min(MaxTransitionDuration, d))
}

// ParseTransitionDuration parses a request value; unparsable or empty input
// yields the default, anything else is clamped into range.
func ParseTransitionDuration(s string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return DefaultTransitionDuration
	}
	return ClampTransitionDuration(d)
}

// TransitionSpec selects the concatenation mode. Duration is ignored when
// Kind is TransitionNone.
type TransitionSpec struct {
	Kind     Transition
	Duration float64
}

// NewTransitionSpec builds a spec with the duration clamped into range.
func NewTransitionSpec(kind Transition, duration float64) TransitionSpec {
	return TransitionSpec{Kind: kind, Duration: ClampTransitionDuration(duration)}
}

// Enabled reports whether clips are cross-faded.
func (t TransitionSpec) Enabled() bool {
	return t.Kind != "" && t.Kind != TransitionNone
}

// AudioMode selects how the final audio track is composed.
type AudioMode string

// Supported audio modes.
const (
	AudioOriginal AudioMode = "original"
	AudioMix      AudioMode = "mix"
	AudioMusic    AudioMode = "music"
)

// AudioModes returns the supported modes in display order.
func AudioModes() []AudioMode {
	return []AudioMode{AudioOriginal, AudioMix, AudioMusic}
}

// ParseAudioMode maps a request value to an AudioMode. Unknown values fall
// back to AudioOriginal.
func ParseAudioMode(s string) AudioMode {
	switch m := AudioMode(strings.TrimSpace(s)); m {
	case AudioOriginal, AudioMix, AudioMusic:
		return m
	default:
		return AudioOriginal
	}
}

// RequiresMusic reports whether the mode needs a background music asset.
func (m AudioMode) RequiresMusic() bool {
	return m == AudioMix || m == AudioMusic
}

// Default volumes.
const (
	DefaultOriginalVolume = 1.0
	DefaultMusicVolume    = 0.35
)

// ParseVolume parses a volume factor. Unparsable, negative or non-finite
// values yield def.
func ParseVolume(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// AudioPolicy describes the final audio track.
type AudioPolicy struct {
	Mode           AudioMode
	OriginalVolume float64
	MusicVolume    float64
	Ducking        bool
	Music          *MediaAsset
}

// DefaultAudioPolicy keeps the original track at full volume.
func DefaultAudioPolicy() AudioPolicy {
	return AudioPolicy{
		Mode:           AudioOriginal,
		OriginalVolume: DefaultOriginalVolume,
		MusicVolume:    DefaultMusicVolume,
	}
}

// DefaultOutputName is the download name used when none is requested.
const DefaultOutputName = "merged.mp4"

// SanitizeOutputName strips directories from a requested output name and
// falls back to DefaultOutputName when nothing usable remains.
func SanitizeOutputName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return DefaultOutputName
	}
	return name
}

// MergeJob is a single merge request.
type MergeJob struct {
	ID            string
	Clips         []MediaAsset
	Intro         *MediaAsset
	Outro         *MediaAsset
	Preset        string
	Normalization NormalizationSpec
	Transition    TransitionSpec
	Audio         AudioPolicy
	OutputName    string
}

// Validate checks the request-level invariants. It runs before any
// transcoding starts.
func (j *MergeJob) Validate() error {
	if len(j.Clips) == 0 {
		return Invalid(ErrNoValidInput, "no videos provided")
	}
	if j.Audio.Mode.RequiresMusic() && j.Audio.Music == nil {
		return Invalid(ErrMissingBackgroundMusic, "please upload background music for the selected audio mode")
	}
	return nil
}

// Sources returns intro, clips and outro in playback order.
func (j *MergeJob) Sources() []MediaAsset {
	out := make([]MediaAsset, 0, len(j.Clips)+2)
	if j.Intro != nil {
		out = append(out, *j.Intro)
	}
	out = append(out, j.Clips...)
	if j.Outro != nil {
		out = append(out, *j.Outro)
	}
	return out
}
