package probe

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	FormatName string
	Duration   float64
	Size       int64
	BitRate    int64
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Index         int
	Codec         string
	Width         int
	Height        int
	NbFrames      int64
	RFrameRate    string
	AvgFrameRate  string
	Duration      float64
	IsAttachedPic bool
}

// AudioStream holds the parsed properties of a single audio stream.
type AudioStream struct {
	Index      int
	Codec      string
	Channels   int
	SampleRate int
	Duration   float64
}

// Result is the parsed output of a single ffprobe JSON call.
// PrimaryVideo is the first non-attached-pic video stream (nil if none).
type Result struct {
	Format       FormatInfo
	PrimaryVideo *VideoStream
	AudioStreams []AudioStream
}

// HasAudio reports whether the file carries at least one audio stream.
func (r *Result) HasAudio() bool {
	return len(r.AudioStreams) > 0
}

// DurationResult is the outcome of a duration probe. Seconds is 0 whenever
// Err is set, so callers that only want the best-effort value can ignore Err.
type DurationResult struct {
	Path    string
	Seconds float64
	Err     error
}

// OK reports whether the probe produced a usable duration.
func (r DurationResult) OK() bool {
	return r.Err == nil && r.Seconds > 0
}

// ResolutionResult is the outcome of a resolution probe.
type ResolutionResult struct {
	Path   string
	Width  int
	Height int
	Err    error
}

// Found reports whether both dimensions are positive.
func (r ResolutionResult) Found() bool {
	return r.Err == nil && r.Width > 0 && r.Height > 0
}
