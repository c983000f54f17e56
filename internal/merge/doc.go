// Package merge turns a set of uploaded clips into one video.
//
// A [MergeJob] runs through a fixed DAG of stages:
//
//	probe -> normalize x N -> concatenate -> mix
//
// Every clip (plus the optional intro and outro) is normalized to a common
// resolution, frame rate and codec set. The normalized clips are then joined
// either with a stream-copy concat or with chained xfade/acrossfade filters,
// and finally the audio track is rebuilt according to the [AudioPolicy].
//
// Clips that fail to normalize are dropped and reported as diagnostics; the
// job only fails with [ErrNoValidInput] when none survive. All intermediate
// files live in a per-job [Workspace] that is removed on failure and by
// [Result.Release] on success.
package merge
