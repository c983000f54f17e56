// Package media handles uploaded media files outside the merge pipeline.
//
// The ThumbnailGenerator extracts the first frame of a clip through FFmpeg
// and stores a 160x90 JPEG preview. DetectContainer sniffs file headers so
// uploads that are plainly not audio or video can be rejected early.
package media
