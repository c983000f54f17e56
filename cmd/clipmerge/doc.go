// Command clipmerge runs the clip merge pipeline from the command line and
// inspects the server's job history.
//
// Usage:
//
//	clipmerge <command> [flags]
//
// Commands:
//
//	merge    Merge clips into one video:
//	         clipmerge merge --clip a.mp4 --clip b.mp4 --transition fade -o out.mp4
//	probe    Print duration, resolution and audio presence of media files.
//	presets  List resolution presets, filters, transitions and audio modes.
//	jobs     List, show or prune jobs recorded by the server.
//	version  Print version information.
//
// Environment:
//
//	FFMPEG_PATH, FFPROBE_PATH - media tool binaries (default: ffmpeg, ffprobe)
//	NORMALIZE_WORKERS         - parallel normalize encodes
//	DATABASE_DIR              - directory of jobs.db for the jobs command (default: ./data)
package main
