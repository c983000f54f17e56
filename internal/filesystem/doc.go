/*
Package filesystem opens and stats files on possibly NFS-mounted volumes,
retrying ESTALE (stale file handle) errors with exponential backoff.

Uploads, job workspaces and thumbnails are often shared volumes in container
deployments. A merged artifact written by ffmpeg can briefly report a stale
handle when it is reopened for delivery; reopening by path recovers.

# Usage

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
	    "uploads": config.UploadDir,
	    "work":    config.WorkDir,
	}))

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())

Any error other than ESTALE is returned immediately. Retries are counted in
clip_merger_filesystem_stale_errors_total and clip_merger_filesystem_retries_total,
labelled by the volume the path resolves to.
*/
package filesystem
