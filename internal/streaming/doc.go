/*
Package streaming delivers merged artifacts to HTTP clients with timeout
protection.

A finished merge keeps its job workspace on disk until the download ends, so
a client that stops reading must not be able to pin it forever. [Writer]
wraps an http.ResponseWriter and bounds every write (WriteTimeout), the gap
between writes (IdleTimeout) and optionally the whole stream (MaxDuration).
Large writes are split into ChunkSize pieces and flushed between them so
cancellation is noticed promptly.

[Deliver] is the entry point the merge handler uses:

	n, err := streaming.Deliver(r.Context(), w, res.Artifact.Path(), job.OutputName, streaming.DefaultConfig())
	if errors.Is(err, streaming.ErrClientGone) {
		// the client went away; nothing to report to it
	}
	_ = res.Release()

Errors are reported through three sentinels checked with errors.Is:
ErrWriteTimeout, ErrClientGone and ErrStreamCanceled.
*/
package streaming
