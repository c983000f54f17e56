// Package mediatypes classifies uploaded files by extension.
//
// This package is a dependency-free foundation that can be imported by other
// packages without creating import cycles.
//
// # File Types
//
//	mediatypes.FileTypeVideo // clips, intros and outros (mp4, mov, mkv, ...)
//	mediatypes.FileTypeAudio // background music (mp3, wav, m4a, ...)
//	mediatypes.FileTypeOther // rejected by the upload handlers
//
// Use Ext and GetFileType to classify an upload:
//
//	switch mediatypes.GetFileType(mediatypes.Ext(header.Filename)) {
//	case mediatypes.FileTypeVideo:
//	    // accept as a clip
//	}
//
// # MIME Types
//
// GetMimeType returns the Content-Type used when streaming a merged file back
// to the client.
package mediatypes
