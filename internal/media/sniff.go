package media

import (
	"bytes"
	"io"

	"clip-merger/internal/filesystem"
)

// Container kinds reported by DetectContainer.
const (
	ContainerUnknown  = "unknown"
	ContainerMP4      = "mp4"
	ContainerMatroska = "matroska"
	ContainerAVI      = "avi"
	ContainerMPEGTS   = "mpegts"
	ContainerOgg      = "ogg"
	ContainerFLAC     = "flac"
	ContainerWAV      = "wav"
	ContainerMP3      = "mp3"
	ContainerJPEG     = "jpeg"
	ContainerPNG      = "png"
	ContainerGIF      = "gif"
	ContainerWebP     = "webp"
)

// DetectContainer sniffs the first bytes of path.
func DetectContainer(path string) (string, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, 32)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return ContainerUnknown, nil
		}
		return "", err
	}
	return SniffContainer(header[:n]), nil
}

// SniffContainer classifies a file header.
func SniffContainer(header []byte) string {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return ContainerJPEG

	case len(header) >= 8 && bytes.Equal(header[:4], []byte{0x89, 'P', 'N', 'G'}):
		return ContainerPNG

	case len(header) >= 4 && string(header[:4]) == "GIF8":
		return ContainerGIF

	case len(header) >= 12 && string(header[:4]) == "RIFF":
		switch string(header[8:12]) {
		case "WEBP":
			return ContainerWebP
		case "AVI ":
			return ContainerAVI
		case "WAVE":
			return ContainerWAV
		}

	case len(header) >= 8 && string(header[4:8]) == "ftyp":
		return ContainerMP4

	case len(header) >= 4 && bytes.Equal(header[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ContainerMatroska

	case len(header) >= 4 && string(header[:4]) == "OggS":
		return ContainerOgg

	case len(header) >= 4 && string(header[:4]) == "fLaC":
		return ContainerFLAC

	case len(header) >= 3 && string(header[:3]) == "ID3",
		len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return ContainerMP3

	case len(header) >= 1 && header[0] == 0x47:
		return ContainerMPEGTS
	}

	return ContainerUnknown
}

// IsStillImage reports whether kind is an image format, which is never a
// usable clip or music track.
func IsStillImage(kind string) bool {
	switch kind {
	case ContainerJPEG, ContainerPNG, ContainerGIF, ContainerWebP:
		return true
	}
	return false
}
