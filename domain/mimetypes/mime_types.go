package mimetypes

import (
	"mime"
	"strings"
)

type MIME string

const (
	Unknown     MIME = "unknown"
	OctetStream MIME = "application/octet-stream"

	ApplicationPDF MIME = "application/pdf"
	Application7z  MIME = "application/x-7z-compressed"
	ApplicationZip MIME = "application/zip"
	ApplicationGz  MIME = "application/gzip"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"

	VideoMP4  MIME = "video/mp4"
	VideoMKV  MIME = "video/x-matroska"
	AudioMPEG MIME = "audio/mpeg"
	AudioOGG  MIME = "audio/ogg"
)

var archiveTypes = map[MIME]struct{}{
	Application7z:  {},
	ApplicationZip: {},
	ApplicationGz:  {},
}

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Kind buckets a detected media type into the attachment kinds the attach
// step distinguishes. Anything unrecognized is a plain document.
func Kind(detected string) string {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return "document"
	}
	if _, ok := archiveTypes[MIME(mt)]; ok {
		return "archive"
	}
	switch {
	case strings.HasPrefix(mt, "video/"):
		return "video"
	case strings.HasPrefix(mt, "audio/"):
		return "audio"
	case strings.HasPrefix(mt, "image/"):
		return "image"
	default:
		return "document"
	}
}
