package domain

import "strings"

// videoMarker is how the media host flags an mp4 rendition of an asset.
const videoMarker = "output-format=mp4"

// MediaKind tells renderers how to present a media reference.
type MediaKind string

const (
	MediaNone  MediaKind = ""
	MediaImage MediaKind = "image"
	// MediaVideo is rendered as a looping muted video.
	MediaVideo MediaKind = "video"
)

// ClassifyMedia sniffs a media reference by substring.
func ClassifyMedia(ref string) MediaKind {
	switch {
	case ref == "":
		return MediaNone
	case strings.Contains(ref, videoMarker):
		return MediaVideo
	default:
		return MediaImage
	}
}
