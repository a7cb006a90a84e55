package catalog

import (
	"strings"

	"go-media-fetch/internal/models"
)

// Kind is the classification of a format descriptor.
type Kind int

const (
	KindExcluded Kind = iota
	KindVideo
	KindAudio
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindGeneric:
		return "generic"
	default:
		return "excluded"
	}
}

// CodecNone is what a missing codec normalizes to.
const CodecNone = "none"

// LabelAudioOnly is the label the engine gives audio-only streams.
const LabelAudioOnly = "audio only"

var (
	videoContainers = map[string]bool{
		"mp4": true, "webm": true, "mkv": true, "avi": true, "flv": true, "mov": true, "3gp": true,
	}
	audioContainers = map[string]bool{
		"m4a": true, "mp3": true, "webm": true, "ogg": true, "aac": true, "opus": true, "wav": true,
	}
)

// usableCodec is false for the engine's "none" and "unknown" placeholders.
func usableCodec(codec string) bool {
	c := strings.ToLower(strings.TrimSpace(codec))
	return c != "" && c != CodecNone && c != "unknown"
}

// IsVideoContainer reports whether ext is one of the containers offered for video.
func IsVideoContainer(ext string) bool {
	return videoContainers[strings.ToLower(ext)]
}

// Classify decides how a descriptor is offered. The selection menu and the
// normalizer both go through this function.
func Classify(f models.FormatDescriptor) Kind {
	ext := strings.ToLower(f.Ext)
	vcodec := strings.ToLower(f.VideoCodec)

	if videoContainers[ext] && usableCodec(vcodec) && f.Resolution != LabelAudioOnly {
		return KindVideo
	}
	if usableCodec(f.AudioCodec) &&
		(audioContainers[ext] || f.Resolution == LabelAudioOnly || vcodec == CodecNone) {
		return KindAudio
	}
	if (usableCodec(vcodec) || usableCodec(f.AudioCodec)) && ext != "" && ext != "unknown" {
		return KindGeneric
	}
	return KindExcluded
}
