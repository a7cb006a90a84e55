package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go-media-fetch/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		f    models.FormatDescriptor
		want Kind
	}{
		{"mp4 video", models.FormatDescriptor{Ext: "mp4", VideoCodec: "avc1", AudioCodec: "none", Resolution: "1280x720 (720p)"}, KindVideo},
		{"muxed webm", models.FormatDescriptor{Ext: "webm", VideoCodec: "vp9", AudioCodec: "opus"}, KindVideo},
		{"webm audio", models.FormatDescriptor{Ext: "webm", VideoCodec: "none", AudioCodec: "opus", Resolution: "audio only"}, KindAudio},
		{"m4a audio", models.FormatDescriptor{Ext: "m4a", VideoCodec: "none", AudioCodec: "mp4a.40.2"}, KindAudio},
		{"video container labelled audio only", models.FormatDescriptor{Ext: "mp4", VideoCodec: "avc1", AudioCodec: "aac", Resolution: "audio only"}, KindAudio},
		{"unknown video codec is generic", models.FormatDescriptor{Ext: "mp4", VideoCodec: "unknown", AudioCodec: "aac"}, KindGeneric},
		{"hls stream", models.FormatDescriptor{Ext: "ts", VideoCodec: "avc1", AudioCodec: "aac"}, KindGeneric},
		{"no codecs", models.FormatDescriptor{Ext: "mp4", VideoCodec: "none", AudioCodec: "none"}, KindExcluded},
		{"usable codec but unknown container", models.FormatDescriptor{Ext: "", VideoCodec: "avc1", AudioCodec: "none"}, KindExcluded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.f))
		})
	}
}
