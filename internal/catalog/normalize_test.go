package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-media-fetch/internal/models"
)

func strp(s string) *string { return &s }
func intp(i int) *int { return &i }
func f64p(f float64) *float64 { return &f }
func i64p(i int64) *int64 { return &i }

func rawVideo(id, ext string, w, h int, tbr float64) models.RawFormat {
	return models.RawFormat{
		FormatID:   id,
		Ext:        ext,
		URL:        "https://cdn.example/" + id,
		VideoCodec: strp("avc1.64001F"),
		AudioCodec: strp("none"),
		Width:      intp(w),
		Height:     intp(h),
		TBR:        f64p(tbr),
	}
}

func rawAudio(id, ext string, abr float64) models.RawFormat {
	return models.RawFormat{
		FormatID:   id,
		Ext:        ext,
		URL:        "https://cdn.example/" + id,
		VideoCodec: strp("none"),
		AudioCodec: strp("mp4a.40.2"),
		ABR:        f64p(abr),
		TBR:        f64p(abr),
		Resolution: "audio only",
	}
}

func TestFromRaw(t *testing.T) {
	tests := []struct {
		name    string
		raw     models.RawFormat
		wantErr error
		check   func(t *testing.T, f models.FormatDescriptor)
	}{
		{
			name:    "missing url",
			raw:     models.RawFormat{FormatID: "18", Ext: "mp4"},
			wantErr: ErrMissingURL,
		},
		{
			name:    "missing format id",
			raw:     models.RawFormat{URL: "https://x", Ext: "mp4"},
			wantErr: ErrMissingFormatID,
		},
		{
			name: "missing codecs become none",
			raw:  models.RawFormat{FormatID: "x", URL: "https://x", Ext: "mp4", Resolution: "640x360"},
			check: func(t *testing.T, f models.FormatDescriptor) {
				assert.Equal(t, "none", f.VideoCodec)
				assert.Equal(t, "none", f.AudioCodec)
				assert.Equal(t, "640x360", f.Resolution)
			},
		},
		{
			name: "label from dimensions",
			raw:  rawVideo("137", "mp4", 1920, 1080, 4000),
			check: func(t *testing.T, f models.FormatDescriptor) {
				assert.Equal(t, "1920x1080 (1080p+)", f.Resolution)
				assert.Equal(t, 1080, f.Height)
			},
		},
		{
			name: "audio label",
			raw:  models.RawFormat{FormatID: "140", URL: "https://x", Ext: "m4a", VideoCodec: strp("none"), AudioCodec: strp("aac")},
			check: func(t *testing.T, f models.FormatDescriptor) {
				assert.Equal(t, LabelAudioOnly, f.Resolution)
			},
		},
		{
			name: "non-positive size dropped",
			raw:  models.RawFormat{FormatID: "1", URL: "https://x", Ext: "mp4", FileSize: i64p(0)},
			check: func(t *testing.T, f models.FormatDescriptor) {
				assert.Nil(t, f.FileSize)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FromRaw(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}

func TestResolutionLabel(t *testing.T) {
	tests := []struct {
		w, h int
		res  string
		want string
	}{
		{3840, 2160, "", "3840x2160 (1080p+)"},
		{1280, 720, "", "1280x720 (720p)"},
		{854, 480, "", "854x480 (480p)"},
		{640, 360, "", "640x360 (360p)"},
		{426, 240, "", "426x240 (240p)"},
		{256, 144, "", "256x144 (144p)"},
		{0, 0, "audio only", "audio only"},
		{0, 720, "720p", "720p"},
		{0, 0, "", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolutionLabel(tt.w, tt.h, tt.res))
	}
}

func TestResolutionValue(t *testing.T) {
	assert.Equal(t, 1080, ResolutionValue("1920x1080 (1080p+)"))
	assert.Equal(t, 720, ResolutionValue("1280x720 (720p)"))
	assert.Equal(t, 480, ResolutionValue("854x480"))
	assert.Equal(t, 360, ResolutionValue("360p"))
	assert.Equal(t, 0, ResolutionValue("audio only"))
}

func TestEstimateSize(t *testing.T) {
	got, ok := EstimateSize(1000, 10)
	require.True(t, ok)
	assert.Equal(t, int64(1250000), got)

	// floor, not round
	got, ok = EstimateSize(1.5, 3)
	require.True(t, ok)
	assert.Equal(t, int64(562), got)

	_, ok = EstimateSize(0, 10)
	assert.False(t, ok)
	_, ok = EstimateSize(128, 0)
	assert.False(t, ok)
}

func TestNormalizeEstimatesMissingSizes(t *testing.T) {
	known := rawVideo("22", "mp4", 1280, 720, 1500)
	known.FileSize = i64p(42)
	noRate := rawVideo("18", "mp4", 640, 360, 0)
	noRate.TBR = nil

	out := Normalize([]models.RawFormat{known, rawVideo("136", "mp4", 1280, 720, 800), noRate}, 60)
	require.Len(t, out, 3)

	byID := map[string]models.FormatDescriptor{}
	for _, f := range out {
		byID[f.FormatID] = f
	}
	require.NotNil(t, byID["22"].FileSize)
	assert.Equal(t, int64(42), *byID["22"].FileSize)
	assert.False(t, byID["22"].FileSizeEstimated)

	require.NotNil(t, byID["136"].FileSize)
	assert.Equal(t, int64(800*1000*60/8), *byID["136"].FileSize)
	assert.True(t, byID["136"].FileSizeEstimated)

	assert.Nil(t, byID["18"].FileSize)

	// No duration, no estimate.
	out = Normalize([]models.RawFormat{rawVideo("136", "mp4", 1280, 720, 800)}, 0)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].FileSize)
}

func TestNormalizeDedupAndDrop(t *testing.T) {
	first := rawVideo("18", "mp4", 640, 360, 500)
	dup := rawVideo("18", "mp4", 640, 360, 900)
	dup.URL = "https://mirror.example/18"
	noURL := rawVideo("19", "mp4", 640, 360, 500)
	noURL.URL = ""
	bothNone := models.RawFormat{FormatID: "sb0", Ext: "mhtml", URL: "https://x", VideoCodec: strp("none"), AudioCodec: strp("none")}

	out := Normalize([]models.RawFormat{first, dup, noURL, bothNone}, 10)
	require.Len(t, out, 1)
	assert.Equal(t, "https://cdn.example/18", out[0].URL, "first occurrence wins")

	keys := map[string]bool{}
	for _, f := range out {
		k := DedupKey(f)
		assert.False(t, keys[k])
		keys[k] = true
	}
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Empty(t, Normalize(nil, 10))
	assert.Empty(t, Normalize([]models.RawFormat{{FormatID: "x"}}, 10))
}

func TestNormalizeSortOrder(t *testing.T) {
	raw := []models.RawFormat{
		rawAudio("139", "m4a", 48),
		rawVideo("18", "mp4", 640, 360, 500),
		rawAudio("140", "m4a", 128),
		rawVideo("137", "mp4", 1920, 1080, 4000),
		rawVideo("136", "mp4", 1280, 720, 1500),
		rawVideo("298", "mp4", 1280, 720, 3000),
		rawAudio("251", "webm", 160),
	}
	out := Normalize(raw, 30)

	var ids []string
	for _, f := range out {
		ids = append(ids, f.FormatID)
	}
	assert.Equal(t, []string{"137", "298", "136", "18", "251", "140", "139"}, ids)
}

func TestNormalizeSortsGenericVideoWithVideo(t *testing.T) {
	hls := rawVideo("hls-1080", "ts", 1920, 1080, 4500)
	hls.AudioCodec = strp("mp4a.40.2")
	raw := []models.RawFormat{
		rawAudio("140", "m4a", 128),
		rawVideo("18", "mp4", 640, 360, 500),
		hls,
	}
	out := Normalize(raw, 30)
	require.Len(t, out, 3)

	assert.Equal(t, KindGeneric, Classify(out[0]))
	var ids []string
	for _, f := range out {
		ids = append(ids, f.FormatID)
	}
	assert.Equal(t, []string{"hls-1080", "18", "140"}, ids)
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := []models.RawFormat{
		rawVideo("18", "mp4", 640, 360, 500),
		rawVideo("18", "mp4", 640, 360, 500),
		rawAudio("140", "m4a", 128),
		rawVideo("243", "webm", 640, 360, 500),
		rawVideo("136", "mp4", 1280, 720, 0),
	}
	once := Normalize(raw, 120)
	twice := NormalizeDescriptors(once, 120)
	assert.Equal(t, once, twice)

	// Same raw input, same order.
	assert.Equal(t, once, Normalize(raw, 120))
}

func TestNormalizeInfo(t *testing.T) {
	info := models.RawInfo{
		ID:       "abc",
		Title:    "A title",
		Duration: f64p(-1),
		Formats:  []models.RawFormat{rawAudio("140", "m4a", 128)},
	}
	meta := NormalizeInfo(info)
	assert.Equal(t, "abc", meta.ID)
	assert.Equal(t, float64(0), meta.Duration)
	require.Len(t, meta.Formats, 1)
	assert.Nil(t, meta.Formats[0].FileSize)
}
