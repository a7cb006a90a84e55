package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
)

var (
	ErrMissingURL      = errors.New("format has no source url")
	ErrMissingFormatID = errors.New("format has no format id")
)

// FromRaw validates one engine record and converts it to a descriptor.
// Missing codecs become "none"; the resolution label is derived here.
func FromRaw(rf models.RawFormat) (models.FormatDescriptor, error) {
	if strings.TrimSpace(rf.URL) == "" {
		return models.FormatDescriptor{}, fmt.Errorf("%w: %q", ErrMissingURL, rf.FormatID)
	}
	if strings.TrimSpace(rf.FormatID) == "" {
		return models.FormatDescriptor{}, ErrMissingFormatID
	}

	f := models.FormatDescriptor{
		FormatID:   rf.FormatID,
		FormatNote: rf.FormatNote,
		Ext:        strings.ToLower(rf.Ext),
		VideoCodec: codecOrNone(rf.VideoCodec),
		AudioCodec: codecOrNone(rf.AudioCodec),
		FileSize:   rf.FileSize,
		URL:        rf.URL,
	}
	if rf.Width != nil {
		f.Width = *rf.Width
	}
	if rf.Height != nil {
		f.Height = *rf.Height
	}
	if rf.FPS != nil {
		f.FPS = *rf.FPS
	}
	if rf.TBR != nil {
		f.TBR = *rf.TBR
	}
	if rf.ABR != nil {
		f.ABR = *rf.ABR
	}
	if f.FileSize != nil && *f.FileSize <= 0 {
		f.FileSize = nil
	}

	if f.VideoCodec == CodecNone && f.Width == 0 && f.Height == 0 && rf.Resolution == "" {
		f.Resolution = LabelAudioOnly
	} else {
		f.Resolution = ResolutionLabel(f.Width, f.Height, rf.Resolution)
	}
	return f, nil
}

func codecOrNone(codec *string) string {
	if codec == nil || strings.TrimSpace(*codec) == "" {
		return CodecNone
	}
	return *codec
}

// Normalize turns raw engine records into the user-facing catalog. Invalid
// records are dropped, never returned as errors; an empty result means the
// source has nothing downloadable.
func Normalize(raw []models.RawFormat, duration float64) []models.FormatDescriptor {
	descs := make([]models.FormatDescriptor, 0, len(raw))
	for _, rf := range raw {
		f, err := FromRaw(rf)
		if err != nil {
			log.WithError(err).Debug("Dropping format record")
			continue
		}
		descs = append(descs, f)
	}
	return NormalizeDescriptors(descs, duration)
}

// NormalizeDescriptors dedupes, classifies, estimates sizes and sorts. Applying
// it to its own output returns the same list.
func NormalizeDescriptors(descs []models.FormatDescriptor, duration float64) []models.FormatDescriptor {
	seen := make(map[string]bool, len(descs))
	out := make([]models.FormatDescriptor, 0, len(descs))

	for _, f := range descs {
		if strings.TrimSpace(f.URL) == "" || f.FormatID == "" {
			continue
		}
		if f.VideoCodec == "" {
			f.VideoCodec = CodecNone
		}
		if f.AudioCodec == "" {
			f.AudioCodec = CodecNone
		}
		key := DedupKey(f)
		if seen[key] {
			continue
		}
		seen[key] = true

		if Classify(f) == KindExcluded {
			log.WithField("format_id", f.FormatID).Debug("Excluding format with no usable codec")
			continue
		}
		if f.FileSize == nil {
			if est, ok := EstimateSize(f.TBR, duration); ok {
				f.FileSize = &est
				f.FileSizeEstimated = true
			}
		}
		out = append(out, f)
	}

	sortCatalog(out)
	return out
}

// NormalizeInfo builds the full metadata value from an engine dump.
func NormalizeInfo(info models.RawInfo) models.VideoMetadata {
	var duration float64
	if info.Duration != nil && *info.Duration > 0 {
		duration = *info.Duration
	}
	return models.VideoMetadata{
		ID:         info.ID,
		Title:      info.Title,
		Duration:   duration,
		Thumbnail:  info.Thumbnail,
		Uploader:   info.Uploader,
		UploadDate: info.UploadDate,
		Formats:    Normalize(info.Formats, duration),
	}
}

// DedupKey identifies semantically identical descriptors.
func DedupKey(f models.FormatDescriptor) string {
	return strings.Join([]string{f.FormatID, f.Ext, f.Resolution, f.VideoCodec, f.AudioCodec}, "\x1f")
}

// EstimateSize returns floor(tbr*1000*duration/8) bytes when both inputs are positive.
func EstimateSize(tbrKbps, durationSec float64) (int64, bool) {
	if tbrKbps <= 0 || durationSec <= 0 {
		return 0, false
	}
	return int64(math.Floor(tbrKbps * 1000 * durationSec / 8)), true
}

func sortCatalog(formats []models.FormatDescriptor) {
	sort.SliceStable(formats, func(i, j int) bool {
		a, b := formats[i], formats[j]
		av, bv := hasVideoTrack(a), hasVideoTrack(b)
		if av != bv {
			return av
		}
		if av {
			ah, bh := height(a), height(b)
			if ah != bh {
				return ah > bh
			}
			return a.TBR > b.TBR
		}
		return audioRate(a) > audioRate(b)
	})
}

// hasVideoTrack decides the sort group. It is looser than Classify: generic
// containers with a real video codec still sort with the video entries.
func hasVideoTrack(f models.FormatDescriptor) bool {
	return f.VideoCodec != CodecNone && f.Resolution != LabelAudioOnly
}

func height(f models.FormatDescriptor) int {
	if f.Height > 0 {
		return f.Height
	}
	return ResolutionValue(f.Resolution)
}

func audioRate(f models.FormatDescriptor) float64 {
	if f.ABR > 0 {
		return f.ABR
	}
	return f.TBR
}
