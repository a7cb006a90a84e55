package catalog

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/models"
)

const (
	BestFormatID      = "best"
	BestAudioFormatID = "bestaudio"
)

// SelectorSafe reports whether s can be spliced into a format selector
// without changing its structure.
func SelectorSafe(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || strings.ContainsRune("/+[],", r) {
			return false
		}
	}
	return true
}

// Containers lists the containers a user may pick: every video-capable
// extension in the catalog, plus the audio target when any format exists.
func Containers(formats []models.FormatDescriptor, audioTarget string) []string {
	set := map[string]bool{}
	for _, f := range formats {
		if Classify(f) == KindVideo && SelectorSafe(f.Ext) {
			set[f.Ext] = true
		}
	}
	if len(formats) > 0 && audioTarget != "" {
		set[audioTarget] = true
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// QualityOptions builds the quality list for one container. Descriptors are
// grouped by resolution label; within a group a known size beats an unknown
// one, otherwise the higher bitrate wins.
func QualityOptions(formats []models.FormatDescriptor, container, audioTarget string) []models.QualityOption {
	if container == audioTarget {
		return []models.QualityOption{{
			FormatID:   BestAudioFormatID,
			Label:      "Audio Only (~192kbps)",
			Resolution: LabelAudioOnly,
		}}
	}

	var order []string
	best := map[string]models.FormatDescriptor{}
	for _, f := range formats {
		if f.Ext != container || Classify(f) != KindVideo || !SelectorSafe(f.FormatID) {
			continue
		}
		cur, ok := best[f.Resolution]
		if !ok {
			order = append(order, f.Resolution)
			best[f.Resolution] = f
			continue
		}
		if better(f, cur) {
			best[f.Resolution] = f
		}
	}
	if len(order) == 0 {
		return nil
	}

	opts := make([]models.QualityOption, 0, len(order)+1)
	for _, res := range order {
		f := best[res]
		opts = append(opts, models.QualityOption{
			FormatID:   f.FormatID,
			Label:      qualityLabel(f),
			Resolution: f.Resolution,
			FileSize:   f.FileSize,
		})
	}
	sort.SliceStable(opts, func(i, j int) bool {
		return ResolutionValue(opts[i].Resolution) > ResolutionValue(opts[j].Resolution)
	})

	bestOpt := models.QualityOption{
		FormatID:   BestFormatID,
		Label:      fmt.Sprintf("Best Available Quality (%s)", strings.ToUpper(container)),
		Resolution: "best available",
	}
	return append([]models.QualityOption{bestOpt}, opts...)
}

// BuildMenu derives the complete selection menu.
func BuildMenu(formats []models.FormatDescriptor, audioTarget string) models.Menu {
	menu := models.Menu{
		Containers: Containers(formats, audioTarget),
		Qualities:  map[string][]models.QualityOption{},
	}
	for _, c := range menu.Containers {
		menu.Qualities[c] = QualityOptions(formats, c, audioTarget)
	}
	return menu
}

func better(candidate, current models.FormatDescriptor) bool {
	cs, ks := candidate.FileSize != nil, current.FileSize != nil
	if cs != ks {
		return cs
	}
	return candidate.TBR > current.TBR
}

func qualityLabel(f models.FormatDescriptor) string {
	var b strings.Builder
	b.WriteString(f.Resolution)
	if f.FormatNote != "" {
		fmt.Fprintf(&b, " (%s)", f.FormatNote)
	}
	b.WriteString(" - ")
	switch {
	case f.FileSize != nil:
		b.WriteString(helpers.BytesToSize(uint64(*f.FileSize)))
		if f.FileSizeEstimated {
			b.WriteString(" (est.)")
		}
	case f.TBR > 0:
		fmt.Fprintf(&b, "~%.0fkbps", f.TBR)
	default:
		b.WriteString("Size N/A")
	}
	return b.String()
}
