package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// progressDict mirrors the fields of yt-dlp's progress hook dictionary we use.
type progressDict struct {
	Status             string   `json:"status"`
	Filename           string   `json:"filename"`
	DownloadedBytes    *float64 `json:"downloaded_bytes"`
	TotalBytes         *float64 `json:"total_bytes"`
	TotalBytesEstimate *float64 `json:"total_bytes_estimate"`
	FragmentIndex      *float64 `json:"fragment_index"`
	FragmentCount      *float64 `json:"fragment_count"`
	ETA                *float64 `json:"eta"`
	Speed              *float64 `json:"speed"`
	PercentStr         string   `json:"_percent_str"`
}

// ParseLine classifies one output line. ok is false for lines that are not
// structured events (plain log output, warnings, errors).
func ParseLine(line string) (tick Tick, ok bool) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, progressPrefix):
		var d progressDict
		if err := json.Unmarshal([]byte(line[len(progressPrefix):]), &d); err != nil {
			return Tick{}, false
		}
		return tickFromDict(d), d.Status != ""
	case strings.HasPrefix(line, resultPrefix):
		var path string
		if err := json.Unmarshal([]byte(line[len(resultPrefix):]), &path); err != nil || path == "" {
			return Tick{}, false
		}
		return Tick{Status: StatusFinished, Filename: path}, true
	}
	return Tick{}, false
}

func tickFromDict(d progressDict) Tick {
	t := Tick{Status: d.Status, Filename: d.Filename}
	if d.ETA != nil && *d.ETA >= 0 {
		eta := int64(*d.ETA)
		t.ETA = &eta
	}
	if d.Speed != nil && *d.Speed >= 0 {
		speed := *d.Speed
		t.Speed = &speed
	}

	total := d.TotalBytes
	if total == nil || *total <= 0 {
		total = d.TotalBytesEstimate
	}
	switch {
	case d.DownloadedBytes != nil && total != nil && *total > 0:
		t.Percent, t.HasPercent = clampPercent(*d.DownloadedBytes / *total * 100), true
	case d.FragmentIndex != nil && d.FragmentCount != nil && *d.FragmentCount > 0:
		t.Percent, t.HasPercent = clampPercent(*d.FragmentIndex / *d.FragmentCount * 100), true
	default:
		if p, err := ParsePercent(d.PercentStr); err == nil {
			t.Percent, t.HasPercent = p, true
		}
	}
	if d.Status == StatusFinished && !t.HasPercent {
		t.Percent, t.HasPercent = 100, true
	}
	return t
}

// ParsePercent reads strings such as " 45.3%" (ANSI colour codes included).
func ParsePercent(s string) (float64, error) {
	s = stripANSI(s)
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) {
		return 0, fmt.Errorf("percent %q is not a number", s)
	}
	return clampPercent(p), nil
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ErrorMessage picks the engine's own error text out of trailing output.
func ErrorMessage(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if idx := strings.Index(lines[i], "ERROR:"); idx >= 0 {
			return strings.TrimSpace(lines[i][idx+len("ERROR:"):])
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
