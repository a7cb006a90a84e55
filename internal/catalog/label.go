package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ResolutionLabel renders "{w}x{h} ({bucket})" when both dimensions are known,
// otherwise the engine's own resolution string, otherwise "unknown".
func ResolutionLabel(width, height int, engineResolution string) string {
	if width > 0 && height > 0 {
		return fmt.Sprintf("%dx%d (%s)", width, height, heightBucket(height))
	}
	if r := strings.TrimSpace(engineResolution); r != "" {
		return r
	}
	return "unknown"
}

func heightBucket(height int) string {
	switch {
	case height >= 1080:
		return "1080p+"
	case height >= 720:
		return "720p"
	case height >= 480:
		return "480p"
	case height >= 360:
		return "360p"
	case height >= 240:
		return "240p"
	default:
		return "144p"
	}
}

var (
	bucketPattern = regexp.MustCompile(`\((\d+)p\+?\)`)
	dimsPattern   = regexp.MustCompile(`(\d+)x(\d+)`)
	digitsPattern = regexp.MustCompile(`\d+`)
)

// ResolutionValue extracts a sortable height from a label such as
// "1280x720 (720p)", "720p" or "854x480". Zero when nothing numeric is found.
func ResolutionValue(label string) int {
	if m := bucketPattern.FindStringSubmatch(label); m != nil {
		v, _ := strconv.Atoi(m[1])
		return v
	}
	if m := dimsPattern.FindStringSubmatch(label); m != nil {
		v, _ := strconv.Atoi(m[2])
		return v
	}
	if m := digitsPattern.FindString(label); m != "" {
		v, _ := strconv.Atoi(m)
		return v
	}
	return 0
}
