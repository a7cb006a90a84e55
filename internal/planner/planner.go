package planner

import (
	"errors"
	"fmt"
	"strings"

	"go-media-fetch/internal/catalog"
)

var ErrInvalidRequest = errors.New("invalid format request")

// Request is what a user picked from the menu.
type Request struct {
	Container string
	FormatID  string
}

// AudioExtraction asks the engine to extract and transcode the audio stream.
type AudioExtraction struct {
	Codec   string // target codec / container, e.g. "mp3"
	Bitrate string // e.g. "192K"
}

// VideoConversion asks the engine to re-encode the final file into Container.
type VideoConversion struct {
	Container string
}

// Plan is a fully typed engine invocation recipe.
type Plan struct {
	// Selector alternatives, evaluated left to right by the engine.
	Selector []string
	// MergeFormat forces the video+audio mux container. Empty means no forced merge.
	MergeFormat string
	Audio       *AudioExtraction
	Video       *VideoConversion
	// PostprocessorArgs are ffmpeg output args for the Audio or Video step.
	PostprocessorArgs []string
	Fallback          bool
}

// Expression renders the selector in the engine's "/"-separated syntax.
func (p Plan) Expression() string {
	return strings.Join(p.Selector, "/")
}

var (
	audioArgs = []string{
		"-c:a", "libmp3lame", "-q:a", "2", "-b:a", "192k", "-ar", "44100", "-ac", "2",
		"-f", "mp3", "-id3v2_version", "3", "-write_id3v1", "1",
		"-avoid_negative_ts", "make_zero", "-fflags", "+bitexact", "-map_metadata", "0",
	}
	videoArgs = []string{
		"-c:v", "libx264", "-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
		"-preset", "fast", "-crf", "23", "-movflags", "+faststart",
		"-avoid_negative_ts", "make_zero", "-fflags", "+bitexact",
	}
	// audio stream extension that muxes cleanly into each container
	matchingAudioExt = map[string]string{
		"mp4":  "m4a",
		"webm": "webm",
	}
)

// Planner maps menu choices to engine plans.
type Planner struct {
	AudioTarget string
	MuxTarget   string
}

// New returns a planner; empty targets default to mp3 and mp4.
func New(audioTarget, muxTarget string) *Planner {
	if audioTarget == "" {
		audioTarget = "mp3"
	}
	if muxTarget == "" {
		muxTarget = "mp4"
	}
	return &Planner{AudioTarget: audioTarget, MuxTarget: muxTarget}
}

// IsAudio reports whether the container means "extract audio only".
func (p *Planner) IsAudio(container string) bool {
	return container == p.AudioTarget
}

// Validate rejects empty values and anything that would alter selector syntax.
func (p *Planner) Validate(req Request) error {
	if !catalog.SelectorSafe(req.Container) {
		return fmt.Errorf("%w: container %q", ErrInvalidRequest, req.Container)
	}
	if !catalog.SelectorSafe(req.FormatID) {
		return fmt.Errorf("%w: format id %q", ErrInvalidRequest, req.FormatID)
	}
	return nil
}

// Primary builds the preferred plan.
func (p *Planner) Primary(req Request) (Plan, error) {
	if err := p.Validate(req); err != nil {
		return Plan{}, err
	}
	c := req.Container

	if p.IsAudio(c) {
		return Plan{
			Selector: []string{
				"bestaudio[ext=m4a]",
				"bestaudio[ext=aac]",
				"bestaudio[abr>=128]",
				"bestaudio",
				"best[height<=480]",
				"best",
			},
			Audio:             &AudioExtraction{Codec: p.AudioTarget, Bitrate: "192K"},
			PostprocessorArgs: append([]string(nil), audioArgs...),
		}, nil
	}

	var plan Plan
	id := req.FormatID
	if id == catalog.BestFormatID {
		if c == p.MuxTarget {
			first := fmt.Sprintf("bestvideo[ext=%s]+bestaudio", c)
			if a, ok := matchingAudioExt[c]; ok {
				first += fmt.Sprintf("[ext=%s]", a)
			}
			plan.Selector = []string{
				first,
				"bestvideo[height<=1080]+bestaudio",
				fmt.Sprintf("best[ext=%s]", c),
				"best",
			}
		} else {
			plan.Selector = []string{fmt.Sprintf("best[ext=%s]", c), "best"}
		}
	} else {
		if a, ok := matchingAudioExt[c]; ok {
			plan.Selector = append(plan.Selector, fmt.Sprintf("%s+bestaudio[ext=%s]", id, a))
		}
		plan.Selector = append(plan.Selector,
			id+"+bestaudio",
			fmt.Sprintf("bestvideo[format_id=%s]+bestaudio", id),
			fmt.Sprintf("best[format_id=%s]", id),
			id,
			fmt.Sprintf("best[ext=%s]", c),
			"best",
		)
	}

	if c == p.MuxTarget {
		plan.MergeFormat = c
		plan.Video = &VideoConversion{Container: c}
		plan.PostprocessorArgs = append([]string(nil), videoArgs...)
	}
	return plan, nil
}

// Fallback builds the minimal plan used once when the primary yields nothing.
func (p *Planner) Fallback(req Request) (Plan, error) {
	if err := p.Validate(req); err != nil {
		return Plan{}, err
	}
	if p.IsAudio(req.Container) {
		return Plan{
			Selector: []string{"bestaudio", "best"},
			Audio:    &AudioExtraction{Codec: p.AudioTarget, Bitrate: "128K"},
			Fallback: true,
		}, nil
	}
	return Plan{
		Selector: []string{fmt.Sprintf("best[ext=%s]", req.Container), "best"},
		Fallback: true,
	}, nil
}
