package engine

import (
	"strconv"
	"strings"
)

const (
	progressPrefix = "PROGRESS "
	resultPrefix   = "RESULT "
)

// MetadataArgs is the argv (without the binary) for a metadata-only extraction.
func MetadataArgs(url string) []string {
	return []string{"-J", "--skip-download", "--no-warnings", "--no-playlist", "--", url}
}

// DownloadArgs renders a typed invocation into an argv. Nothing here is passed
// through a shell.
func (y *YtDlp) DownloadArgs(inv Invocation) []string {
	retries := strconv.Itoa(y.Retries)
	args := []string{
		"--newline",
		"--progress",
		"--no-warnings",
		"--no-playlist",
		"--no-simulate",
		"--restrict-filenames",
		"--no-mtime",
		"--no-write-subs",
		"--no-write-auto-subs",
		"--retries", retries,
		"--fragment-retries", retries,
		"--progress-template", "download:" + progressPrefix + "%(progress)j",
		"--print", "after_move:" + resultPrefix + "%(filepath)j",
		"-f", inv.Plan.Expression(),
		"-o", inv.OutputTemplate,
	}
	if inv.TempDir != "" {
		args = append(args, "--paths", "temp:"+inv.TempDir)
	}
	if y.FfmpegLocation != "" {
		args = append(args, "--ffmpeg-location", y.FfmpegLocation)
	}

	plan := inv.Plan
	if plan.MergeFormat != "" {
		args = append(args, "--merge-output-format", plan.MergeFormat)
	}
	switch {
	case plan.Audio != nil:
		args = append(args, "-x", "--audio-format", plan.Audio.Codec)
		if plan.Audio.Bitrate != "" {
			args = append(args, "--audio-quality", plan.Audio.Bitrate)
		}
		if len(plan.PostprocessorArgs) > 0 {
			args = append(args, "--postprocessor-args", "ExtractAudio+ffmpeg_o:"+strings.Join(plan.PostprocessorArgs, " "))
		}
	case plan.Video != nil:
		args = append(args, "--recode-video", plan.Video.Container)
		if len(plan.PostprocessorArgs) > 0 {
			args = append(args, "--postprocessor-args", "VideoConvertor+ffmpeg_o:"+strings.Join(plan.PostprocessorArgs, " "))
		}
	}

	return append(args, "--", inv.URL)
}
