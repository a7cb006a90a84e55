package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-media-fetch/internal/planner"
)

// valueAfter returns the argument following flag, or "" if flag is absent.
func valueAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestMetadataArgs(t *testing.T) {
	args := MetadataArgs("https://example.com/watch?v=1")
	assert.Equal(t, []string{"-J", "--skip-download", "--no-warnings", "--no-playlist", "--", "https://example.com/watch?v=1"}, args)
}

func TestDownloadArgsAudio(t *testing.T) {
	y := NewYtDlp("", "/opt/ffmpeg", 5)
	plan, err := planner.New("mp3", "mp4").Primary(planner.Request{Container: "mp3", FormatID: "bestaudio"})
	require.NoError(t, err)

	args := y.DownloadArgs(Invocation{
		URL:            "-not-a-flag",
		Plan:           plan,
		OutputTemplate: "/out/1_title.%(ext)s",
		TempDir:        "/tmp/job-1",
	})

	assert.Equal(t, plan.Expression(), valueAfter(args, "-f"))
	assert.Equal(t, "/out/1_title.%(ext)s", valueAfter(args, "-o"))
	assert.Equal(t, "temp:/tmp/job-1", valueAfter(args, "--paths"))
	assert.Equal(t, "/opt/ffmpeg", valueAfter(args, "--ffmpeg-location"))
	assert.Equal(t, "mp3", valueAfter(args, "--audio-format"))
	assert.Equal(t, "192K", valueAfter(args, "--audio-quality"))
	assert.Equal(t, "5", valueAfter(args, "--retries"))
	assert.Equal(t, "5", valueAfter(args, "--fragment-retries"))
	assert.Contains(t, args, "-x")
	assert.Contains(t, args, "--restrict-filenames")
	assert.Contains(t, args, "--no-mtime")
	assert.NotContains(t, args, "--merge-output-format")
	assert.NotContains(t, args, "--recode-video")
	assert.True(t, strings.HasPrefix(valueAfter(args, "--postprocessor-args"), "ExtractAudio+ffmpeg_o:-c:a libmp3lame"))

	// URL is always last and behind the option terminator.
	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, "--", args[len(args)-2])
	assert.Equal(t, "-not-a-flag", args[len(args)-1])
}

func TestDownloadArgsVideo(t *testing.T) {
	y := NewYtDlp("yt-dlp", "", 3)
	p := planner.New("mp3", "mp4")

	plan, err := p.Primary(planner.Request{Container: "mp4", FormatID: "best"})
	require.NoError(t, err)
	args := y.DownloadArgs(Invocation{URL: "u", Plan: plan, OutputTemplate: "o"})
	assert.Equal(t, "mp4", valueAfter(args, "--merge-output-format"))
	assert.Equal(t, "mp4", valueAfter(args, "--recode-video"))
	assert.True(t, strings.HasPrefix(valueAfter(args, "--postprocessor-args"), "VideoConvertor+ffmpeg_o:-c:v libx264"))
	assert.NotContains(t, args, "-x")
	assert.NotContains(t, args, "--paths")
	assert.NotContains(t, args, "--ffmpeg-location")
	assert.Contains(t, args, "--no-mtime")

	fb, err := p.Fallback(planner.Request{Container: "webm", FormatID: "248"})
	require.NoError(t, err)
	args = y.DownloadArgs(Invocation{URL: "u", Plan: fb, OutputTemplate: "o"})
	assert.Equal(t, "best[ext=webm]/best", valueAfter(args, "-f"))
	assert.NotContains(t, args, "--merge-output-format")
	assert.NotContains(t, args, "--recode-video")
	assert.NotContains(t, args, "--postprocessor-args")
}
