package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-media-fetch/internal/planner"
)

// TestHelperProcess is not a real test; it stands in for the yt-dlp binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	switch os.Getenv("HELPER_MODE") {
	case "info":
		fmt.Println(`{"id": "abc", "title": "Clip", "duration": 10, "formats": [{"format_id": "140", "ext": "m4a", "url": "https://x/140", "vcodec": "none", "acodec": "mp4a.40.2", "abr": 128}]}`)
	case "info-error":
		fmt.Fprintln(os.Stderr, "ERROR: [generic] Unsupported URL: https://nope")
		os.Exit(1)
	case "info-garbage":
		fmt.Println("not json")
	case "download":
		fmt.Println("[youtube] abc: Downloading webpage")
		fmt.Println(`PROGRESS {"status": "downloading", "downloaded_bytes": 10, "total_bytes": 100}`)
		fmt.Fprintln(os.Stderr, `PROGRESS {"status": "downloading", "downloaded_bytes": 60, "total_bytes": 100}`)
		fmt.Println(`PROGRESS {broken`)
		fmt.Println(`PROGRESS {"status": "finished", "filename": "/out/1_clip.m4a"}`)
		fmt.Println(`RESULT "/out/1_clip.mp3"`)
	case "unavailable":
		fmt.Fprintln(os.Stderr, "ERROR: [youtube] abc: Video unavailable")
		os.Exit(1)
	case "hang":
		time.Sleep(time.Minute)
	case "tick-then-hang":
		fmt.Println(`PROGRESS {"status": "downloading", "downloaded_bytes": 10, "total_bytes": 100}`)
		time.Sleep(time.Minute)
	}
}

func helperYtDlp(mode string) *YtDlp {
	y := NewYtDlp("yt-dlp", "", 1)
	y.newCmd = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_MODE="+mode)
		return cmd
	}
	return y
}

func testInvocation() Invocation {
	return Invocation{
		URL:            "https://example.com/v",
		Plan:           planner.Plan{Selector: []string{"bestaudio", "best"}},
		OutputTemplate: "/out/1_clip.%(ext)s",
	}
}

func TestYtDlpExtract(t *testing.T) {
	info, err := helperYtDlp("info").Extract(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	assert.Equal(t, "abc", info.ID)
	require.NotNil(t, info.Duration)
	assert.Equal(t, 10.0, *info.Duration)
	require.Len(t, info.Formats, 1)
	require.NotNil(t, info.Formats[0].VideoCodec)
	assert.Equal(t, "none", *info.Formats[0].VideoCodec)
}

func TestYtDlpExtractErrors(t *testing.T) {
	_, err := helperYtDlp("info-error").Extract(context.Background(), "https://nope")
	assert.ErrorIs(t, err, ErrExit)
	assert.Contains(t, err.Error(), "Unsupported URL")

	_, err = helperYtDlp("info-garbage").Extract(context.Background(), "https://x")
	assert.ErrorIs(t, err, ErrBadOutput)
}

func TestYtDlpDownloadTicks(t *testing.T) {
	var ticks []Tick
	err := helperYtDlp("download").Download(context.Background(), testInvocation(), func(tick Tick) {
		ticks = append(ticks, tick)
	})
	require.NoError(t, err)

	var downloading, finished []Tick
	for _, tick := range ticks {
		switch tick.Status {
		case StatusDownloading:
			downloading = append(downloading, tick)
		case StatusFinished:
			finished = append(finished, tick)
		}
	}
	// stdout and stderr interleave arbitrarily; only counts are stable.
	assert.Len(t, downloading, 2)
	require.Len(t, finished, 2)

	var names []string
	for _, f := range finished {
		names = append(names, f.Filename)
	}
	assert.Equal(t, []string{"/out/1_clip.m4a", "/out/1_clip.mp3"}, names)
}

func TestYtDlpDownloadEngineError(t *testing.T) {
	err := helperYtDlp("unavailable").Download(context.Background(), testInvocation(), nil)
	require.ErrorIs(t, err, ErrExit)
	assert.Contains(t, err.Error(), "Video unavailable")
}

func TestYtDlpDownloadStartError(t *testing.T) {
	y := NewYtDlp("/definitely/not/a/binary/yt-dlp", "", 0)
	err := y.Download(context.Background(), testInvocation(), nil)
	assert.ErrorIs(t, err, ErrStart)
}

func TestYtDlpDownloadCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := helperYtDlp("hang").Download(ctx, testInvocation(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestYtDlpDownloadTickHandlerPanic(t *testing.T) {
	start := time.Now()
	err := helperYtDlp("tick-then-hang").Download(context.Background(), testInvocation(), func(tick Tick) {
		panic("sink exploded")
	})
	require.ErrorIs(t, err, ErrTickHandler)
	assert.Contains(t, err.Error(), "sink exploded")
	assert.Less(t, time.Since(start), 30*time.Second, "the engine process must be killed")
}

func TestBuildCommandKeepsArgv(t *testing.T) {
	args := MetadataArgs("https://example.com/v")
	cmd := buildCommand(context.Background(), "/opt/bin/yt-dlp", args...)
	require.GreaterOrEqual(t, len(cmd.Args), len(args))
	assert.Equal(t, args, cmd.Args[len(cmd.Args)-len(args):])

	y := NewYtDlp("/opt/bin/yt-dlp", "", 0)
	cmd = y.command(context.Background(), args...)
	assert.Nil(t, cmd.Stdout)
	assert.NotNil(t, cmd.Cancel)
}
