package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/lrstanley/go-ytdlp"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
)

const tailLines = 20

// YtDlp runs the yt-dlp binary.
type YtDlp struct {
	Path           string
	FfmpegLocation string
	Retries        int

	// newCmd builds the process; tests swap it out.
	newCmd func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewYtDlp returns an adapter for the binary at path ("yt-dlp" when empty).
func NewYtDlp(path, ffmpegLocation string, retries int) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	if retries < 0 {
		retries = 0
	}
	return &YtDlp{Path: path, FfmpegLocation: ffmpegLocation, Retries: retries, newCmd: buildCommand}
}

// buildCommand lets go-ytdlp resolve the binary and assemble the process. The
// argv is already complete, so no builder flags are set.
func buildCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	return ytdlp.New().SetExecutable(name).BuildCommand(ctx, args...)
}

func (y *YtDlp) command(ctx context.Context, args ...string) *exec.Cmd {
	newCmd := y.newCmd
	if newCmd == nil {
		newCmd = buildCommand
	}
	cmd := newCmd(ctx, y.Path, args...)
	// Output is wired per call.
	cmd.Stdout, cmd.Stderr = nil, nil
	configureProcess(cmd)
	return cmd
}

// Extract resolves metadata without downloading anything.
func (y *YtDlp) Extract(ctx context.Context, url string) (models.RawInfo, error) {
	var info models.RawInfo
	var stdout, stderr bytes.Buffer

	cmd := y.command(ctx, MetadataArgs(url)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithField("url", url).Debug("Extracting metadata")
	if err := cmd.Start(); err != nil {
		return info, fmt.Errorf("%w: %v", ErrStart, err)
	}
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return info, ctxErr
		}
		msg := ErrorMessage(strings.Split(stderr.String(), "\n"))
		if msg == "" {
			msg = err.Error()
		}
		return info, &ExitError{Message: msg}
	}

	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return info, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	return info, nil
}

// Download runs one attempt and reports every structured event to onTick.
// onTick is never called concurrently.
func (y *YtDlp) Download(ctx context.Context, inv Invocation, onTick func(Tick)) error {
	args := y.DownloadArgs(inv)
	runCtx, abort := context.WithCancel(ctx)
	defer abort()
	cmd := y.command(runCtx, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStart, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStart, err)
	}

	log.WithFields(log.Fields{
		"selector": inv.Plan.Expression(),
		"fallback": inv.Plan.Fallback,
	}).Debugf("Starting %s", y.Path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrStart, err)
	}

	var (
		mu      sync.Mutex
		tail    []string
		wg      sync.WaitGroup
		tickErr error
	)
	// emit runs on a reader goroutine, out of reach of the caller's recover.
	emit := func(tick Tick) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrTickHandler, r)
			}
		}()
		onTick(tick)
		return nil
	}
	consume := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tick, ok := ParseLine(line)

			mu.Lock()
			if ok {
				if onTick != nil && tickErr == nil {
					if err := emit(tick); err != nil {
						log.WithError(err).Error("Aborting download")
						tickErr = err
						abort()
					}
				}
			} else if strings.HasPrefix(strings.TrimSpace(line), progressPrefix) {
				log.WithField("line", line).Debug("Ignoring malformed progress line")
			} else if strings.TrimSpace(line) != "" {
				tail = append(tail, line)
				if len(tail) > tailLines {
					tail = tail[len(tail)-tailLines:]
				}
			}
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
			log.WithError(err).Debug("Engine output stream ended with error")
		}
	}
	wg.Add(2)
	go consume(stdout)
	go consume(stderr)
	// Pipes must be drained before Wait closes them.
	wg.Wait()

	waitErr := cmd.Wait()
	if tickErr != nil {
		return tickErr
	}
	if err := waitErr; err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := ErrorMessage(tail)
		if msg == "" {
			msg = err.Error()
		}
		return &ExitError{Message: msg}
	}
	return nil
}
