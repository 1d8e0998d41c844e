package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
)

// Decoder opens path as raw s16le PCM at 48kHz stereo. cleanup stops the
// decoder and must always be called.
type Decoder func(ctx context.Context, path string) (pcm io.ReadCloser, cleanup func(), err error)

// FFmpeg decodes path with the ffmpeg binary found in PATH.
func FFmpeg(ctx context.Context, path string) (io.ReadCloser, func(), error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("command start error: %w", err)
	}

	cleanup := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}

	return reader, cleanup, nil
}
