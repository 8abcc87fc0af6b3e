package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Normalizer converts chat voice notes into audio the transcriber accepts
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte) ([]byte, error)
}

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

// Run executes the command, returns captured stderr for diagnostics
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// FFMpeg shells out to ffmpeg to produce mono 16 kHz pcm_s16le wav
type FFMpeg struct {
	path   string
	runner commandRunner
}

// NewFFMpeg creates the converter, path may be empty for ffmpeg from PATH
func NewFFMpeg(path string) (*FFMpeg, error) {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFMpeg{path: path, runner: &execRunner{}}, nil
}

// Normalize decodes whatever container the chat platform sent
// and returns wav ready for the transcriber
func (f *FFMpeg) Normalize(ctx context.Context, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no audio data")
	}
	dir, err := os.MkdirTemp("", "voxy-audio-")
	if err != nil {
		return nil, fmt.Errorf("can't create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	in := filepath.Join(dir, "in.audio")
	out := filepath.Join(dir, "out.wav")
	if err := os.WriteFile(in, raw, 0o600); err != nil {
		return nil, fmt.Errorf("can't write temp file: %w", err)
	}
	stderr, err := f.runner.Run(ctx, f.path, buildArgs(in, out)...)
	if err != nil {
		return nil, fmt.Errorf("can't run ffmpeg: %w, output: %s", err, tail(stderr))
	}
	res, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("can't read converted file: %w", err)
	}
	return res, nil
}

func buildArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		out,
	}
}

func tail(s string) string {
	const max = 400
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
