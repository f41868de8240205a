package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// ErrProberUnavailable is returned when no duration probe is installed.
var ErrProberUnavailable = errors.New("ffprobe not found in PATH")

// Prober reports the playing time of an audio file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFprobe shells out to ffprobe for durations.
type FFprobe struct {
	bin string
}

// NoopProber reports zero for every file.
type NoopProber struct{}

// Duration implements Prober.
func (NoopProber) Duration(context.Context, string) (time.Duration, error) {
	return 0, nil
}

// NewFFprobe locates ffprobe in PATH.
func NewFFprobe() (*FFprobe, error) {
	bin, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, ErrProberUnavailable
	}
	return &FFprobe{bin: bin}, nil
}

// DetectProber returns an ffprobe-backed Prober when available and a
// NoopProber otherwise.
func DetectProber() Prober {
	p, err := NewFFprobe()
	if err != nil {
		return NoopProber{}
	}
	return p
}

type ffprobeOutput struct {
	Format *struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration implements Prober.
func (p *FFprobe) Duration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, fmt.Errorf("ffprobe failed: %s", string(exitErr.Stderr))
		}
		return 0, fmt.Errorf("ffprobe execution failed: %w", err)
	}
	return parseFFprobeDuration(output)
}

func parseFFprobeDuration(output []byte) (time.Duration, error) {
	var info ffprobeOutput
	if err := json.Unmarshal(output, &info); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if info.Format == nil || info.Format.Duration == "" || info.Format.Duration == "N/A" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(info.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", info.Format.Duration, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
