// Package probe measures audio duration with ffprobe
package probe

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/japanesestudent/listening-service/internal/models"
	"go.uber.org/zap"
)

// Prober runs ffprobe against uploaded bytes
type Prober struct {
	binary     string
	scratchDir string
	logger     *zap.Logger
}

// NewProber creates a prober using the given ffprobe binary and scratch directory
func NewProber(binary, scratchDir string, logger *zap.Logger) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{
		binary:     binary,
		scratchDir: scratchDir,
		logger:     logger,
	}
}

// Probe returns the duration of the audio in whole seconds.
// Any failure is logged and yields models.DefaultDuration, the scratch file is always removed.
func (p *Prober) Probe(ctx context.Context, data []byte, filename string) int {
	seconds, err := p.measure(ctx, data, filename)
	if err != nil {
		p.logger.Warn("failed to probe audio duration, using default",
			zap.String("filename", filename),
			zap.Int("default", models.DefaultDuration),
			zap.Error(err),
		)
		return models.DefaultDuration
	}
	return seconds
}

func (p *Prober) measure(ctx context.Context, data []byte, filename string) (int, error) {
	scratch, err := os.CreateTemp(p.scratchDir, "probe-*"+filepath.Ext(filename))
	if err != nil {
		return 0, fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer os.Remove(scratch.Name())

	if _, err := scratch.Write(data); err != nil {
		scratch.Close()
		return 0, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := scratch.Close(); err != nil {
		return 0, fmt.Errorf("failed to close scratch file: %w", err)
	}

	out, err := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		scratch.Name(),
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseDuration(string(out))
}

// parseDuration rounds ffprobe output to whole seconds, rejecting non-positive results
func parseDuration(out string) (int, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", strings.TrimSpace(out), err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("unexpected ffprobe output %q", strings.TrimSpace(out))
	}

	seconds := int(math.Round(value))
	if seconds <= 0 {
		return 0, fmt.Errorf("non-positive duration %v", value)
	}
	return seconds, nil
}
