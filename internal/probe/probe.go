package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"mediarelay/internal/config"
)

// Metadata is the subset of probe output recorded on a job.
type Metadata struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// Prober extracts metadata from a local media file.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

type result struct {
	Streams []stream `json:"streams"`
	Format  format   `json:"format"`
}

type stream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

type format struct {
	Duration string `json:"duration"`
}

// FFprobe runs an ffprobe binary.
type FFprobe struct {
	Binary string
}

// New returns a prober for the [probe] section, or nil when probing is disabled.
func New(cfg *config.Config) Prober {
	if cfg == nil || !cfg.Probe.Enabled {
		return nil
	}
	return &FFprobe{Binary: cfg.Probe.Binary}
}

// Probe executes ffprobe against path.
func (f *FFprobe) Probe(ctx context.Context, path string) (Metadata, error) {
	binary := strings.TrimSpace(f.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Metadata{}, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Metadata{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Metadata{}, fmt.Errorf("ffprobe: %w", err)
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output. Duration comes from the container and
// falls back to the first video stream; resolution comes from the first video
// stream.
func Parse(data []byte) (Metadata, error) {
	var res result
	if err := json.Unmarshal(data, &res); err != nil {
		return Metadata{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	meta := Metadata{DurationSeconds: parseSeconds(res.Format.Duration)}
	for _, s := range res.Streams {
		if !strings.EqualFold(s.CodecType, "video") {
			continue
		}
		meta.Width = s.Width
		meta.Height = s.Height
		if meta.DurationSeconds == 0 {
			meta.DurationSeconds = parseSeconds(s.Duration)
		}
		break
	}
	return meta, nil
}

func parseSeconds(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || parsed < 0 {
		return 0
	}
	return parsed
}
