// Package objectstore defines the narrow object storage interface used for
// input uploads, output and subtitle artifact checks, and input purges, plus
// the key layout shared with the external transcoder.
package objectstore

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"mediarelay/internal/config"
)

// ErrInvalidKey reports a key that escapes the store root or is empty.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// DeleteResult is the per-key outcome of Delete.
type DeleteResult struct {
	Key string
	Err error
}

// Store is the object storage collaborator.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, keys ...string) []DeleteResult
	URI(key string) string
}

// TotalSize sums object sizes.
func TotalSize(objects []ObjectInfo) int64 {
	var total int64
	for _, obj := range objects {
		total += obj.Size
	}
	return total
}

// Layout derives deterministic object keys from content identifiers.
type Layout struct {
	Input          string
	Output         string
	Subtitles      string
	SubtitleFormat string
}

// LayoutFromConfig builds the layout from the [hosting] section.
func LayoutFromConfig(cfg *config.Config) Layout {
	return Layout{
		Input:          cfg.Hosting.InputPrefix,
		Output:         cfg.Hosting.OutputPrefix,
		Subtitles:      cfg.Hosting.SubtitlePrefix,
		SubtitleFormat: cfg.Hosting.SubtitleFormat,
	}
}

// InputPrefix is the prefix holding the uploaded input for contentID.
func (l Layout) InputPrefix(contentID string) string {
	return path.Join(l.Input, contentID) + "/"
}

// InputKey is the upload key for contentID using the asset's base name.
func (l Layout) InputKey(contentID, name string) string {
	return l.InputPrefix(contentID) + sanitizeName(name)
}

// OutputPrefix is where the transcoder writes artifacts for contentID.
func (l Layout) OutputPrefix(contentID string) string {
	return path.Join(l.Output, contentID) + "/"
}

// SubtitleKey is the expected subtitle artifact for (contentID, language).
func (l Layout) SubtitleKey(contentID, language string) string {
	format := l.SubtitleFormat
	if format == "" {
		format = "vtt"
	}
	return path.Join(l.Subtitles, contentID, language+"."+format)
}

func sanitizeName(name string) string {
	base := path.Base(filepath.ToSlash(strings.TrimSpace(name)))
	switch base {
	case "", ".", "..", "/":
		return "source"
	}
	return base
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(filepath.ToSlash(key))
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", ErrInvalidKey
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
