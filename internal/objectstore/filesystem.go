package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mediarelay/internal/fileutil"
)

const metaDir = ".meta"

// Filesystem stores objects as files under a base directory. Metadata is kept
// in JSON sidecars under .meta/ and never appears in listings.
type Filesystem struct {
	baseDir string
}

// NewFilesystem creates the base directory if needed.
func NewFilesystem(baseDir string) (*Filesystem, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create object directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve object directory: %w", err)
	}
	return &Filesystem{baseDir: abs}, nil
}

func (f *Filesystem) resolve(key string) (string, string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	if cleaned == metaDir || strings.HasPrefix(cleaned, metaDir+"/") {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	full := filepath.Join(f.baseDir, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(full, f.baseDir+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: path traversal detected", ErrInvalidKey)
	}
	return cleaned, full, nil
}

func (f *Filesystem) metaPath(cleaned string) string {
	return filepath.Join(f.baseDir, metaDir, filepath.FromSlash(cleaned)+".json")
}

// Put writes body to key atomically and stores metadata alongside.
func (f *Filesystem) Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error {
	cleaned, full, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fileutil.WriteAtomic(full, body, 0o644); err != nil {
		return fmt.Errorf("write object %s: %w", cleaned, err)
	}
	if len(metadata) == 0 {
		return nil
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := fileutil.WriteAtomic(f.metaPath(cleaned), strings.NewReader(string(payload)), 0o644); err != nil {
		return fmt.Errorf("write metadata %s: %w", cleaned, err)
	}
	return nil
}

// Metadata returns the metadata stored with key, if any.
func (f *Filesystem) Metadata(key string) (map[string]string, error) {
	cleaned, _, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.metaPath(cleaned))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta map[string]string
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// Exists reports whether a regular file exists at key.
func (f *Filesystem) Exists(ctx context.Context, key string) (bool, error) {
	_, full, err := f.resolve(key)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// List returns every object whose key starts with prefix.
func (f *Filesystem) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	prefix = strings.TrimLeft(filepath.ToSlash(prefix), "/")
	dir := prefix
	if !strings.HasSuffix(dir, "/") {
		dir = path.Dir(dir)
	}
	start := f.baseDir
	if dir != "" && dir != "." {
		_, resolved, err := f.resolve(dir)
		if err != nil {
			return nil, err
		}
		start = resolved
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != start && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(f.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return objects, nil
}

// Delete removes each key independently. Missing keys are not errors.
func (f *Filesystem) Delete(ctx context.Context, keys ...string) []DeleteResult {
	results := make([]DeleteResult, 0, len(keys))
	for _, key := range keys {
		result := DeleteResult{Key: key}
		cleaned, full, err := f.resolve(key)
		switch {
		case err != nil:
			result.Err = err
		case ctx.Err() != nil:
			result.Err = ctx.Err()
		default:
			if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
				result.Err = err
			}
			_ = os.Remove(f.metaPath(cleaned))
		}
		results = append(results, result)
	}
	return results
}

// URI returns a file:// URI for key.
func (f *Filesystem) URI(key string) string {
	cleaned, err := cleanKey(key)
	if err != nil {
		return ""
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(f.baseDir, filepath.FromSlash(cleaned)))}
	return u.String()
}
