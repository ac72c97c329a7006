// Package contentid derives the stable identifier of a media asset from its
// bytes. The identifier is the lowercase hex SHA256 digest, so resubmitting the
// same file always maps to the same conversion job.
package contentid

import (
	"io"
	"strings"

	"mediarelay/internal/fileutil"
)

// Length is the number of hex characters in a content identifier.
const Length = 64

// FromFile hashes the file at path.
func FromFile(path string) (string, error) {
	id, _, err := fileutil.HashFile(path)
	return id, err
}

// FromReader hashes everything readable from r.
func FromReader(r io.Reader) (string, error) {
	id, _, err := fileutil.HashReader(r)
	return id, err
}

// Valid reports whether id has the shape of a content identifier.
func Valid(id string) bool {
	if len(id) != Length {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Normalize lowercases and trims a user supplied identifier.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
