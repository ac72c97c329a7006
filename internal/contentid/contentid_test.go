package contentid_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediarelay/internal/contentid"
)

func TestFromFileMatchesReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asset.mkv")
	if err := os.WriteFile(path, []byte("frames"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	fromFile, err := contentid.FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	fromReader, err := contentid.FromReader(strings.NewReader("frames"))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	if fromFile != fromReader {
		t.Fatalf("digests differ: %s vs %s", fromFile, fromReader)
	}
	if !contentid.Valid(fromFile) {
		t.Fatalf("derived id %q should be valid", fromFile)
	}
}

func TestValid(t *testing.T) {
	good := strings.Repeat("a1", 32)
	if !contentid.Valid(good) {
		t.Fatalf("expected %q to be valid", good)
	}
	for _, bad := range []string{"", "abc", strings.Repeat("A1", 32), strings.Repeat("g1", 32), good + "0"} {
		if contentid.Valid(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
	if contentid.Normalize("  "+strings.ToUpper(good)+" ") != good {
		t.Fatal("Normalize should lowercase and trim")
	}
}
