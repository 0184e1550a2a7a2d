package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisk_PutOpenDelete(t *testing.T) {
	d, err := NewDisk(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	ctx := context.Background()

	n, err := d.Put(ctx, "u1/abc-readme.md", strings.NewReader("# hello"), 100)
	if err != nil || n != 7 {
		t.Fatalf("Put: n=%d err=%v", n, err)
	}
	rc, err := d.Open(ctx, "u1/abc-readme.md")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "# hello" {
		t.Fatalf("unexpected content %q", b)
	}

	if err := d.Delete(ctx, "u1/abc-readme.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := d.Delete(ctx, "u1/abc-readme.md"); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, err := d.Open(ctx, "u1/abc-readme.md"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDisk_TooLargeLeavesNothing(t *testing.T) {
	root := t.TempDir()
	d, _ := NewDisk(root)
	if _, err := d.Put(context.Background(), "u1/big.txt", strings.NewReader(strings.Repeat("x", 11)), 10); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "u1"))
	if len(entries) != 0 {
		t.Fatalf("expected no leftovers, got %d entries", len(entries))
	}
}

func TestDisk_RejectsEscapingKeys(t *testing.T) {
	d, _ := NewDisk(t.TempDir())
	for _, k := range []string{"", "/etc/passwd", "../x", "a/../../x", "..", `a\b`} {
		if _, err := d.Put(context.Background(), k, strings.NewReader("x"), 0); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", k, err)
		}
	}
}

func TestDisk_CanceledContext(t *testing.T) {
	d, _ := NewDisk(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Put(ctx, "u1/x", strings.NewReader("data"), 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
