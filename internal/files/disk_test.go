package files

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiskStoreSaveAndRemove(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 1024)
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}

	saved, err := store.Save("a@b.c", "p1", "../../etc/notes.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.Filename != "notes.txt" {
		t.Fatalf("Filename = %q, want notes.txt", saved.Filename)
	}
	if name := filepath.Base(saved.Path); !strings.HasPrefix(name, "a@b.c_p1_") || !strings.HasSuffix(name, "_notes.txt") {
		t.Fatalf("Path = %q, want a@b.c_p1_<id>_notes.txt", saved.Path)
	}
	if filepath.Dir(saved.Path) != store.Dir() {
		t.Fatalf("file escaped upload dir: %q", saved.Path)
	}
	data, err := os.ReadFile(saved.Path)
	if err != nil || string(data) != "hello" || saved.Size != 5 {
		t.Fatalf("stored content = %q size=%d err=%v", data, saved.Size, err)
	}

	if err := store.Remove(saved.Path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(saved.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present after Remove: %v", err)
	}
	if err := store.Remove(saved.Path); err != nil {
		t.Fatalf("Remove(missing) error = %v", err)
	}
}

func TestDiskStoreRejectsOversize(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	_, err = store.Save("u", "p", "big.bin", strings.NewReader("12345"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Save() error = %v, want ErrTooLarge", err)
	}
	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 0 {
		t.Fatalf("partial file left behind: %d entries", len(entries))
	}
}

func TestDiskStoreRejectsBadNames(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	for _, name := range []string{"", "..", "/"} {
		if _, err := store.Save("u", "p", name, strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Save(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
	if err := store.Remove("/etc/passwd"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("Remove(outside) error = %v, want ErrInvalidName", err)
	}
}

func TestDiskStoreOversizeLeavesEarlierUploadIntact(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	first, err := store.Save("u", "p", "keep.txt", strings.NewReader("precious"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := store.Save("u", "p", "keep.txt", strings.NewReader(strings.Repeat("x", 100))); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Save(oversize) error = %v, want ErrTooLarge", err)
	}

	data, err := os.ReadFile(first.Path)
	if err != nil || string(data) != "precious" {
		t.Fatalf("earlier upload = %q err=%v, want untouched", data, err)
	}
	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 1 {
		t.Fatalf("upload dir has %d entries, want only the accepted file", len(entries))
	}
}

func TestDiskStoreSameNameUploadsAreIndependent(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	a, err := store.Save("u", "p", "n.txt", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("Save(a) error = %v", err)
	}
	b, err := store.Save("u", "p", "n.txt", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("Save(b) error = %v", err)
	}
	if a.Path == b.Path {
		t.Fatalf("same-name uploads share path %q", a.Path)
	}
	if err := store.Remove(a.Path); err != nil {
		t.Fatalf("Remove(a) error = %v", err)
	}
	data, err := os.ReadFile(b.Path)
	if err != nil || string(data) != "two" {
		t.Fatalf("second upload after removing first = %q err=%v", data, err)
	}
}
