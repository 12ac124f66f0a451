package container

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestZipArchiveLoadAndRelease(t *testing.T) {
	data := buildZip(t, map[string]string{"assets/prefabs/Hero.prefab": "hero"})
	archive, err := ZipOpener{}.Open("prefabs", data)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	value, err := archive.LoadObject(context.Background(), "/Assets/Prefabs/Hero.prefab")
	if err != nil {
		t.Fatalf("load object error: %v", err)
	}
	obj := value.(*Object)
	if string(obj.Data) != "hero" || obj.Path != "assets/prefabs/Hero.prefab" {
		t.Fatalf("unexpected object: %+v", obj)
	}
	za := archive.(*zipArchive)
	if za.Live() != 1 {
		t.Fatalf("expected one live object, got %d", za.Live())
	}
	if err := archive.Release(obj.Path, obj); err != nil {
		t.Fatalf("release error: %v", err)
	}
	if za.Live() != 0 {
		t.Fatalf("expected no live objects, got %d", za.Live())
	}
}

func TestZipArchiveCaseFoldPrefersSortedName(t *testing.T) {
	data := buildZip(t, map[string]string{"ui/Icon.png": "upper", "ui/icon.png": "lower"})
	archive, err := ZipOpener{}.Open("ui", data)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	for i := 0; i < 50; i++ {
		value, err := archive.LoadObject(context.Background(), "UI/ICON.PNG")
		if err != nil {
			t.Fatalf("load object error: %v", err)
		}
		if obj := value.(*Object); string(obj.Data) != "upper" {
			t.Fatalf("iteration %d: case-insensitive lookup picked %s", i, obj.Path)
		}
	}
}

func TestZipArchiveMissingObject(t *testing.T) {
	archive, err := ZipOpener{}.Open("prefabs", buildZip(t, map[string]string{"a.txt": "a"}))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if _, err := archive.LoadObject(context.Background(), "b.txt"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestZipArchiveClosed(t *testing.T) {
	archive, err := ZipOpener{}.Open("prefabs", buildZip(t, map[string]string{"a.txt": "a"}))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if _, err := archive.LoadObject(context.Background(), "a.txt"); err != nil {
		t.Fatalf("load error: %v", err)
	}
	if err := archive.Close(true); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if archive.(*zipArchive).Live() != 0 {
		t.Fatalf("close with releaseAll should drop live objects")
	}
	if _, err := archive.LoadObject(context.Background(), "a.txt"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestZipOpenRejectsGarbage(t *testing.T) {
	if _, err := (ZipOpener{}).Open("broken", []byte("not a zip")); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestDirArchive(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "assets"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "assets", "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	archive := NewDirArchive("dev", root)
	value, err := archive.LoadObject(context.Background(), "../assets/a.txt")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if string(value.(*Object).Data) != "a" {
		t.Fatalf("unexpected data")
	}
	if _, err := archive.LoadObject(context.Background(), "assets/missing.txt"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		`assets\a.txt`:     "assets/a.txt",
		"/assets/a.txt":    "assets/a.txt",
		"../../etc/passwd": "etc/passwd",
	}
	for in, want := range cases {
		if got := CleanPath(in); got != want {
			t.Fatalf("CleanPath(%q) = %q, want %q", in, got, want)
		}
	}
}
