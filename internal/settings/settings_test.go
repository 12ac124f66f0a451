package settings

import (
	"errors"
	"os"
	"testing"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/errs"
)

func TestSaveAndLoad(t *testing.T) {
	root := t.TempDir()
	want := Settings{BaseLocation: "http://cdn.local/Test/catalog.bin", LoadMode: catalog.Remote}
	if err := Save(root, "Test", want); err != nil {
		t.Fatalf("save error: %v", err)
	}
	got, err := Load(root, "Test")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if got != want {
		t.Fatalf("settings mismatch: %+v", got)
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	_, err := Load(t.TempDir(), "Absent")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadMalformedIsDecodeError(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(Path(root, "Broken"), []byte{0xff, 0xfe}, 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if _, err := Load(root, "Broken"); !errors.Is(err, errs.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestLoadEmptyFileIsDecodeError(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(Path(root, "Empty"), nil, 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if _, err := Load(root, "Empty"); !errors.Is(err, errs.ErrDecode) {
		t.Fatalf("expected ErrDecode for empty file, got %v", err)
	}
}

func TestLoadRejectsTraversalKey(t *testing.T) {
	if _, err := Load(t.TempDir(), "../etc"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for invalid key, got %v", err)
	}
}

func TestExpandLocation(t *testing.T) {
	got := ExpandLocation("{ContentRoot}/Test/catalog.bin", "/opt/app/content/")
	if got != "/opt/app/content/Test/catalog.bin" {
		t.Fatalf("unexpected expansion: %s", got)
	}
	if ExpandLocation("http://cdn/x", "/ignored") != "http://cdn/x" {
		t.Fatalf("locations without placeholder must be unchanged")
	}
}
