package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMoveFileToDir_EmptyDirErrors(t *testing.T) {
	if _, err := MoveFileToDir("x.etl", " "); err == nil {
		t.Fatalf("expected error for empty destination")
	}
}

func TestMoveFileToDir_CreatesDir(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "trace.etl")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst, err := MoveFileToDir(src, filepath.Join(tmp, "errors", "nested"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dst) != "trace.etl" {
		t.Fatalf("expected name kept, got %q", dst)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source removed, stat err=%v", err)
	}
}

func TestMoveFileToDir_AvoidsNameCollision(t *testing.T) {
	tmp := t.TempDir()
	dstDir := filepath.Join(tmp, "dst")
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dstDir, "trace.etl"), []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(tmp, "trace.etl")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst, err := MoveFileToDir(src, dstDir)
	if err != nil {
		t.Fatal(err)
	}
	base := filepath.Base(dst)
	if base == "trace.etl" || !strings.HasPrefix(base, "trace-") || filepath.Ext(base) != ".etl" {
		t.Fatalf("expected collision-avoiding name, got %q", base)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "payload" {
		t.Fatalf("unexpected content %q", b)
	}
	b, _ = os.ReadFile(filepath.Join(dstDir, "trace.etl"))
	if string(b) != "existing" {
		t.Fatalf("existing file overwritten: %q", b)
	}
}

func TestCopyFile_RefusesToOverwrite(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "a")
	dst := filepath.Join(tmp, "b")
	if err := os.WriteFile(src, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := copyFile(src, dst); err == nil {
		t.Fatalf("expected error when destination exists")
	}
}
