package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileWriter_WritesTodaysFile(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer fw.Close()

	if _, err := fw.Write([]byte(`{"msg":"timer started"}` + "\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, time.Now().Format(dayLayout)+".jsonl"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(content), "timer started") {
		t.Errorf("log file = %q, want it to contain the written line", content)
	}
}

func TestFileWriter_RotatesOnDayChange(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer fw.Close()

	tomorrow := time.Now().AddDate(0, 0, 1)
	fw.now = func() time.Time { return tomorrow }

	if _, err := fw.Write([]byte("x\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := tomorrow.Format(dayLayout) + ".jsonl"
	if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
		t.Fatalf("expected rotated file %s: %v", want, err)
	}
	target, err := os.Readlink(filepath.Join(dir, "latest"))
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != want {
		t.Errorf("latest -> %s, want %s", target, want)
	}
}

func TestCleanup_RemovesOnlyOldLogFiles(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().AddDate(0, 0, -10).Format(dayLayout) + ".jsonl"
	recent := time.Now().Format(dayLayout) + ".jsonl"
	other := "notes.txt"
	for _, name := range []string{old, recent, other} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	Cleanup(dir, 7)

	if _, err := os.Stat(filepath.Join(dir, old)); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed", old)
	}
	for _, name := range []string{recent, other} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be kept: %v", name, err)
		}
	}
}
