package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestTrimExt(t *testing.T) {
	tests := []struct {
		in, trimmed, ext string
	}{
		{"lulc_2000.tif", "lulc_2000", ".tif"},
		{"/data/dem.asc.gz", "/data/dem", ".asc.gz"},
		{"noext", "noext", ""},
	}
	for _, tt := range tests {
		if got := TrimExt(tt.in); got != tt.trimmed {
			t.Errorf("TrimExt(%q): expected %q, got %q", tt.in, tt.trimmed, got)
		}
		if got := Ext(tt.in); got != tt.ext {
			t.Errorf("Ext(%q): expected %q, got %q", tt.in, tt.ext, got)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureParent(filepath.Join(dir, "file.csv")); err != nil {
		t.Fatal(err)
	}
	if !IsDirectory(dir) {
		t.Errorf("expected %s to exist", dir)
	}

	file := filepath.Join(dir, "file.csv")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if !IsFile(file) || IsDirectory(file) || IsFile(dir) {
		t.Errorf("file/directory detection is wrong")
	}

	if err := RemoveIfExists(file); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(file); err != nil {
		t.Errorf("expected removing a missing file to succeed, got %v", err)
	}
}

func TestStep(t *testing.T) {
	log, hook := test.NewNullLogger()

	s := Start(log, "Loading %s", "DEM")
	s.Done("Loaded %s", "DEM")

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Message != "▶️  Loading DEM" {
		t.Errorf("unexpected start message %q", entries[0].Message)
	}
	if !strings.HasPrefix(entries[1].Message, "✔️  Loaded DEM in ") {
		t.Errorf("unexpected done message %q", entries[1].Message)
	}
	if entries[1].Level != logrus.InfoLevel {
		t.Errorf("expected info level, got %s", entries[1].Level)
	}
}
