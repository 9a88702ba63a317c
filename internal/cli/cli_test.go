package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSelectStages(t *testing.T) {
	tests := []struct {
		from, to string
		want     string
		errMsg   string
	}{
		{"", "", "clip,reclass,biophys,sdr,zonal,panel,regress", ""},
		{"zonal", "", "zonal,panel,regress", ""},
		{"", "sdr", "clip,reclass,biophys,sdr", ""},
		{"panel", "panel", "panel", ""},
		{"nope", "", "", "unknown stage"},
		{"regress", "clip", "", "comes after"},
	}
	for _, tt := range tests {
		got, err := selectStages(tt.from, tt.to)
		if tt.errMsg != "" {
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("%s..%s: expected error %q, got %v", tt.from, tt.to, tt.errMsg, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s..%s: unexpected error %v", tt.from, tt.to, err)
			continue
		}
		names := make([]string, len(got))
		for i, s := range got {
			names[i] = s.name
		}
		if strings.Join(names, ",") != tt.want {
			t.Errorf("%s..%s: expected %s, got %s", tt.from, tt.to, tt.want, strings.Join(names, ","))
		}
	}
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slidepanel.yaml")

	out, err := execute(t, "config", "init", path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("expected created path in output, got %s", out)
	}

	if _, err := execute(t, "config", "init", path); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected existing file error, got %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(string(content), "workspace: ~/Files/base_data/gep/landslides", "workspace: "+dir, 1)
	if err := os.WriteFile(path, []byte(edited), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SLIDEPANEL_WORKERS", "3")
	out, err = execute(t, "config", "show", "--config", path, "--env", filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"workspace: " + dir, "workers: 3", "model_name: natcap.invest.sdr.sdr"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "slidepanel v") {
		t.Errorf("unexpected version output %q", out)
	}
}
