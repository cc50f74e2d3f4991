package fyreflow

import (
	"path/filepath"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "default"},
		{"abc-123_xyz.txt", "abc-123_xyz.txt"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"run id with spaces", "run_id_with_spaces"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveStoragePathsDisabledSentinel(t *testing.T) {
	cfg := DefaultStorageConfig("/data")
	cfg.Enabled = false
	p := ResolveStoragePaths(cfg, Step{ID: "s1", EnableSharedStorage: true, EnableIsolatedStorage: true}, "f1", "r1")
	if p.SharedPath != disabledPath || p.IsolatedPath != disabledPath {
		t.Fatalf("want DISABLED sentinels when storage globally disabled, got %+v", p)
	}
	if p.RunPath == disabledPath {
		t.Fatal("runPath must always resolve regardless of global enablement")
	}
}

func TestResolveStoragePathsPerStepGating(t *testing.T) {
	cfg := DefaultStorageConfig("/data")
	p := ResolveStoragePaths(cfg, Step{ID: "s1"}, "f1", "r1")
	if p.SharedPath != disabledPath || p.IsolatedPath != disabledPath {
		t.Fatalf("step without shared/isolated flags should see DISABLED, got %+v", p)
	}

	p2 := ResolveStoragePaths(cfg, Step{ID: "s1", EnableSharedStorage: true}, "f1", "r1")
	want := filepath.Join("/data", "shared", "f1")
	if p2.SharedPath != want {
		t.Fatalf("SharedPath = %q, want %q", p2.SharedPath, want)
	}
}

func TestRenderPathTemplateTokensAndFallback(t *testing.T) {
	p := StoragePaths{SharedPath: "/data/shared/f1", IsolatedPath: disabledPath, RunPath: "/data/runs/r1/s1"}
	inputs := map[string]string{"output_dir": "reports"}

	got := RenderPathTemplate("{{shared_storage_path}}/out.md", p, inputs)
	if got != "/data/shared/f1/out.md" {
		t.Fatalf("got %q", got)
	}

	got = RenderPathTemplate("{{output_dir}}/summary.json", p, inputs)
	if got != filepath.Join("/data/runs/r1/s1", "reports/summary.json") {
		t.Fatalf("relative free-form template should resolve against run path, got %q", got)
	}

	got = RenderPathTemplate("/absolute/path.txt", p, inputs)
	if got != "/absolute/path.txt" {
		t.Fatalf("absolute template must pass through unchanged, got %q", got)
	}

	got = RenderPathTemplate("{{unknown_key}}x.txt", p, inputs)
	if got != filepath.Join("/data/runs/r1/s1", "x.txt") {
		t.Fatalf("unknown token should resolve to empty string, got %q", got)
	}
}
