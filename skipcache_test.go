package fyreflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEvaluateSkipCacheNoDeclaration(t *testing.T) {
	d := EvaluateSkipCache(Step{}, nil, "", nil, func(string) bool { return false }, StoragePaths{}, nil)
	if d.Skip {
		t.Fatal("a step with no skipIfArtifacts must never skip")
	}
}

func TestEvaluateSkipCacheGlobalBypass(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "out.md"))
	step := Step{SkipIfArtifacts: []string{"out.md"}}
	paths := StoragePaths{RunPath: dir, SharedPath: disabledPath, IsolatedPath: disabledPath}

	d := EvaluateSkipCache(step, map[string]string{"cache_bypass": "true"}, "", nil, func(string) bool { return false }, paths, nil)
	if d.Skip {
		t.Fatal("global cache_bypass input must disable skip-cache")
	}
}

func TestEvaluateSkipCacheStepBypass(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "out.md"))
	step := Step{SkipIfArtifacts: []string{"out.md"}, CacheBypassInputKey: "force_regen"}
	paths := StoragePaths{RunPath: dir, SharedPath: disabledPath, IsolatedPath: disabledPath}

	d := EvaluateSkipCache(step, map[string]string{"force_regen": "1"}, "", nil, func(string) bool { return false }, paths, nil)
	if d.Skip {
		t.Fatal("step-level bypass key must disable skip-cache")
	}
}

func TestEvaluateSkipCacheAlwaysRunPrompt(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "out.md"))
	step := Step{SkipIfArtifacts: []string{"out.md"}, Prompt: "please always-run this step"}
	paths := StoragePaths{RunPath: dir, SharedPath: disabledPath, IsolatedPath: disabledPath}

	d := EvaluateSkipCache(step, nil, "", nil, func(string) bool { return false }, paths, nil)
	if d.Skip {
		t.Fatal("always-run prompt marker must disable skip-cache")
	}
}

func TestEvaluateSkipCacheOrchestratorPromptMatchesBypassPattern(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "out.md"))
	step := Step{SkipIfArtifacts: []string{"out.md"}, CacheBypassPattern: `(?i)regenerate`}
	paths := StoragePaths{RunPath: dir, SharedPath: disabledPath, IsolatedPath: disabledPath}

	d := EvaluateSkipCache(step, nil, "please Regenerate the report from scratch", nil, func(string) bool { return false }, paths, nil)
	if d.Skip {
		t.Fatal("a task matching the step's bypass pattern must disable skip-cache")
	}
}

func TestEvaluateSkipCacheOrchestratorPromptDoesNotMatchBypassPattern(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "out.md"))
	step := Step{SkipIfArtifacts: []string{"out.md"}, CacheBypassPattern: `regenerate`}
	paths := StoragePaths{RunPath: dir, SharedPath: disabledPath, IsolatedPath: disabledPath}

	d := EvaluateSkipCache(step, nil, "summarize the quarterly report", nil, func(string) bool { return false }, paths, nil)
	if !d.Skip {
		t.Fatal("a task not matching the step's bypass pattern must still allow skip")
	}
}

func TestEvaluateSkipCacheUpstreamWroteArtifactInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "out.md"))
	step := Step{SkipIfArtifacts: []string{"out.md"}}
	paths := StoragePaths{RunPath: dir, SharedPath: disabledPath, IsolatedPath: disabledPath}

	d := EvaluateSkipCache(step, nil, "", []string{"upstream1"}, func(id string) bool { return id == "upstream1" }, paths, nil)
	if d.Skip {
		t.Fatal("a fresh upstream artifact must invalidate the cache")
	}
}

func TestEvaluateSkipCacheMissingPathBlocks(t *testing.T) {
	dir := t.TempDir()
	step := Step{SkipIfArtifacts: []string{"missing.md"}}
	paths := StoragePaths{RunPath: dir, SharedPath: disabledPath, IsolatedPath: disabledPath}

	d := EvaluateSkipCache(step, nil, "", nil, func(string) bool { return false }, paths, nil)
	if d.Skip {
		t.Fatal("a missing required artifact must not skip")
	}
}

func TestEvaluateSkipCacheSucceeds(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "out.md"))
	step := Step{SkipIfArtifacts: []string{"out.md"}}
	paths := StoragePaths{RunPath: dir, SharedPath: disabledPath, IsolatedPath: disabledPath}

	d := EvaluateSkipCache(step, nil, "", nil, func(string) bool { return false }, paths, nil)
	if !d.Skip {
		t.Fatal("expected skip")
	}
	out := SyntheticSkipOutput(step, d.Resolved)
	if !strings.Contains(out, "STEP_STATUS: SKIPPED") || !strings.Contains(out, "out.md =>") {
		t.Fatalf("unexpected synthetic output:\n%s", out)
	}
}

func TestEvaluateSkipCacheSecondaryCheckBlocks(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "out.md"))
	step := Step{SkipIfArtifacts: []string{"out.md"}}
	paths := StoragePaths{RunPath: dir, SharedPath: disabledPath, IsolatedPath: disabledPath}

	d := EvaluateSkipCache(step, nil, "", nil, func(string) bool { return false }, paths, func(map[string]string) bool { return false })
	if d.Skip {
		t.Fatal("a failing secondary quality check must prevent skip")
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}
