package fyreflow

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// globalCacheBypassInputKey is the reserved run-input key that disables
// skip-cache for the whole run when truthy.
const globalCacheBypassInputKey = "cache_bypass"

const alwaysRunMarker = "always-run"

// SkipCacheDecision is the outcome of evaluating a step's skip-cache
// eligibility (spec §4.4), including the resolved artifact paths so the
// caller can synthesize the virtual output without re-resolving them.
type SkipCacheDecision struct {
	Skip      bool
	Resolved  map[string]string // template -> resolved path or "missing"
}

// EvaluateSkipCache decides whether stepID may elide its attempt this
// run because its declared skipIfArtifacts already exist. wroteArtifact
// reports whether a given upstream step id produced a fresh artifact
// earlier in this run; artifactCheck performs the secondary,
// policy-profile-driven quality check over the resolved paths (passing
// a nil check always succeeds, matching the default policy profile).
func EvaluateSkipCache(
	step Step,
	runInputs map[string]string,
	task string,
	upstream []string,
	wroteArtifact func(stepID string) bool,
	paths StoragePaths,
	artifactCheck func(resolved map[string]string) bool,
) SkipCacheDecision {
	if len(step.SkipIfArtifacts) == 0 {
		return SkipCacheDecision{Skip: false}
	}

	if bypassActive(step, runInputs, task) {
		return SkipCacheDecision{Skip: false}
	}

	for _, up := range upstream {
		if wroteArtifact(up) {
			return SkipCacheDecision{Skip: false}
		}
	}

	resolved := make(map[string]string, len(step.SkipIfArtifacts))
	for _, template := range step.SkipIfArtifacts {
		path := RenderPathTemplate(template, paths, runInputs)
		if path == disabledPath {
			return SkipCacheDecision{Skip: false}
		}
		if _, err := os.Stat(path); err != nil {
			return SkipCacheDecision{Skip: false}
		}
		resolved[template] = path
	}

	if artifactCheck != nil && !artifactCheck(resolved) {
		return SkipCacheDecision{Skip: false}
	}

	return SkipCacheDecision{Skip: true, Resolved: resolved}
}

func bypassActive(step Step, runInputs map[string]string, task string) bool {
	if truthy(runInputs[globalCacheBypassInputKey]) {
		return true
	}
	if step.CacheBypassInputKey != "" && truthy(runInputs[step.CacheBypassInputKey]) {
		return true
	}
	if strings.Contains(strings.ToLower(step.Prompt), alwaysRunMarker) {
		return true
	}
	if step.CacheBypassPattern != "" {
		if re, err := regexp.Compile(step.CacheBypassPattern); err == nil && re.MatchString(task) {
			return true
		}
	}
	return false
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}

// SyntheticSkipOutput renders the virtual output a skipped step reports
// in place of executing (spec §4.4): a SKIPPED status line, reason, and
// one line per required template showing its resolved path.
func SyntheticSkipOutput(step Step, resolved map[string]string) string {
	var b strings.Builder
	b.WriteString("STEP_STATUS: SKIPPED\n")
	b.WriteString("SKIP_REASON: required artifacts already exist\n")
	for _, template := range step.SkipIfArtifacts {
		path, ok := resolved[template]
		if !ok || path == "" {
			path = "missing"
		}
		fmt.Fprintf(&b, "%s => %s\n", template, path)
	}
	return b.String()
}
