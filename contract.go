package fyreflow

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// EvaluateStepContracts synthesizes the per-step contracts implied by a
// step's declared output shape: JSON-format validity, required field
// paths, and required output files (spec §4.3 "Step contracts"). Every
// result returned here is Blocking == true.
func EvaluateStepContracts(step Step, output string, paths StoragePaths, runInputs map[string]string) []StepQualityGateResult {
	var results []StepQualityGateResult

	if step.OutputFormat == OutputJSON {
		obj, ok := ExtractJSONObject(output)
		r := StepQualityGateResult{
			GateID:   "contract-json-format-" + step.ID,
			GateName: "JSON output format",
			Kind:     GateJSONFieldExists,
			Blocking: true,
		}
		if ok {
			r.Status = GatePass
		} else {
			r.Status = GateFail
			r.Message = "output does not parse to a JSON object"
		}
		results = append(results, r)

		for _, path := range step.RequiredOutputFields {
			r := StepQualityGateResult{
				GateID:   fmt.Sprintf("contract-json-field-%s-%s", step.ID, path),
				GateName: "required field " + path,
				Kind:     GateJSONFieldExists,
				Blocking: true,
			}
			if ok {
				if _, found := JSONFieldValue(obj, path); found {
					r.Status = GatePass
				} else {
					r.Status = GateFail
					r.Message = "field path not found: " + path
				}
			} else {
				r.Status = GateFail
				r.Message = "output is not a JSON object; cannot resolve field path " + path
			}
			results = append(results, r)
		}
	}

	if step.OutputFormat == OutputMarkdown {
		results = append(results, EvaluateMarkdownContract(step, output, step.RequiredHeadings))
	}

	for _, template := range step.RequiredOutputFiles {
		r := StepQualityGateResult{
			GateID:   "contract-artifact-" + step.ID + "-" + Sanitize(template),
			GateName: "required output file " + template,
			Kind:     GateArtifactExists,
			Blocking: true,
		}
		candidates, disabled := resolveArtifactCandidates(template, paths, runInputs)
		if disabled {
			r.Status = GateFail
			r.Message = "storage is disabled for required path " + template
		} else if path, found := firstExisting(candidates); found {
			r.Status = GatePass
			r.Details = path
		} else {
			r.Status = GateFail
			r.Message = "no candidate path exists for " + template
			r.Details = strings.Join(candidates, "; ")
		}
		results = append(results, r)
	}

	return results
}

// EvaluateQualityGates evaluates the flow-level QualityGate entries that
// target stepID, excluding manual_approval gates (handled by the control
// plane per spec §4.7). Order follows gates' declaration order.
func EvaluateQualityGates(gates []QualityGate, stepID string, output string, paths StoragePaths, runInputs map[string]string) []StepQualityGateResult {
	var results []StepQualityGateResult

	for _, g := range gates {
		if g.Kind == GateManualApproval || !g.targets(stepID) {
			continue
		}

		r := StepQualityGateResult{GateID: g.ID, GateName: g.Name, Kind: g.Kind, Blocking: g.Blocking}

		switch g.Kind {
		case GateRegexMustMatch, GateRegexMustNotMatch:
			evaluateRegexGate(&r, g, output)
		case GateJSONFieldExists:
			evaluateJSONFieldGate(&r, g, output)
		case GateArtifactExists:
			if g.ArtifactPath == "" {
				r.Status = GateFail
				r.Message = "artifact_exists gate missing artifactPath"
				break
			}
			candidates, disabled := resolveArtifactCandidates(g.ArtifactPath, paths, runInputs)
			if disabled {
				r.Status = GateFail
				r.Message = "storage is disabled for " + g.ArtifactPath
			} else if path, found := firstExisting(candidates); found {
				r.Status = GatePass
				r.Details = path
			} else {
				r.Status = GateFail
				r.Message = "no candidate path exists for " + g.ArtifactPath
			}
		default:
			r.Status = GateFail
			r.Message = "unsupported gate kind: " + string(g.Kind)
		}

		results = append(results, r)
	}
	return results
}

func evaluateRegexGate(r *StepQualityGateResult, g QualityGate, output string) {
	if g.Pattern == "" {
		r.Status = GateFail
		r.Message = "regex gate missing pattern"
		return
	}
	re, err := compileNormalizedRegex(g.Pattern, g.Flags)
	if err != nil {
		r.Status = GateFail
		r.Message = "regex compile error: " + err.Error()
		return
	}
	matched := re.MatchString(norm.NFC.String(output))
	want := g.Kind == GateRegexMustMatch
	if matched == want {
		r.Status = GatePass
	} else {
		r.Status = GateFail
		if want {
			r.Message = "pattern did not match"
		} else {
			r.Message = "pattern matched but must not"
		}
	}
}

func evaluateJSONFieldGate(r *StepQualityGateResult, g QualityGate, output string) {
	if g.JSONPath == "" {
		r.Status = GateFail
		r.Message = "json_field_exists gate missing jsonPath"
		return
	}
	obj, ok := ExtractJSONObject(output)
	if !ok {
		r.Status = GateFail
		r.Message = "output is not a JSON object"
		return
	}
	if _, found := JSONFieldValue(obj, g.JSONPath); found {
		r.Status = GatePass
	} else {
		r.Status = GateFail
		r.Message = "field path not found: " + g.JSONPath
	}
}

// validRegexFlags restricts and deduplicates JS-style flags to the set
// the spec recognizes: g, i, m, s, u, y. Only i/m/s have a Go regexp
// equivalent; g/u/y are accepted (for compatibility with flow
// definitions authored against the original system) but have no effect
// under Go's RE2 engine.
const validRegexFlags = "gimsuy"

func compileNormalizedRegex(pattern, flags string) (*regexp.Regexp, error) {
	seen := make(map[byte]bool)
	var goFlags []byte
	for i := 0; i < len(flags); i++ {
		c := flags[i]
		if !strings.ContainsRune(validRegexFlags, rune(c)) || seen[c] {
			continue
		}
		seen[c] = true
		if c == 'i' || c == 'm' || c == 's' {
			goFlags = append(goFlags, c)
		}
	}
	sort.Slice(goFlags, func(i, j int) bool { return goFlags[i] < goFlags[j] })

	normalized := norm.NFC.String(pattern)
	if len(goFlags) == 0 {
		return regexp.Compile(normalized)
	}
	return regexp.Compile("(?" + string(goFlags) + ")" + normalized)
}

// resolveArtifactCandidates returns the candidate filesystem paths for
// a required-file template: the storage-token rendering, plus — when
// the template carries no storage token and is relative — a second
// candidate against runInputs["output_dir"] (spec §4.3). disabled is
// true when the template references a storage root that is currently
// the "DISABLED" sentinel.
func resolveArtifactCandidates(template string, paths StoragePaths, runInputs map[string]string) (candidates []string, disabled bool) {
	if referencesDisabledStorage(template, paths) {
		return nil, true
	}

	rendered := RenderPathTemplate(template, paths, runInputs)
	candidates = append(candidates, rendered)

	usesToken := strings.Contains(template, "{{shared_storage_path}}") ||
		strings.Contains(template, "{{isolated_storage_path}}") ||
		strings.Contains(template, "{{run_storage_path}}")
	if !usesToken {
		if outDir, ok := runInputs["output_dir"]; ok && outDir != "" {
			candidates = append(candidates, outDir+"/"+template)
		}
	}
	return candidates, false
}

// referencesDisabledStorage reports whether template names a
// shared/isolated storage-root token whose root is currently the
// disabled-storage sentinel. Checked against the unrendered roots,
// before RenderPathTemplate substitutes and joins them, since a
// template carrying a subpath (e.g. "{{shared_storage_path}}/report.md")
// never renders to a string literally equal to the sentinel.
func referencesDisabledStorage(template string, p StoragePaths) bool {
	if strings.Contains(template, "{{shared_storage_path}}") && p.SharedPath == disabledPath {
		return true
	}
	if strings.Contains(template, "{{isolated_storage_path}}") && p.IsolatedPath == disabledPath {
		return true
	}
	return false
}

func firstExisting(paths []string) (string, bool) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}
