package fyreflow

import (
	"fmt"
	"regexp"
	"strings"
)

var workflowStatusLine = regexp.MustCompile(`(?im)^\s*WORKFLOW_STATUS:\s*(PASS|FAIL|NEUTRAL|NEEDS_INPUT)\s*$`)

var (
	failKeywords = []string{"error", "failed", "failure", "unable to", "could not", "cannot complete"}
	passKeywords = []string{"success", "completed", "done", "passed", "ready"}
)

// DeriveOutcome classifies a completed step's workflowOutcome from its
// gate results and raw output, in the priority order fixed by spec §4.6
// "Outcome derivation":
//  1. any blocking gate failed ⇒ fail
//  2. an embedded "WORKFLOW_STATUS: PASS|FAIL|NEUTRAL" line (case-insensitive)
//  3. an embedded JSON object with status ∈ {pass,fail,neutral}
//  4. heuristic keyword match (fail keywords checked before pass keywords),
//     otherwise neutral
func DeriveOutcome(gates []StepQualityGateResult, output string) WorkflowOutcome {
	for _, g := range gates {
		if g.Blocking && g.Status == GateFail {
			return OutcomeFail
		}
	}

	if m := workflowStatusLine.FindStringSubmatch(output); m != nil {
		switch strings.ToUpper(m[1]) {
		case "PASS":
			return OutcomePass
		case "FAIL":
			return OutcomeFail
		case "NEUTRAL":
			return OutcomeNeutral
		}
	}

	if obj, ok := ExtractJSONObject(output); ok {
		if v, ok := JSONFieldValue(obj, "status"); ok {
			if s, ok := v.(string); ok {
				switch strings.ToLower(s) {
				case "pass":
					return OutcomePass
				case "fail":
					return OutcomeFail
				case "neutral":
					return OutcomeNeutral
				}
			}
		}
	}

	lower := strings.ToLower(output)
	for _, kw := range failKeywords {
		if strings.Contains(lower, kw) {
			return OutcomeFail
		}
	}
	for _, kw := range passKeywords {
		if strings.Contains(lower, kw) {
			return OutcomePass
		}
	}
	return OutcomeNeutral
}

// AppendQualityGatesBlocked summarises every blocking gate failure in
// gates into a QUALITY_GATES_BLOCKED: block appended to output, to aid
// operator remediation (spec §7). Returns output unchanged if no
// blocking gate failed.
func AppendQualityGatesBlocked(output string, gates []StepQualityGateResult) string {
	var blocked []StepQualityGateResult
	for _, g := range gates {
		if g.Blocking && g.Status == GateFail {
			blocked = append(blocked, g)
		}
	}
	if len(blocked) == 0 {
		return output
	}

	var b strings.Builder
	b.WriteString(output)
	b.WriteString("\n\nQUALITY_GATES_BLOCKED:\n")
	for _, g := range blocked {
		fmt.Fprintf(&b, "- %s (%s): %s\n", g.GateID, g.Kind, g.Message)
	}
	return b.String()
}

// NeedsInput reports whether output asserts the "needs_input" signal:
// either a WORKFLOW_STATUS: NEEDS_INPUT line, an embedded JSON object
// with status=needs_input, or one with a non-empty input_requests
// array (spec §4.6).
func NeedsInput(output string) bool {
	if m := workflowStatusLine.FindStringSubmatch(output); m != nil && strings.EqualFold(m[1], "NEEDS_INPUT") {
		return true
	}
	obj, ok := ExtractJSONObject(output)
	if !ok {
		return false
	}
	if v, ok := JSONFieldValue(obj, "status"); ok {
		if s, ok := v.(string); ok && strings.EqualFold(s, "needs_input") {
			return true
		}
	}
	if v, ok := JSONFieldValue(obj, "input_requests"); ok {
		if arr, ok := v.([]any); ok && len(arr) > 0 {
			return true
		}
	}
	return false
}
