package fyreflow

import (
	"strings"
	"testing"
)

func TestDeriveOutcomeBlockingGateFailureWins(t *testing.T) {
	gates := []StepQualityGateResult{{Blocking: true, Status: GateFail}}
	got := DeriveOutcome(gates, "WORKFLOW_STATUS: PASS")
	if got != OutcomeFail {
		t.Fatalf("got %v, want fail (blocking gate outranks status line)", got)
	}
}

func TestDeriveOutcomeStatusLine(t *testing.T) {
	tests := map[string]WorkflowOutcome{
		"WORKFLOW_STATUS: PASS":    OutcomePass,
		"workflow_status: fail":    OutcomeFail,
		"WORKFLOW_STATUS: Neutral": OutcomeNeutral,
	}
	for in, want := range tests {
		if got := DeriveOutcome(nil, in); got != want {
			t.Errorf("DeriveOutcome(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDeriveOutcomeEmbeddedJSONStatus(t *testing.T) {
	got := DeriveOutcome(nil, `result: {"status": "fail", "detail": "x"}`)
	if got != OutcomeFail {
		t.Fatalf("got %v, want fail", got)
	}
}

func TestDeriveOutcomeHeuristicFailBeforePass(t *testing.T) {
	got := DeriveOutcome(nil, "the task completed but an error occurred mid-way")
	if got != OutcomeFail {
		t.Fatalf("got %v, want fail (fail keywords checked first)", got)
	}
}

func TestDeriveOutcomeHeuristicPass(t *testing.T) {
	got := DeriveOutcome(nil, "task completed successfully")
	if got != OutcomePass {
		t.Fatalf("got %v, want pass", got)
	}
}

func TestDeriveOutcomeNeutralFallback(t *testing.T) {
	got := DeriveOutcome(nil, "just some plain text")
	if got != OutcomeNeutral {
		t.Fatalf("got %v, want neutral", got)
	}
}

func TestAppendQualityGatesBlockedNoBlockingFailures(t *testing.T) {
	gates := []StepQualityGateResult{{Blocking: true, Status: GatePass}, {Blocking: false, Status: GateFail}}
	got := AppendQualityGatesBlocked("ERROR 42", gates)
	if got != "ERROR 42" {
		t.Fatalf("got %q, want output unchanged", got)
	}
}

func TestAppendQualityGatesBlockedAppendsSuffix(t *testing.T) {
	gates := []StepQualityGateResult{
		{GateID: "no-error", Kind: GateRegexMustNotMatch, Blocking: true, Status: GateFail, Message: `matched "ERROR"`},
	}
	got := AppendQualityGatesBlocked("ERROR 42", gates)
	if !strings.HasPrefix(got, "ERROR 42") {
		t.Fatalf("got %q, want original output preserved as prefix", got)
	}
	if !strings.Contains(got, "QUALITY_GATES_BLOCKED:") {
		t.Fatalf("got %q, want a QUALITY_GATES_BLOCKED: block", got)
	}
	if !strings.Contains(got, "no-error") || !strings.Contains(got, `matched "ERROR"`) {
		t.Fatalf("got %q, want the blocking gate's id and message named", got)
	}
}

func TestAppendQualityGatesBlockedSummarisesMultiple(t *testing.T) {
	gates := []StepQualityGateResult{
		{GateID: "gate-1", Kind: GateRegexMustNotMatch, Blocking: true, Status: GateFail, Message: "m1"},
		{GateID: "gate-2", Kind: GateArtifactExists, Blocking: true, Status: GateFail, Message: "m2"},
	}
	got := AppendQualityGatesBlocked("out", gates)
	if !strings.Contains(got, "gate-1") || !strings.Contains(got, "gate-2") {
		t.Fatalf("got %q, want both blocking gates summarised", got)
	}
}

func TestNeedsInputSignals(t *testing.T) {
	if !NeedsInput("WORKFLOW_STATUS: NEEDS_INPUT") {
		t.Error("status line should assert needs_input")
	}
	if !NeedsInput(`{"status":"needs_input"}`) {
		t.Error("json status field should assert needs_input")
	}
	if !NeedsInput(`{"input_requests":["api_key"]}`) {
		t.Error("non-empty input_requests should assert needs_input")
	}
	if NeedsInput(`{"input_requests":[]}`) {
		t.Error("empty input_requests must not assert needs_input")
	}
	if NeedsInput("WORKFLOW_STATUS: PASS") {
		t.Error("pass status must not assert needs_input")
	}
}
