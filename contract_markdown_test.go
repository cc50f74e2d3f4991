package fyreflow

import "testing"

func TestEvaluateMarkdownContractPasses(t *testing.T) {
	step := Step{ID: "s1", OutputFormat: OutputMarkdown}
	out := "# Summary\n\nAll good.\n\n## Next Steps\n\nShip it.\n"
	r := EvaluateMarkdownContract(step, out, []string{"Summary", "next steps"})
	if r.Status != GatePass {
		t.Fatalf("got %+v", r)
	}
	if !r.Blocking {
		t.Error("markdown structure contract must be blocking")
	}
}

func TestEvaluateMarkdownContractMissingHeading(t *testing.T) {
	step := Step{ID: "s1", OutputFormat: OutputMarkdown}
	r := EvaluateMarkdownContract(step, "# Summary\n\ntext\n", []string{"Summary", "Risks"})
	if r.Status != GateFail {
		t.Fatalf("want fail for missing heading, got %+v", r)
	}
}

func TestEvaluateMarkdownContractEmptyOutput(t *testing.T) {
	step := Step{ID: "s1", OutputFormat: OutputMarkdown}
	r := EvaluateMarkdownContract(step, "", nil)
	if r.Status != GateFail {
		t.Fatalf("empty markdown should fail, got %+v", r)
	}
}
