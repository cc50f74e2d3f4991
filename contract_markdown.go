package fyreflow

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New()

// GateMarkdownStructure is a supplemental gate kind, beyond the four the
// distilled spec names, for steps that declare outputFormat == markdown:
// it parses the output with goldmark and checks that it is non-empty
// and that every heading text in requiredHeadings appears somewhere in
// the document's heading nodes.
const GateMarkdownStructure GateKind = "markdown_structure"

// EvaluateMarkdownContract parses output as CommonMark and reports
// whether it is well-formed (goldmark tolerates almost any input, so
// "well-formed" here means "produced at least one block node") and
// whether every heading in requiredHeadings is present. Only invoked
// for steps with OutputFormat == OutputMarkdown; it is not one of the
// four contract kinds evaluated unconditionally for every step.
func EvaluateMarkdownContract(step Step, output string, requiredHeadings []string) StepQualityGateResult {
	r := StepQualityGateResult{
		GateID:   "contract-markdown-structure-" + step.ID,
		GateName: "markdown output structure",
		Kind:     GateMarkdownStructure,
		Blocking: true,
	}

	src := []byte(output)
	doc := markdownParser.Parser().Parse(text.NewReader(src))
	if doc.ChildCount() == 0 {
		r.Status = GateFail
		r.Message = "markdown output has no content"
		return r
	}

	headings := collectHeadingText(doc, src)
	var missing []string
	for _, want := range requiredHeadings {
		if !containsFold(headings, want) {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		r.Status = GateFail
		r.Message = "missing required headings: " + strings.Join(missing, ", ")
		r.Details = strings.Join(headings, "; ")
		return r
	}

	r.Status = GatePass
	return r
}

// collectHeadingText walks the document collecting the flattened text of
// every heading node (the inline Text segments beneath each *ast.Heading).
func collectHeadingText(doc ast.Node, src []byte) []string {
	var headings []string
	var cur *strings.Builder

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering {
				cur = &strings.Builder{}
			} else {
				headings = append(headings, strings.TrimSpace(cur.String()))
				cur = nil
			}
		case *ast.Text:
			if entering && cur != nil {
				cur.Write(node.Segment.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return headings
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
