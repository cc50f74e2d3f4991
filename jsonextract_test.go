package fyreflow

import "testing"

func TestExtractJSONObjectFullTrimmed(t *testing.T) {
	obj, ok := ExtractJSONObject(`  {"status":"pass"}  `)
	if !ok {
		t.Fatal("expected match")
	}
	if v, _ := JSONFieldValue(obj, "status"); v != "pass" {
		t.Fatalf("status = %v", v)
	}
}

func TestExtractJSONObjectRejectsArray(t *testing.T) {
	if _, ok := ExtractJSONObject(`[1,2,3]`); ok {
		t.Fatal("top-level array must not be accepted as an object")
	}
}

func TestExtractJSONObjectFencedBlock(t *testing.T) {
	raw := "here is the result\n```json\n{\"status\": \"fail\", \"note\": \"x\"}\n```\nthanks"
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		t.Fatal("expected match in fenced block")
	}
	if v, _ := JSONFieldValue(obj, "status"); v != "fail" {
		t.Fatalf("status = %v", v)
	}
}

func TestExtractJSONObjectBraceBalancedWithStringBraces(t *testing.T) {
	raw := `text before {"msg": "contains a } brace", "status": "pass"} text after`
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		t.Fatal("expected brace-balanced scan to find the object")
	}
	if v, _ := JSONFieldValue(obj, "status"); v != "pass" {
		t.Fatalf("status = %v, raw = %s", v, obj)
	}
}

func TestExtractJSONObjectNoneFound(t *testing.T) {
	if _, ok := ExtractJSONObject("no json here at all"); ok {
		t.Fatal("expected no match")
	}
}

func TestJSONFieldValueNestedAndArrayIndex(t *testing.T) {
	obj, ok := ExtractJSONObject(`{"a":{"b":[10,20,30]}}`)
	if !ok {
		t.Fatal("setup: expected parse")
	}
	v, ok := JSONFieldValue(obj, "$.a.b.1")
	if !ok {
		t.Fatal("expected resolution of a.b.1")
	}
	if f, isFloat := v.(float64); !isFloat || f != 20 {
		t.Fatalf("a.b.1 = %v, want 20", v)
	}
}

func TestJSONFieldValueMissingPath(t *testing.T) {
	obj, _ := ExtractJSONObject(`{"a":1}`)
	if _, ok := JSONFieldValue(obj, "a.b"); ok {
		t.Fatal("traversal into a non-container should fail")
	}
	if _, ok := JSONFieldValue(obj, "missing"); ok {
		t.Fatal("missing key should fail")
	}
}
