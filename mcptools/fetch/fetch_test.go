package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Test Article</title></head><body><article><p>Hello, readable world.</p></article></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(nil)
	title, text, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if title != "Test Article" {
		t.Errorf("expected title 'Test Article', got %q", title)
	}
	if text == "" {
		t.Error("expected non-empty extracted text")
	}
}

func TestFetcher_UnsupportedScheme(t *testing.T) {
	f := NewFetcher(nil)
	_, _, err := f.Fetch(context.Background(), "ftp://example.com/file")
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(nil)
	_, _, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestToolHandler_InvalidArguments(t *testing.T) {
	f := NewFetcher(nil)
	h := f.ToolHandler()
	result := h.Execute(context.Background(), json.RawMessage(`not json`))
	if !result.IsError {
		t.Fatal("expected error result for invalid arguments")
	}
}

func TestToolHandler_Definition(t *testing.T) {
	f := NewFetcher(nil)
	h := f.ToolHandler()
	if h.Definition.Name != ToolName {
		t.Errorf("expected tool name %q, got %q", ToolName, h.Definition.Name)
	}
}
