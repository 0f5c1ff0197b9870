package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
)

func newRenderRecorder(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewRenderHandler(validator.New(), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/render", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandlePreview(rec, req)
	return rec
}

func TestHandlePreview_RendersAllParts(t *testing.T) {
	rec := newRenderRecorder(t, `{
		"subject_template": "Hi {{name}}",
		"html_template": "{{#if vip}}VIP {{/if}}Welcome {{name}}",
		"text_template": "Welcome {{name}}",
		"variables": {"name": "Amy", "vip": true}
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data renderPreviewResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if envelope.Data.Subject != "Hi Amy" {
		t.Errorf("subject = %q", envelope.Data.Subject)
	}
	if envelope.Data.HTML != "VIP Welcome Amy" {
		t.Errorf("html = %q", envelope.Data.HTML)
	}
	if envelope.Data.Text != "Welcome Amy" {
		t.Errorf("text = %q", envelope.Data.Text)
	}
}

func TestHandlePreview_UnknownVariablesPassThrough(t *testing.T) {
	rec := newRenderRecorder(t, `{
		"html_template": "Hello {{missing}}",
		"variables": {}
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var envelope struct {
		Data renderPreviewResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Data.HTML != "Hello {{missing}}" {
		t.Errorf("html = %q", envelope.Data.HTML)
	}
}

func TestHandlePreview_ListVariables(t *testing.T) {
	rec := newRenderRecorder(t, `{
		"html_template": "{{#each items}}<li>{{title}}</li>{{/each}}",
		"variables": {"items": [{"title": "One"}, {"title": "Two"}]}
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var envelope struct {
		Data renderPreviewResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Data.HTML != "<li>One</li><li>Two</li>" {
		t.Errorf("html = %q", envelope.Data.HTML)
	}
}

func TestHandlePreview_MissingHTMLTemplate(t *testing.T) {
	rec := newRenderRecorder(t, `{"variables": {"name": "Amy"}}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandlePreview_EmptyBody(t *testing.T) {
	rec := newRenderRecorder(t, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
