package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"mailroom/internal/template"
)

// RenderHandler exposes the template renderer as a preview endpoint so
// template authors can check output without sending mail.
type RenderHandler struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewRenderHandler creates a RenderHandler.
func NewRenderHandler(validate *validator.Validate, logger *slog.Logger) *RenderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderHandler{
		validate: validate,
		logger:   logger,
	}
}

// renderPreviewRequest is the body for POST /v1/render. Each template field
// is rendered independently against the same variable bag; absent fields
// come back empty.
type renderPreviewRequest struct {
	SubjectTemplate string         `json:"subject_template"`
	HTMLTemplate    string         `json:"html_template" validate:"required"`
	TextTemplate    string         `json:"text_template"`
	Variables       map[string]any `json:"variables"`
}

// renderPreviewResponse carries the rendered output.
type renderPreviewResponse struct {
	Subject string `json:"subject,omitempty"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

// HandlePreview handles POST /v1/render. Rendering is total: malformed
// markup and unknown variables pass through literally, so this endpoint
// never fails on template content.
func (h *RenderHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req renderPreviewRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, r, mapValidationError(err))
		return
	}

	bag := template.BagFromJSON(req.Variables)

	resp := renderPreviewResponse{
		HTML: template.Render(req.HTMLTemplate, bag),
	}
	if req.SubjectTemplate != "" {
		resp.Subject = template.Render(req.SubjectTemplate, bag)
	}
	if req.TextTemplate != "" {
		resp.Text = template.Render(req.TextTemplate, bag)
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: resp})
}
