package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"mailroom/internal/dispatch"
	"mailroom/internal/template"
	"mailroom/internal/types"
)

// Dispatcher runs the delivery sequence for one notification. Matches the
// dispatch.Orchestrator method set but is defined locally to keep the
// handler decoupled from the concrete type.
type Dispatcher interface {
	Dispatch(ctx context.Context, notificationType, recipient string, vars template.VariableBag, opts dispatch.Options) dispatch.Result
}

// HistoryRepo provides the history operations the handler needs: creating
// the pending record before dispatch and reading records back for status
// queries.
type HistoryRepo interface {
	Create(ctx context.Context, n *types.NotificationRecord) error
	GetByID(ctx context.Context, notificationID string) (*types.NotificationRecord, error)
}

// QueuePublisher enqueues a dispatch request for asynchronous delivery by
// the dispatch worker.
type QueuePublisher interface {
	Publish(ctx context.Context, req types.DispatchRequest, delay time.Duration) error
}

// NotificationHandler maps HTTP requests onto the dispatch pipeline.
type NotificationHandler struct {
	dispatcher Dispatcher
	history    HistoryRepo
	publisher  QueuePublisher
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler. The publisher may
// be nil; async requests are then rejected.
func NewNotificationHandler(
	dispatcher Dispatcher,
	history HistoryRepo,
	publisher QueuePublisher,
	validate *validator.Validate,
	logger *slog.Logger,
) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{
		dispatcher: dispatcher,
		history:    history,
		publisher:  publisher,
		validate:   validate,
		logger:     logger,
	}
}

// RegisterRoutes mounts the notification endpoints onto the mux.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleSend)
	r.Get("/{id}", h.HandleGet)
}

// sendNotificationRequest is the body for POST /v1/notifications.
type sendNotificationRequest struct {
	Type      string         `json:"type" validate:"required"`
	Recipient string         `json:"recipient" validate:"required,email"`
	UserID    string         `json:"user_id"`
	Variables map[string]any `json:"variables"`

	// RespectPreferences defaults to true when omitted.
	RespectPreferences *bool `json:"respect_preferences"`

	// Async enqueues the request for the dispatch worker instead of
	// sending inline. DelaySeconds only applies to async requests.
	Async        bool `json:"async"`
	DelaySeconds int  `json:"delay_seconds" validate:"min=0,max=900"`
}

// sendNotificationResponse is returned for both sync and async sends. For
// async requests only NotificationID and Queued are populated.
type sendNotificationResponse struct {
	NotificationID string           `json:"notification_id"`
	Queued         bool             `json:"queued,omitempty"`
	Result         *dispatch.Result `json:"result,omitempty"`
}

// HandleSend handles POST /v1/notifications.
//
// A pending history record is created first so that every accepted request
// is traceable, then the request is either dispatched inline or handed to
// the queue. Skipped and failed outcomes still return 200: the request was
// processed, and the outcome is in the result body.
func (h *NotificationHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, r, mapValidationError(err))
		return
	}
	if req.Async && h.publisher == nil {
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationBodyMalformed,
			"async dispatch is not enabled on this deployment",
			nil,
		))
		return
	}

	record := &types.NotificationRecord{
		RecipientUserID: req.UserID,
		RecipientEmail:  req.Recipient,
		TriggerType:     req.Type,
		Variables:       req.Variables,
	}
	if err := h.history.Create(r.Context(), record); err != nil {
		Error(w, r, err)
		return
	}

	ignorePrefs := req.RespectPreferences != nil && !*req.RespectPreferences

	if req.Async {
		msg := types.DispatchRequest{
			NotificationID:    record.ID,
			Type:              req.Type,
			Recipient:         req.Recipient,
			UserID:            req.UserID,
			Variables:         req.Variables,
			IgnorePreferences: ignorePrefs,
			TraceID:           types.GetRequestID(r.Context()),
		}
		delay := time.Duration(req.DelaySeconds) * time.Second
		if err := h.publisher.Publish(r.Context(), msg, delay); err != nil {
			Error(w, r, err)
			return
		}

		JSON(w, r, http.StatusAccepted, APIResponse{Data: sendNotificationResponse{
			NotificationID: record.ID,
			Queued:         true,
		}})
		return
	}

	result := h.dispatcher.Dispatch(
		r.Context(),
		req.Type,
		req.Recipient,
		template.BagFromJSON(req.Variables),
		dispatch.Options{
			UserID:            req.UserID,
			IgnorePreferences: ignorePrefs,
			NotificationID:    record.ID,
		},
	)

	JSON(w, r, http.StatusOK, APIResponse{Data: sendNotificationResponse{
		NotificationID: record.ID,
		Result:         &result,
	}})
}

// HandleGet handles GET /v1/notifications/{id}.
func (h *NotificationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"notification id is required",
			nil,
		))
		return
	}

	record, err := h.history.GetByID(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: record})
}

// mapValidationError translates validator.ValidationErrors into a client
// facing AppError with per-field details.
func mapValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeValidationBodyMalformed, "invalid request body", err)
	}

	details := make(map[string]any, len(verrs))
	code := types.ErrCodeValidationMissingField
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		details[field] = fe.Tag()
		if fe.Tag() == "email" {
			code = types.ErrCodeValidationInvalidEmail
		}
	}

	return types.NewAppError(code, "request validation failed", nil).WithDetails(details)
}
