package types

// DispatchRequest is the SQS payload consumed by the dispatch worker. It
// carries everything needed to resolve preferences, render the template and
// send one email. JSON tags use snake_case to match the publishing services.
type DispatchRequest struct {
	// NotificationID references a pre-created pending history record.
	// Empty when the producer did not ask for history tracking.
	NotificationID string `json:"notification_id,omitempty"`

	Type      string `json:"type"`
	Recipient string `json:"recipient"`
	UserID    string `json:"user_id,omitempty"`

	// Variables is the raw JSON variable bag for template rendering.
	Variables map[string]any `json:"variables,omitempty"`

	// IgnorePreferences forces delivery past the preference check. Used by
	// operational resends and mandatory account notices.
	IgnorePreferences bool `json:"ignore_preferences,omitempty"`

	// Observability
	TraceID string `json:"trace_id,omitempty"`
}
