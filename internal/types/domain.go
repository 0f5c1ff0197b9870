package types

import "time"

// Template is a named pair of subject/HTML/text strings containing
// placeholder syntax, selected by notification type. For a given type at
// most one template is selected for rendering: among active templates,
// system templates win over custom ones. Templates are created and edited
// by an administrative surface and are read-only to this service.
type Template struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	SubjectTemplate string    `json:"subject_template"`
	HTMLTemplate    string    `json:"html_template"`
	TextTemplate    string    `json:"text_template,omitempty"` // empty means no plain-text part
	IsSystem        bool      `json:"is_system"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TypeOverride is a per-notification-type channel override. When an override
// exists for a type it is authoritative for that type's email channel and
// the legacy category flags are not consulted.
type TypeOverride struct {
	Email bool `json:"email"`
}

// QuietHoursConfig defines a daily window during which email delivery is
// suppressed. Times are "HH:MM" wall-clock strings; a window whose start is
// later than its end crosses midnight.
type QuietHoursConfig struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// PreferenceRecord holds the stored notification settings for one scope.
// Exactly one org-scoped row (UserID empty) exists as the fallback; at most
// one user-scoped row exists per user, created lazily by the settings UI.
//
// The category flags are the legacy opt-out mechanism and use pointers so
// that "never configured" is distinct from an explicit false: only an
// explicit false blocks delivery.
type PreferenceRecord struct {
	ID     string          `json:"id"`
	Scope  PreferenceScope `json:"scope"`
	UserID string          `json:"user_id,omitempty"`

	// EmailEnabled is the master switch for the email channel. The store
	// layer defaults it to true; an explicit false blocks everything.
	EmailEnabled bool `json:"email_enabled"`

	// PerTypeOverrides maps normalized notification type names to channel
	// overrides. Nil when the record predates per-type configuration.
	PerTypeOverrides map[string]TypeOverride `json:"per_type_overrides,omitempty"`

	// Legacy category flags, matched against the notification type by
	// substring and prefix rules. CourseCompletions is the pre-rename
	// alias of TrackCompletions and is consulted only when the latter is
	// unset.
	TrackCompletions  *bool `json:"track_completions,omitempty"`
	CourseCompletions *bool `json:"course_completions,omitempty"`
	Achievements      *bool `json:"achievements,omitempty"`
	LessonReminders   *bool `json:"lesson_reminders,omitempty"`
	TaskDueDates      *bool `json:"task_due_dates,omitempty"`
	SystemAlerts      *bool `json:"system_alerts,omitempty"`

	QuietHours *QuietHoursConfig `json:"quiet_hours,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationRecord is one row of delivery history. It is created in the
// pending state before a send attempt and moved to sent or failed once the
// transport call returns. Records are never deleted by this service.
type NotificationRecord struct {
	ID              string             `json:"id"`
	RecipientUserID string             `json:"recipient_user_id"`
	RecipientEmail  string             `json:"recipient_email"`
	TriggerType     string             `json:"trigger_type"`
	Status          NotificationStatus `json:"status"`

	// Variables is the raw JSON form of the template variable bag captured
	// at dispatch time, kept for audit and redelivery tooling.
	Variables map[string]any `json:"variables"`

	SentAt       *time.Time `json:"sent_at,omitempty"`
	MessageID    string     `json:"message_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SenderIdentity identifies the From address of an outbound email.
type SenderIdentity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SendInput is the rendered content handed to a mail transport.
type SendInput struct {
	To          string         `json:"to"`
	From        SenderIdentity `json:"from"`
	Subject     string         `json:"subject"`
	BodyHTML    string         `json:"body_html"`
	BodyText    string         `json:"body_text,omitempty"`
	ReferenceID string         `json:"reference_id,omitempty"` // correlates with the history record
}
