package types

// PreferenceScope identifies the level a preference record applies to.
// A user-scoped record takes precedence over the org-wide fallback row.
type PreferenceScope string

const (
	ScopeUser PreferenceScope = "user"
	ScopeOrg  PreferenceScope = "org"
)

// NotificationStatus represents the lifecycle state of a notification
// history record. These values MUST match the CHECK constraint on the
// notifications table.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// ReasonCode explains why a preference decision denied delivery.
type ReasonCode string

const (
	ReasonEmailDisabled            ReasonCode = "email_disabled"
	ReasonTypeEmailDisabled        ReasonCode = "type_email_disabled"
	ReasonTrackCompletionsDisabled ReasonCode = "track_completions_disabled"
	ReasonAchievementsDisabled     ReasonCode = "achievements_disabled"
	ReasonLessonRemindersDisabled  ReasonCode = "lesson_reminders_disabled"
	ReasonTaskDueDatesDisabled     ReasonCode = "task_due_dates_disabled"
	ReasonSystemAlertsDisabled     ReasonCode = "system_alerts_disabled"
	ReasonQuietHours               ReasonCode = "quiet_hours"
)
