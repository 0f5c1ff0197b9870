// Package dispatch coordinates the delivery of one notification email:
// preference resolution, template selection, rendering, the transport call,
// and the history update.
package dispatch

import (
	"context"

	"mailroom/internal/preference"
	"mailroom/internal/template"
	"mailroom/internal/types"
)

// TemplateStore fetches the selected template for a notification type:
// active only, system templates preferred over custom ones, at most one
// result. A (nil, nil) return means no active template exists.
type TemplateStore interface {
	FetchTemplate(ctx context.Context, notificationType string) (*types.Template, error)
}

// PreferenceStore loads stored preference records. Either call may return
// (nil, nil) when no record exists at that scope.
type PreferenceStore interface {
	FetchUserPreference(ctx context.Context, userID string) (*types.PreferenceRecord, error)
	FetchOrgPreference(ctx context.Context) (*types.PreferenceRecord, error)
}

// MailTransport sends one rendered email and returns the provider message
// id on success.
type MailTransport interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// HistoryStore updates the delivery status of a pre-created notification
// history record.
type HistoryStore interface {
	UpdateStatus(ctx context.Context, notificationID string, status types.NotificationStatus, messageID, errorMessage string) error
}

// Options carries the per-call knobs for Dispatch. The zero value respects
// preferences and tracks no history record.
type Options struct {
	// UserID selects whose preferences to consult. Preference checks are
	// skipped entirely when empty (nothing to look up).
	UserID string

	// IgnorePreferences forces delivery past the preference check. Used by
	// operational resends and mandatory account notices.
	IgnorePreferences bool

	// NotificationID references a pending history record created by the
	// caller; when set, Dispatch moves it to sent or failed after the
	// transport call.
	NotificationID string
}

// ErrNoActiveTemplate is the Result.Error value reported when no active
// template exists for the notification type. This failure is terminal:
// retrying cannot succeed until a template is created.
const ErrNoActiveTemplate = "no active template for type"

// Result reports the outcome of one Dispatch call. Skipped results are not
// errors: the preference layer denied delivery and no send was attempted.
type Result struct {
	Success    bool             `json:"success"`
	Skipped    bool             `json:"skipped,omitempty"`
	SkipReason types.ReasonCode `json:"skip_reason,omitempty"`
	MessageID  string           `json:"message_id,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Orchestrator wires the renderer and resolver to their collaborators. One
// instance is constructed at startup and shared; Dispatch calls are
// independent and safe to run concurrently.
type Orchestrator struct {
	templates TemplateStore
	prefs     PreferenceStore
	transport MailTransport
	history   HistoryStore
	metrics   Metrics
	from      types.SenderIdentity
	clock     types.Clock
	logger    types.Logger
}

// Config holds the collaborators for NewOrchestrator. Templates, Prefs,
// Transport and Logger are required; History and Metrics may be nil, and
// Clock defaults to the real UTC clock.
type Config struct {
	Templates TemplateStore
	Prefs     PreferenceStore
	Transport MailTransport
	History   HistoryStore
	Metrics   Metrics
	From      types.SenderIdentity
	Clock     types.Clock
	Logger    types.Logger
}

// NewOrchestrator constructs an Orchestrator from its collaborators.
func NewOrchestrator(cfg Config) *Orchestrator {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Orchestrator{
		templates: cfg.Templates,
		prefs:     cfg.Prefs,
		transport: cfg.Transport,
		history:   cfg.History,
		metrics:   metrics,
		from:      cfg.From,
		clock:     clock,
		logger:    cfg.Logger,
	}
}

// Dispatch runs the delivery sequence for one notification.
//
// A preference denial returns a skipped Result before any template fetch,
// send attempt, or history write. A missing template is an error but also
// touches no history (no send was attempted). Transport errors are reported
// once, never retried here; retry policy belongs to the caller. The history
// update after the transport call is best-effort: its failure is logged and
// does not change the already-determined Result.
func (o *Orchestrator) Dispatch(ctx context.Context, notificationType, recipient string, vars template.VariableBag, opts Options) Result {
	log := o.logger.With(
		"type", notificationType,
		"user_id", opts.UserID,
		"notification_id", opts.NotificationID,
	)

	if !opts.IgnorePreferences && opts.UserID != "" {
		pref := o.loadPreference(ctx, opts.UserID, log)
		if d := preference.Resolve(notificationType, pref, o.clock.Now()); !d.Allow {
			log.Info("notification skipped by preference", "reason", string(d.Reason))
			o.metrics.RecordOutcome(ctx, OutcomeSkipped, string(d.Reason))
			return Result{Skipped: true, SkipReason: d.Reason}
		}
	}

	tmpl, err := o.templates.FetchTemplate(ctx, notificationType)
	if err != nil {
		log.Error("template fetch failed", "error", err.Error())
		tmpl = nil
	}
	if tmpl == nil {
		o.metrics.RecordOutcome(ctx, OutcomeFailed, "template_missing")
		return Result{Error: ErrNoActiveTemplate}
	}

	input := types.SendInput{
		To:          recipient,
		From:        o.from,
		Subject:     template.Render(tmpl.SubjectTemplate, vars),
		BodyHTML:    template.Render(tmpl.HTMLTemplate, vars),
		ReferenceID: opts.NotificationID,
	}
	if tmpl.TextTemplate != "" {
		input.BodyText = template.Render(tmpl.TextTemplate, vars)
	}

	start := o.clock.Now()
	msgID, sendErr := o.transport.Send(ctx, input)
	o.metrics.RecordSendLatency(ctx, o.clock.Now().Sub(start))

	if sendErr != nil {
		log.Error("mail transport failed", "error", sendErr.Error())
		o.recordHistory(ctx, opts.NotificationID, types.NotificationFailed, "", sendErr.Error(), log)
		o.metrics.RecordOutcome(ctx, OutcomeFailed, "transport_error")
		return Result{Error: sendErr.Error()}
	}

	log.Info("notification sent", "message_id", msgID)
	o.recordHistory(ctx, opts.NotificationID, types.NotificationSent, msgID, "", log)
	o.metrics.RecordOutcome(ctx, OutcomeSent, "")
	return Result{Success: true, MessageID: msgID}
}

// loadPreference applies the lookup precedence: user record first, then the
// org-wide fallback. Store read errors are logged and treated as "no record
// at that scope" so a flaky store can never block notifications.
func (o *Orchestrator) loadPreference(ctx context.Context, userID string, log types.Logger) *types.PreferenceRecord {
	pref, err := o.prefs.FetchUserPreference(ctx, userID)
	if err != nil {
		log.Warn("user preference lookup failed, falling back to org", "error", err.Error())
		pref = nil
	}
	if pref != nil {
		return pref
	}

	pref, err = o.prefs.FetchOrgPreference(ctx)
	if err != nil {
		log.Warn("org preference lookup failed, treating as absent", "error", err.Error())
		return nil
	}
	return pref
}

// recordHistory performs the best-effort status update. No-op when the
// caller supplied no notification id or no history store is configured.
func (o *Orchestrator) recordHistory(ctx context.Context, id string, status types.NotificationStatus, messageID, errMsg string, log types.Logger) {
	if id == "" || o.history == nil {
		return
	}
	if err := o.history.UpdateStatus(ctx, id, status, messageID, errMsg); err != nil {
		log.Error("history status update failed",
			"status", string(status),
			"error", err.Error(),
		)
	}
}
