package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailroom/internal/template"
	"mailroom/internal/types"
)

// =============================================================================
// Mocks
// =============================================================================

type mockLogger struct{}

func (mockLogger) Info(msg string, args ...any)  {}
func (mockLogger) Error(msg string, args ...any) {}
func (mockLogger) Warn(msg string, args ...any)  {}
func (m mockLogger) With(args ...any) types.Logger { return m }

type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

type mockTemplateStore struct {
	fetchFn func(ctx context.Context, typ string) (*types.Template, error)
	calls   int
}

func (m *mockTemplateStore) FetchTemplate(ctx context.Context, typ string) (*types.Template, error) {
	m.calls++
	if m.fetchFn != nil {
		return m.fetchFn(ctx, typ)
	}
	return nil, nil
}

type mockPrefStore struct {
	userFn    func(ctx context.Context, userID string) (*types.PreferenceRecord, error)
	orgFn     func(ctx context.Context) (*types.PreferenceRecord, error)
	userCalls int
	orgCalls  int
}

func (m *mockPrefStore) FetchUserPreference(ctx context.Context, userID string) (*types.PreferenceRecord, error) {
	m.userCalls++
	if m.userFn != nil {
		return m.userFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockPrefStore) FetchOrgPreference(ctx context.Context) (*types.PreferenceRecord, error) {
	m.orgCalls++
	if m.orgFn != nil {
		return m.orgFn(ctx)
	}
	return nil, nil
}

type mockTransport struct {
	sendFn func(ctx context.Context, input types.SendInput) (string, error)
	inputs []types.SendInput
}

func (m *mockTransport) Send(ctx context.Context, input types.SendInput) (string, error) {
	m.inputs = append(m.inputs, input)
	if m.sendFn != nil {
		return m.sendFn(ctx, input)
	}
	return "msg-1", nil
}

type historyUpdate struct {
	id        string
	status    types.NotificationStatus
	messageID string
	errMsg    string
}

type mockHistory struct {
	updateErr error
	updates   []historyUpdate
}

func (m *mockHistory) UpdateStatus(ctx context.Context, id string, status types.NotificationStatus, messageID, errMsg string) error {
	m.updates = append(m.updates, historyUpdate{id, status, messageID, errMsg})
	return m.updateErr
}

// =============================================================================
// Fixtures
// =============================================================================

func welcomeTemplate() *types.Template {
	return &types.Template{
		ID:              "t1",
		Type:            "welcome",
		SubjectTemplate: "Hi {{name}}",
		HTMLTemplate:    "{{#if vip}}VIP {{/if}}Welcome {{name}}",
		TextTemplate:    "Welcome {{name}}",
		IsSystem:        true,
		IsActive:        true,
	}
}

type fixture struct {
	templates *mockTemplateStore
	prefs     *mockPrefStore
	transport *mockTransport
	history   *mockHistory
	orch      *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		templates: &mockTemplateStore{
			fetchFn: func(ctx context.Context, typ string) (*types.Template, error) {
				return welcomeTemplate(), nil
			},
		},
		prefs:     &mockPrefStore{},
		transport: &mockTransport{},
		history:   &mockHistory{},
	}
	f.orch = NewOrchestrator(Config{
		Templates: f.templates,
		Prefs:     f.prefs,
		Transport: f.transport,
		History:   f.history,
		From:      types.SenderIdentity{Email: "noreply@example.com", Name: "Example"},
		Clock:     &mockClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		Logger:    mockLogger{},
	})
	return f
}

// =============================================================================
// Tests
// =============================================================================

func TestDispatch_Success(t *testing.T) {
	f := newFixture()
	vars := template.VariableBag{
		"name": template.String("Amy"),
		"vip":  template.Bool(true),
	}

	res := f.orch.Dispatch(context.Background(), "welcome", "amy@example.com", vars, Options{
		UserID:         "u1",
		NotificationID: "n1",
	})

	if !res.Success || res.MessageID != "msg-1" {
		t.Fatalf("expected success with msg-1, got %+v", res)
	}

	if len(f.transport.inputs) != 1 {
		t.Fatalf("expected 1 send, got %d", len(f.transport.inputs))
	}
	sent := f.transport.inputs[0]
	if sent.To != "amy@example.com" {
		t.Errorf("to = %q", sent.To)
	}
	if sent.Subject != "Hi Amy" {
		t.Errorf("subject = %q", sent.Subject)
	}
	if sent.BodyHTML != "VIP Welcome Amy" {
		t.Errorf("html = %q", sent.BodyHTML)
	}
	if sent.BodyText != "Welcome Amy" {
		t.Errorf("text = %q", sent.BodyText)
	}
	if sent.ReferenceID != "n1" {
		t.Errorf("reference id = %q", sent.ReferenceID)
	}

	if len(f.history.updates) != 1 {
		t.Fatalf("expected 1 history update, got %d", len(f.history.updates))
	}
	up := f.history.updates[0]
	if up.id != "n1" || up.status != types.NotificationSent || up.messageID != "msg-1" {
		t.Errorf("unexpected history update %+v", up)
	}
}

func TestDispatch_PreferenceDenySkipsEverything(t *testing.T) {
	f := newFixture()
	f.prefs.userFn = func(ctx context.Context, userID string) (*types.PreferenceRecord, error) {
		return &types.PreferenceRecord{Scope: types.ScopeUser, UserID: userID, EmailEnabled: false}, nil
	}

	res := f.orch.Dispatch(context.Background(), "system_alert", "a@b.com", template.VariableBag{}, Options{
		UserID:         "u1",
		NotificationID: "n1",
	})

	if res.Success || !res.Skipped || res.SkipReason != types.ReasonEmailDisabled {
		t.Fatalf("expected skip with email_disabled, got %+v", res)
	}
	if f.templates.calls != 0 {
		t.Errorf("template store must not be consulted on skip, got %d calls", f.templates.calls)
	}
	if len(f.transport.inputs) != 0 {
		t.Errorf("no send may happen on skip")
	}
	if len(f.history.updates) != 0 {
		t.Errorf("no history write may happen on skip")
	}
}

func TestDispatch_NoUserIDSkipsPreferenceLookup(t *testing.T) {
	f := newFixture()
	f.prefs.orgFn = func(ctx context.Context) (*types.PreferenceRecord, error) {
		return &types.PreferenceRecord{Scope: types.ScopeOrg, EmailEnabled: false}, nil
	}

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{})

	if !res.Success {
		t.Fatalf("expected success without user id, got %+v", res)
	}
	if f.prefs.userCalls != 0 || f.prefs.orgCalls != 0 {
		t.Errorf("preference store must not be consulted without a user id")
	}
}

func TestDispatch_IgnorePreferencesBypassesDeny(t *testing.T) {
	f := newFixture()
	f.prefs.userFn = func(ctx context.Context, userID string) (*types.PreferenceRecord, error) {
		return &types.PreferenceRecord{Scope: types.ScopeUser, UserID: userID, EmailEnabled: false}, nil
	}

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{
		UserID:            "u1",
		IgnorePreferences: true,
	})

	if !res.Success {
		t.Fatalf("expected send despite deny preference, got %+v", res)
	}
	if f.prefs.userCalls != 0 {
		t.Errorf("preference store must not be consulted when preferences are ignored")
	}
}

func TestDispatch_UserRecordTakesPrecedenceOverOrg(t *testing.T) {
	f := newFixture()
	f.prefs.userFn = func(ctx context.Context, userID string) (*types.PreferenceRecord, error) {
		return &types.PreferenceRecord{Scope: types.ScopeUser, UserID: userID, EmailEnabled: true}, nil
	}
	f.prefs.orgFn = func(ctx context.Context) (*types.PreferenceRecord, error) {
		return &types.PreferenceRecord{Scope: types.ScopeOrg, EmailEnabled: false}, nil
	}

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{UserID: "u1"})

	if !res.Success {
		t.Fatalf("user record should win over org deny, got %+v", res)
	}
	if f.prefs.orgCalls != 0 {
		t.Errorf("org record must not be fetched when a user record exists")
	}
}

func TestDispatch_UserStoreErrorFallsBackToOrg(t *testing.T) {
	f := newFixture()
	f.prefs.userFn = func(ctx context.Context, userID string) (*types.PreferenceRecord, error) {
		return nil, errors.New("connection reset")
	}
	f.prefs.orgFn = func(ctx context.Context) (*types.PreferenceRecord, error) {
		return &types.PreferenceRecord{Scope: types.ScopeOrg, EmailEnabled: false}, nil
	}

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{UserID: "u1"})

	if !res.Skipped || res.SkipReason != types.ReasonEmailDisabled {
		t.Fatalf("expected org fallback to deny, got %+v", res)
	}
}

func TestDispatch_AllPreferenceReadsFailingFailsOpen(t *testing.T) {
	f := newFixture()
	f.prefs.userFn = func(ctx context.Context, userID string) (*types.PreferenceRecord, error) {
		return nil, errors.New("down")
	}
	f.prefs.orgFn = func(ctx context.Context) (*types.PreferenceRecord, error) {
		return nil, errors.New("down")
	}

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{UserID: "u1"})

	if !res.Success {
		t.Fatalf("preference store outage must not block delivery, got %+v", res)
	}
}

func TestDispatch_NoTemplateFound(t *testing.T) {
	f := newFixture()
	f.templates.fetchFn = func(ctx context.Context, typ string) (*types.Template, error) {
		return nil, nil
	}

	res := f.orch.Dispatch(context.Background(), "unknown_type", "a@b.com", template.VariableBag{}, Options{
		UserID:         "u1",
		NotificationID: "n1",
	})

	if res.Success || res.Skipped || res.Error != "no active template for type" {
		t.Fatalf("expected template-not-found error, got %+v", res)
	}
	if len(f.transport.inputs) != 0 {
		t.Errorf("no send may happen without a template")
	}
	if len(f.history.updates) != 0 {
		t.Errorf("no history write may happen without a send attempt")
	}
}

func TestDispatch_TemplateStoreErrorTreatedAsNotFound(t *testing.T) {
	f := newFixture()
	f.templates.fetchFn = func(ctx context.Context, typ string) (*types.Template, error) {
		return nil, errors.New("query timeout")
	}

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{UserID: "u1"})

	if res.Error != "no active template for type" {
		t.Fatalf("store error should surface as not-found, got %+v", res)
	}
}

func TestDispatch_TransportFailureMarksHistoryFailed(t *testing.T) {
	f := newFixture()
	f.transport.sendFn = func(ctx context.Context, input types.SendInput) (string, error) {
		return "", errors.New("mailbox unavailable")
	}

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{
		UserID:         "u1",
		NotificationID: "n1",
	})

	if res.Success || res.Error != "mailbox unavailable" {
		t.Fatalf("expected transport failure, got %+v", res)
	}
	if len(f.history.updates) != 1 {
		t.Fatalf("expected 1 history update, got %d", len(f.history.updates))
	}
	up := f.history.updates[0]
	if up.status != types.NotificationFailed || up.errMsg != "mailbox unavailable" {
		t.Errorf("unexpected history update %+v", up)
	}
}

func TestDispatch_HistoryUpdateFailureDoesNotChangeResult(t *testing.T) {
	f := newFixture()
	f.history.updateErr = errors.New("history table locked")

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{
		UserID:         "u1",
		NotificationID: "n1",
	})

	if !res.Success || res.MessageID != "msg-1" {
		t.Fatalf("history failure must not change the dispatch result, got %+v", res)
	}
}

func TestDispatch_NoNotificationIDSkipsHistory(t *testing.T) {
	f := newFixture()

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{UserID: "u1"})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(f.history.updates) != 0 {
		t.Errorf("no history update expected without a notification id")
	}
}

func TestDispatch_TemplateWithoutTextPart(t *testing.T) {
	f := newFixture()
	f.templates.fetchFn = func(ctx context.Context, typ string) (*types.Template, error) {
		tmpl := welcomeTemplate()
		tmpl.TextTemplate = ""
		return tmpl, nil
	}

	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{UserID: "u1"})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if f.transport.inputs[0].BodyText != "" {
		t.Errorf("text body should be empty, got %q", f.transport.inputs[0].BodyText)
	}
}

func TestDispatch_QuietHoursSkip(t *testing.T) {
	f := newFixture()
	f.prefs.userFn = func(ctx context.Context, userID string) (*types.PreferenceRecord, error) {
		return &types.PreferenceRecord{
			Scope:        types.ScopeUser,
			UserID:       userID,
			EmailEnabled: true,
			QuietHours:   &types.QuietHoursConfig{Enabled: true, StartTime: "11:00", EndTime: "13:00"},
		}, nil
	}

	// The fixture clock reads 12:00 UTC, inside the window.
	res := f.orch.Dispatch(context.Background(), "welcome", "a@b.com", template.VariableBag{}, Options{UserID: "u1"})

	if !res.Skipped || res.SkipReason != types.ReasonQuietHours {
		t.Fatalf("expected quiet-hours skip, got %+v", res)
	}
}
