package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"mailroom/internal/types"
)

// PreferenceRepository provides read access to the notification_preferences
// table. One org-scoped row (user_id NULL) always exists as the fallback;
// user-scoped rows are created lazily by the settings surface.
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a PreferenceRepository backed by the given
// database connection (pool or transaction).
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

const preferenceColumns = `
	id, scope, COALESCE(user_id, ''), email_enabled, per_type_overrides,
	track_completions, course_completions, achievements, lesson_reminders,
	task_due_dates, system_alerts,
	quiet_hours_enabled, COALESCE(quiet_hours_start, ''), COALESCE(quiet_hours_end, ''),
	created_at, updated_at`

// FetchUserPreference returns the user-scoped preference record, or
// (nil, nil) when the user has never saved preferences.
func (r *PreferenceRepository) FetchUserPreference(ctx context.Context, userID string) (*types.PreferenceRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+preferenceColumns+`
		 FROM notification_preferences
		 WHERE scope = 'user' AND user_id = $1`,
		userID,
	)
	return scanPreference(row)
}

// FetchOrgPreference returns the single org-wide fallback record, or
// (nil, nil) when it is missing (a fresh environment before seeding).
func (r *PreferenceRepository) FetchOrgPreference(ctx context.Context) (*types.PreferenceRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT ` + preferenceColumns + `
		 FROM notification_preferences
		 WHERE scope = 'org' AND user_id IS NULL`,
	)
	return scanPreference(row)
}

// scanPreference maps one row to a PreferenceRecord. The per_type_overrides
// JSONB column may be NULL for records written before per-type configuration
// existed; that NULL is what switches the resolver to the legacy flags.
func scanPreference(row pgx.Row) (*types.PreferenceRecord, error) {
	var (
		p            types.PreferenceRecord
		overridesRaw []byte
		quietEnabled bool
		quietStart   string
		quietEnd     string
	)

	err := row.Scan(
		&p.ID,
		&p.Scope,
		&p.UserID,
		&p.EmailEnabled,
		&overridesRaw,
		&p.TrackCompletions,
		&p.CourseCompletions,
		&p.Achievements,
		&p.LessonReminders,
		&p.TaskDueDates,
		&p.SystemAlerts,
		&quietEnabled,
		&quietStart,
		&quietEnd,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch preference", err)
	}

	if len(overridesRaw) > 0 {
		overrides := make(map[string]types.TypeOverride)
		if err := json.Unmarshal(overridesRaw, &overrides); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "malformed per_type_overrides", err)
		}
		p.PerTypeOverrides = overrides
	}

	if quietEnabled || quietStart != "" || quietEnd != "" {
		p.QuietHours = &types.QuietHoursConfig{
			Enabled:   quietEnabled,
			StartTime: quietStart,
			EndTime:   quietEnd,
		}
	}

	return &p, nil
}
