package preference

import (
	"strings"

	"mailroom/internal/types"
)

// legacyRule maps a notification-type pattern to the category flag that can
// block it. Matching is substring/prefix based against the normalized type
// string, preserved exactly for compatibility with records written before
// per-type overrides existed.
type legacyRule struct {
	matches func(string) bool
	flag    func(*types.PreferenceRecord) *bool
	reason  types.ReasonCode
}

// legacyRules is evaluated in order; the first matching rule whose flag is
// explicitly false wins. A type can match several rules (for example
// "system_task_digest"), so every rule is checked until one blocks.
var legacyRules = []legacyRule{
	{
		matches: func(t string) bool {
			return strings.HasPrefix(t, "track_") || strings.Contains(t, "course")
		},
		flag: func(p *types.PreferenceRecord) *bool {
			if p.TrackCompletions != nil {
				return p.TrackCompletions
			}
			return p.CourseCompletions
		},
		reason: types.ReasonTrackCompletionsDisabled,
	},
	{
		matches: func(t string) bool {
			return strings.HasPrefix(t, "quiz_") || strings.Contains(t, "achievement")
		},
		flag:   func(p *types.PreferenceRecord) *bool { return p.Achievements },
		reason: types.ReasonAchievementsDisabled,
	},
	{
		matches: func(t string) bool {
			return strings.Contains(t, "lesson") && strings.Contains(t, "reminder")
		},
		flag:   func(p *types.PreferenceRecord) *bool { return p.LessonReminders },
		reason: types.ReasonLessonRemindersDisabled,
	},
	{
		matches: func(t string) bool { return strings.Contains(t, "task") },
		flag:    func(p *types.PreferenceRecord) *bool { return p.TaskDueDates },
		reason:  types.ReasonTaskDueDatesDisabled,
	},
	{
		matches: func(t string) bool { return strings.Contains(t, "system") },
		flag:    func(p *types.PreferenceRecord) *bool { return p.SystemAlerts },
		reason:  types.ReasonSystemAlertsDisabled,
	},
}

// checkLegacyFlags consults the category flags for the normalized type.
// Only an explicit false blocks; true, nil, or a non-matching type all
// allow.
func checkLegacyFlags(pref *types.PreferenceRecord, normalized string) (types.ReasonCode, bool) {
	for _, rule := range legacyRules {
		if !rule.matches(normalized) {
			continue
		}
		if f := rule.flag(pref); f != nil && !*f {
			return rule.reason, true
		}
	}
	return "", false
}
