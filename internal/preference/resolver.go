// Package preference decides whether a notification email may be sent to a
// recipient right now, given the stored preference record for that
// recipient (or the org-wide fallback) and the current time.
//
// Resolve is pure and deterministic given now. Missing configuration always
// fails open: a nil record, an unset flag, or a malformed quiet-hours time
// must never silently block notifications.
package preference

import (
	"fmt"
	"strings"
	"time"

	"mailroom/internal/types"
)

// Decision is the outcome of a preference resolution. Reason is set only
// when Allow is false.
type Decision struct {
	Allow  bool
	Reason types.ReasonCode
}

var allow = Decision{Allow: true}

func deny(reason types.ReasonCode) Decision {
	return Decision{Allow: false, Reason: reason}
}

// Resolve evaluates the decision sequence for one notification type. The
// first failing check wins, in this order: the master email switch, the
// per-type override map, the legacy category flags (only when no override
// map exists), and finally quiet hours.
//
// The quiet-hours window is evaluated against the wall clock of the
// supplied now; callers pick the evaluation timezone by converting now
// before the call.
func Resolve(notificationType string, pref *types.PreferenceRecord, now time.Time) Decision {
	if pref == nil {
		return allow
	}

	if !pref.EmailEnabled {
		return deny(types.ReasonEmailDisabled)
	}

	normalized := strings.ToLower(notificationType)

	if pref.PerTypeOverrides != nil {
		// An override map is authoritative: the legacy flags are skipped
		// even for types the map does not mention.
		if ov, ok := lookupOverride(pref.PerTypeOverrides, normalized); ok && !ov.Email {
			return deny(types.ReasonTypeEmailDisabled)
		}
	} else if reason, blocked := checkLegacyFlags(pref, normalized); blocked {
		return deny(reason)
	}

	if inQuietHours(pref.QuietHours, now) {
		return deny(types.ReasonQuietHours)
	}

	return allow
}

// lookupOverride fetches a per-type override by the normalized key, then by
// the key lower-cased once more to catch case variants written by older
// settings clients.
func lookupOverride(overrides map[string]types.TypeOverride, key string) (types.TypeOverride, bool) {
	if ov, ok := overrides[key]; ok {
		return ov, true
	}
	if ov, ok := overrides[strings.ToLower(key)]; ok {
		return ov, true
	}
	return types.TypeOverride{}, false
}

// inQuietHours reports whether now falls inside the configured daily quiet
// window. A window whose start is later than its end crosses midnight. Any
// parse failure disables the restriction for this call.
func inQuietHours(qh *types.QuietHoursConfig, now time.Time) bool {
	if qh == nil || !qh.Enabled {
		return false
	}

	start, err := parseTimeOfDay(qh.StartTime)
	if err != nil {
		return false
	}
	end, err := parseTimeOfDay(qh.EndTime)
	if err != nil {
		return false
	}

	current := now.Hour()*60 + now.Minute()

	if start <= end {
		// Same-day window, half-open (e.g. 09:00-17:00).
		return current >= start && current < end
	}
	// Overnight window (e.g. 22:00-08:00).
	return current >= start || current < end
}

// parseTimeOfDay parses an "HH:MM" string into minutes since midnight.
// Trailing seconds ("22:00:30") are ignored.
func parseTimeOfDay(s string) (int, error) {
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return 0, fmt.Errorf("expected HH:MM format, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return h*60 + m, nil
}
