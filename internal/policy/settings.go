package policy

import (
	"time"
)

// SettingsKey is the store key holding the persisted limit settings.
const SettingsKey = "app_time_limit"

// DefaultCustomDayMinutes applies to a weekday missing from CustomDailyLimits.
const DefaultCustomDayMinutes = 60

// Settings is the user's screen-time configuration
type Settings struct {
	Enabled           bool           `json:"enabled"`
	LimitMinutes      int            `json:"limit_minutes"`
	ReminderMinutes   int            `json:"reminder_minutes"`
	IsCustomDays      bool           `json:"is_custom_days"`
	CustomDailyLimits map[string]int `json:"custom_daily_limits"` // "Monday".."Sunday"
	Passcode          string         `json:"passcode,omitempty"`
}

// DefaultSettings returns the settings used when nothing is persisted.
func DefaultSettings() Settings {
	return Settings{
		Enabled:           false,
		LimitMinutes:      60,
		ReminderMinutes:   10,
		IsCustomDays:      false,
		CustomDailyLimits: map[string]int{},
	}
}

// HasPasscode reports whether an unlock passcode is configured.
func (s Settings) HasPasscode() bool {
	return s.Passcode != ""
}

// EffectiveLimit returns the daily budget in minutes for day.
func (s Settings) EffectiveLimit(day time.Weekday) int {
	if !s.IsCustomDays {
		return s.LimitMinutes
	}
	if minutes, ok := s.CustomDailyLimits[day.String()]; ok {
		return minutes
	}
	for name, minutes := range s.CustomDailyLimits {
		if wd, ok := parseDay(name); ok && wd == day {
			return minutes
		}
	}
	return DefaultCustomDayMinutes
}

// LimitExceeded reports whether usage has reached the budget for day.
func (s Settings) LimitExceeded(day time.Weekday, usage int) bool {
	return s.Enabled && usage >= s.EffectiveLimit(day)
}

// ReminderDue reports whether usage sits inside the reminder window: some
// budget remains but no more than ReminderMinutes.
func (s Settings) ReminderDue(day time.Weekday, usage int) bool {
	if !s.Enabled {
		return false
	}
	remaining := s.EffectiveLimit(day) - usage
	return remaining > 0 && remaining <= s.ReminderMinutes
}

// Remaining returns the minutes left for day, or -1 when the limiter is off.
func (s Settings) Remaining(day time.Weekday, usage int) int {
	if !s.Enabled {
		return -1
	}
	return max(0, s.EffectiveLimit(day)-usage)
}

// Normalized returns a copy whose CustomDailyLimits keys are canonical
// weekday names ("Monday".."Sunday"). Unknown names are kept as they are.
func (s Settings) Normalized() Settings {
	limits := make(map[string]int, len(s.CustomDailyLimits))
	for name, minutes := range s.CustomDailyLimits {
		limits[canonicalDay(name)] = minutes
	}
	s.CustomDailyLimits = limits
	return s
}

// clone returns a copy that shares no map with s.
func (s Settings) clone() Settings {
	limits := make(map[string]int, len(s.CustomDailyLimits))
	for k, v := range s.CustomDailyLimits {
		limits[k] = v
	}
	s.CustomDailyLimits = limits
	return s
}
