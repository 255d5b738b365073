package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/ktime/internal/clock"
)

var (
	ErrInvalidLimit     = errors.New("limit_minutes must be greater than zero")
	ErrInvalidReminder  = errors.New("reminder_minutes must be at least zero and less than limit_minutes")
	ErrInvalidPasscode  = errors.New("passcode must be exactly 4 digits")
	ErrPasscodeRequired = errors.New("a passcode must be set before the limiter can be enabled")
)

// Validate checks the settings that would result from a change. Pass it to
// UpdateValidated so the check and the write see the same stored settings.
func Validate(next Settings) error {
	if next.LimitMinutes <= 0 {
		return ErrInvalidLimit
	}
	if next.ReminderMinutes < 0 || next.ReminderMinutes >= next.LimitMinutes {
		return ErrInvalidReminder
	}
	if next.Passcode != "" && !isPasscode(next.Passcode) {
		return ErrInvalidPasscode
	}
	// Also covers clearing the passcode while the limiter stays on
	if next.Enabled && !next.HasPasscode() {
		return ErrPasscodeRequired
	}

	for name, minutes := range next.CustomDailyLimits {
		if _, ok := parseDay(name); !ok {
			return fmt.Errorf("custom_daily_limits: unknown weekday %q", name)
		}
		if minutes <= 0 {
			return fmt.Errorf("custom_daily_limits: %s must be greater than zero", name)
		}
	}

	return nil
}

func isPasscode(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseDay(name string) (time.Weekday, bool) {
	return clock.ParseWeekday(name)
}

// canonicalDay maps "mon", "MONDAY" and friends to "Monday". Unknown names
// are kept so Validate can report them.
func canonicalDay(name string) string {
	if wd, ok := parseDay(name); ok {
		return wd.String()
	}
	return name
}
