package gate

import (
	"context"
)

// Decider turns a settings and usage snapshot into a Decision.
type Decider interface {
	Decide(ctx context.Context, in Input) (Decision, error)
}

// BuiltinDecider applies the limit rules directly:
// disabled, then exceeded, then reminder window.
type BuiltinDecider struct{}

// Decide implements Decider.
func (BuiltinDecider) Decide(_ context.Context, in Input) (Decision, error) {
	s := in.Settings
	switch {
	case !s.Enabled:
		return Allowed, nil
	case s.LimitExceeded(in.Weekday, in.UsageMinutes):
		return Blocked, nil
	case s.ReminderDue(in.Weekday, in.UsageMinutes):
		return ReminderDue, nil
	default:
		return Allowed, nil
	}
}
