package gate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/ktime/internal/policy"
)

// Decision is the gate's verdict for the current moment
type Decision string

const (
	Allowed     Decision = "ALLOWED"
	ReminderDue Decision = "REMINDER_DUE"
	Blocked     Decision = "BLOCKED"
)

// ParseDecision parses a decision name, case-insensitively.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case Allowed, ReminderDue, Blocked:
		return d, nil
	default:
		return "", fmt.Errorf("invalid decision: %s (must be ALLOWED, REMINDER_DUE, or BLOCKED)", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler to normalize decision to uppercase.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDecision(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON implements json.Marshaler to ensure uppercase output.
func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(d))
}

// Input is the snapshot a Decider works from
type Input struct {
	Settings     policy.Settings
	Weekday      time.Weekday
	UsageMinutes int
}
