package usage

import (
	"time"
)

// KeyPrefix prefixes the store key of every daily usage record.
const KeyPrefix = "app_usage_data_"

// Key returns the store key holding the record for date (YYYY-MM-DD).
func Key(date string) string {
	return KeyPrefix + date
}

// Session is one contiguous foreground period
type Session struct {
	ID    string     `json:"id,omitempty"`
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s Session) Open() bool {
	return s.End == nil
}

// DailyUsageRecord aggregates one calendar day of usage
type DailyUsageRecord struct {
	Date         string    `json:"date"`
	TotalMinutes int       `json:"total_minutes"`
	Sessions     []Session `json:"sessions"`
}

// lastOpen returns the most recent session if it is still open.
func (r *DailyUsageRecord) lastOpen() *Session {
	if len(r.Sessions) == 0 {
		return nil
	}
	last := &r.Sessions[len(r.Sessions)-1]
	if !last.Open() {
		return nil
	}
	return last
}

// wholeMinutes truncates elapsed time to whole minutes. Time running
// backwards counts as zero.
func wholeMinutes(elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}
