package clock

import (
	"strings"
	"sync"
	"time"
)

// DateLayout is the layout of the device-local calendar date used as the
// identity of a day's usage record.
const DateLayout = "2006-01-02"

// Clock provides time information for usage accounting and limit evaluation.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// TestClock provides a settable time for testing.
type TestClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
}

// NewTestClock returns a TestClock fixed at t.
func NewTestClock(t time.Time) *TestClock {
	return &TestClock{CurrentTime: t}
}

// Now returns the test time.
func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CurrentTime
}

// Set moves the clock to t.
func (c *TestClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTime = t
}

// Advance moves the clock forward by d.
func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTime = c.CurrentTime.Add(d)
}

// DateKey returns the device-local calendar date of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// Today returns the device-local calendar date reported by c.
func Today(c Clock) string {
	return DateKey(c.Now())
}

// ParseWeekday parses a weekday name such as "monday" or "Mon".
func ParseWeekday(s string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, true
	case "monday", "mon":
		return time.Monday, true
	case "tuesday", "tue":
		return time.Tuesday, true
	case "wednesday", "wed":
		return time.Wednesday, true
	case "thursday", "thu":
		return time.Thursday, true
	case "friday", "fri":
		return time.Friday, true
	case "saturday", "sat":
		return time.Saturday, true
	}
	return time.Sunday, false
}
