// Package format renders usage durations for people.
package format

import "fmt"

// Minutes renders a minute count the way the usage screens show it:
// "1 minute", "45 minutes", "2 hours", or "1h 30m" when both hours and
// minutes are non-zero. Negative values render as zero.
func Minutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}

	if minutes < 60 {
		return plural(minutes, "minute")
	}

	hours, rest := minutes/60, minutes%60
	if rest == 0 {
		return plural(hours, "hour")
	}
	return fmt.Sprintf("%dh %dm", hours, rest)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
