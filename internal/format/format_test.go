package format

import "testing"

func TestMinutes(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0 minutes"},
		{1, "1 minute"},
		{45, "45 minutes"},
		{59, "59 minutes"},
		{60, "1 hour"},
		{61, "1h 1m"},
		{90, "1h 30m"},
		{120, "2 hours"},
		{135, "2h 15m"},
		{-5, "0 minutes"},
	}

	for _, tt := range tests {
		if got := Minutes(tt.in); got != tt.want {
			t.Errorf("Minutes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
