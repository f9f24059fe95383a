package farmwatch

import (
	"testing"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in   string
		want Timeframe
	}{
		{"", TimeframeHourly},
		{"hourly", TimeframeHourly},
		{"daily", TimeframeDaily},
		{"monthly", TimeframeMonthly},
	}

	for _, tc := range tests {
		got, err := ParseTimeframe(tc.in)
		if err != nil {
			t.Errorf("ParseTimeframe(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTimeframe(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}

	if _, err := ParseTimeframe("yearly"); err == nil {
		t.Error("ParseTimeframe accepted an unknown timeframe")
	}
}

func TestTimeframeDefaults(t *testing.T) {
	tests := []struct {
		tf         Timeframe
		limit      int
		aggregated bool
	}{
		{TimeframeHourly, 15, false},
		{TimeframeDaily, 7, true},
		{TimeframeMonthly, 12, true},
	}

	for _, tc := range tests {
		window := timeframeWindows[tc.tf]
		if window.DefaultLimit != tc.limit {
			t.Errorf("%s default limit = %d, want %d", tc.tf, window.DefaultLimit, tc.limit)
		}
		if window.Aggregated != tc.aggregated {
			t.Errorf("%s aggregated = %v, want %v", tc.tf, window.Aggregated, tc.aggregated)
		}
	}
}
