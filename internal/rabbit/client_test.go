package rabbit

import (
	"math"
	"testing"
)

func TestDelayMillis(t *testing.T) {
	tests := []struct {
		name         string
		delaySeconds int
		want         int64
	}{
		{name: "one minute", delaySeconds: 60, want: 60_000},
		{name: "largest exact delay", delaySeconds: math.MaxInt32 / 1000, want: int64(math.MaxInt32/1000) * 1000},
		{name: "sixty days clamps instead of wrapping", delaySeconds: 60 * 24 * 60 * 60, want: math.MaxInt32},
		{name: "just past the 32-bit line clamps", delaySeconds: math.MaxInt32/1000 + 1, want: math.MaxInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := delayMillis(tt.delaySeconds)
			if got != tt.want {
				t.Fatalf("delayMillis(%d) = %d, want %d", tt.delaySeconds, got, tt.want)
			}
			if got < 0 {
				t.Fatalf("delayMillis(%d) = %d, negative delays deliver immediately", tt.delaySeconds, got)
			}
		})
	}
}
