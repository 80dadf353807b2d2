package backoff

import (
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	t.Parallel()

	const (
		base = time.Second
		max  = 10 * time.Second
	)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: -1, want: time.Second},
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 5, want: 10 * time.Second},
		{attempt: 50, want: 10 * time.Second},
	}

	for _, tt := range tests {
		got := Delay(base, max, tt.attempt)
		if got != tt.want {
			t.Errorf("Delay(%v, %v, %d) = %v, want %v", base, max, tt.attempt, got, tt.want)
		}
	}
}

func TestDelay_BaseAboveMax(t *testing.T) {
	t.Parallel()

	got := Delay(time.Minute, time.Second, 1)
	if got != time.Second {
		t.Errorf("Delay = %v, want cap %v", got, time.Second)
	}
}
