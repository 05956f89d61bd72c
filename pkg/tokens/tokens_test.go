package tokens

import (
	"strings"
	"testing"
)

func TestEstimate_Empty(t *testing.T) {
	if got := Estimate(""); got != 0 {
		t.Fatalf("expected 0 for empty input, got %d", got)
	}
}

func TestEstimate_KnownValues(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"a", 1},
		{"ab", 1},
		{"abc", 2},
		{"abcd", 2},
		{"abcde", 2},
		{"abcdef", 3},
		{"退屈だから", 2},
	}
	for _, tc := range cases {
		if got := Estimate(tc.in); got != tc.want {
			t.Fatalf("Estimate(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestEstimate_MonotonicInLength(t *testing.T) {
	prev := 0
	for n := 0; n <= 200; n++ {
		got := Estimate(strings.Repeat("あ", n))
		if got < prev {
			t.Fatalf("estimate decreased at length %d: %d < %d", n, got, prev)
		}
		prev = got
	}
}

func TestEstimateAll_Sums(t *testing.T) {
	if got := EstimateAll("ab", "abc"); got != 3 {
		t.Fatalf("EstimateAll = %d, want 3", got)
	}
}
