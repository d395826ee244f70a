package ruleset

import "testing"

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey("  pending_requests "); got != "PENDING_REQUESTS" {
		t.Fatalf("unexpected normalize: %q", got)
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{5: "5", 0.5: "0.5", 36: "36", 1e6: "1000000"}
	for in, want := range cases {
		if got := formatNumber(in); got != want {
			t.Fatalf("formatNumber(%v) = %s, want %s", in, got, want)
		}
	}
}
