package matching

import "testing"

func TestParseMatchStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"new", "viewed", "applied", "accepted", "rejected"} {
		got, err := ParseMatchStatus(s)
		if err != nil {
			t.Fatalf("ParseMatchStatus(%q) returned error: %v", s, err)
		}
		if string(got) != s {
			t.Fatalf("ParseMatchStatus(%q) = %q", s, got)
		}
	}

	for _, s := range []string{"", "NEW", "archived", "pending"} {
		if _, err := ParseMatchStatus(s); err == nil {
			t.Fatalf("ParseMatchStatus(%q) expected error, got nil", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    MatchStatus
		to      MatchStatus
		allowed bool
	}{
		{"new to viewed", MatchNew, MatchViewed, true},
		{"viewed to applied", MatchViewed, MatchApplied, true},
		{"applied to accepted", MatchApplied, MatchAccepted, true},
		{"applied to rejected", MatchApplied, MatchRejected, true},
		{"accepted straight from new", MatchNew, MatchAccepted, true},
		{"rejected straight from new", MatchNew, MatchRejected, true},
		{"accepted straight from viewed", MatchViewed, MatchAccepted, true},
		{"applied straight from new", MatchNew, MatchApplied, false},
		{"backwards viewed to new", MatchViewed, MatchNew, false},
		{"backwards applied to viewed", MatchApplied, MatchViewed, false},
		{"self transition", MatchViewed, MatchViewed, false},
		{"out of accepted", MatchAccepted, MatchRejected, false},
		{"out of rejected", MatchRejected, MatchNew, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CanTransition(tt.from, tt.to); got != tt.allowed {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []MatchStatus{MatchAccepted, MatchRejected} {
		if !IsTerminal(s) {
			t.Fatalf("IsTerminal(%s) should be true", s)
		}
	}
	for _, s := range []MatchStatus{MatchNew, MatchViewed, MatchApplied} {
		if IsTerminal(s) {
			t.Fatalf("IsTerminal(%s) should be false", s)
		}
	}
}
