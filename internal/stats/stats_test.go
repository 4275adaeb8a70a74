package stats

import "testing"

func TestSummarize(t *testing.T) {
	cases := []struct {
		name                      string
		present, absent, excluded int
		wantTotal                 int
		wantRate                  float64
	}{
		{"empty ledger", 0, 0, 0, 0, 0},
		{"all present", 5, 0, 0, 5, 100},
		{"half present", 2, 2, 0, 4, 50},
		{"third present", 1, 2, 0, 3, 33.33},
		{"two thirds present", 2, 1, 0, 3, 66.67},
		{"excluded counts toward total", 2, 1, 1, 4, 50},
		{"nobody present", 0, 3, 0, 3, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Summarize(tc.present, tc.absent, tc.excluded)
			if s.Total != tc.wantTotal {
				t.Fatalf("total = %d, want %d", s.Total, tc.wantTotal)
			}
			if s.Rate != tc.wantRate {
				t.Fatalf("rate = %v, want %v", s.Rate, tc.wantRate)
			}
			if s.Present != tc.present || s.Absent != tc.absent || s.Excluded != tc.excluded {
				t.Fatalf("counts = %d/%d/%d, want %d/%d/%d",
					s.Present, s.Absent, s.Excluded, tc.present, tc.absent, tc.excluded)
			}
		})
	}
}

func TestForStudent(t *testing.T) {
	s := ForStudent(7, 2, 1, 1)
	if s.TotalSessions != 10 {
		t.Fatalf("total = %d, want 10", s.TotalSessions)
	}
	if s.AttendanceRate != 70 {
		t.Fatalf("rate = %v, want 70", s.AttendanceRate)
	}
	if s.JustifiedAbsences != 1 || s.UnjustifiedAbsences != 2 {
		t.Fatalf("absences = %d justified / %d unjustified", s.JustifiedAbsences, s.UnjustifiedAbsences)
	}
	if s.ExcludedFromModules != 1 {
		t.Fatalf("excluded modules = %d, want 1", s.ExcludedFromModules)
	}

	empty := ForStudent(0, 0, 0, 0)
	if empty.AttendanceRate != 0 {
		t.Fatalf("empty rate = %v, want 0", empty.AttendanceRate)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{33.333333, 33.33},
		{66.666666, 66.67},
		{50, 50},
		{0.005, 0.01},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
