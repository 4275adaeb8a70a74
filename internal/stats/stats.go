// Package stats derives attendance figures from ledger state. It is pure
// read-side: callers pass counts taken from a single store snapshot, so two
// concurrent computations over the same snapshot agree.
package stats

import "math"

// Summary holds per-status counts and the attendance rate for a set of
// attendance records.
type Summary struct {
	Total    int     `json:"total"`
	Present  int     `json:"present"`
	Absent   int     `json:"absent"`
	Excluded int     `json:"excluded"`
	Rate     float64 `json:"attendance_rate"`
}

// Summarize computes a Summary from per-status counts. Rate is
// present/total*100 rounded to 2 decimals, and 0 when there are no records.
func Summarize(present, absent, excluded int) Summary {
	total := present + absent + excluded
	s := Summary{
		Total:    total,
		Present:  present,
		Absent:   absent,
		Excluded: excluded,
	}
	if total > 0 {
		s.Rate = Round2(float64(present) / float64(total) * 100)
	}
	return s
}

// StudentSummary aggregates a student's standing across all their
// enrollments.
type StudentSummary struct {
	TotalSessions       int     `json:"total_sessions"`
	Present             int     `json:"present"`
	UnjustifiedAbsences int     `json:"unjustified_absences"`
	JustifiedAbsences   int     `json:"justified_absences"`
	AttendanceRate      float64 `json:"attendance_rate"`
	ExcludedFromModules int     `json:"excluded_from_modules"`
}

// ForStudent builds a StudentSummary. Excluded attendance records count as
// justified absences; excludedModules is the number of enrollments carrying
// the exclusion flag.
func ForStudent(present, absent, excluded, excludedModules int) StudentSummary {
	total := present + absent + excluded
	out := StudentSummary{
		TotalSessions:       total,
		Present:             present,
		UnjustifiedAbsences: absent,
		JustifiedAbsences:   excluded,
		ExcludedFromModules: excludedModules,
	}
	if total > 0 {
		out.AttendanceRate = Round2(float64(present) / float64(total) * 100)
	}
	return out
}

// Round2 rounds to 2 decimal places.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
