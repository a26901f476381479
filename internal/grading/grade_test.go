package grading

import "testing"

func TestParseGrade(t *testing.T) {
	t.Parallel()

	valid := map[string]Grade{
		"PASS": GradePass, "pass": GradePass, " P0 ": GradeP0,
		"p3": GradeP3, "P4": GradeP4,
	}
	for in, want := range valid {
		got, ok := ParseGrade(in)
		if !ok || got != want {
			t.Errorf("ParseGrade(%q) = (%s, %v), want (%s, true)", in, got, ok, want)
		}
	}
	for _, in := range []string{"", "P5", "FAIL", "UNKNOWN", "passable"} {
		if _, ok := ParseGrade(in); ok {
			t.Errorf("ParseGrade(%q) accepted", in)
		}
	}
}

func TestWorst(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   []Grade
		want Grade
	}{
		{[]Grade{GradePass, GradeP4, GradeP3}, GradeP3},
		{[]Grade{GradePass, GradePass}, GradePass},
		{[]Grade{GradeP1, GradeP0, GradeP2}, GradeP0},
		{[]Grade{GradeUnknown, GradePass}, GradePass},
		{[]Grade{GradeUnknown}, GradeP4},
		{nil, GradeP4},
	}
	for _, tc := range cases {
		if got := Worst(tc.in...); got != tc.want {
			t.Errorf("Worst(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestScanWorstPicksHighestSeverityAnywhere(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text  string
		want  Grade
		found bool
	}{
		{"this clearly deserves a PASS", GradePass, true},
		{"PASS overall, though one judge said P0 earlier", GradeP0, true},
		{"P0 appears before PASS here", GradeP0, true},
		{"somewhere between p3 and P4", GradeP3, true},
		{"no tokens at all", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, found := ScanWorst(tc.text)
		if found != tc.found || got != tc.want {
			t.Errorf("ScanWorst(%q) = (%s, %v), want (%s, %v)",
				tc.text, got, found, tc.want, tc.found)
		}
	}
}
