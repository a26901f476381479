package grading

import "strings"

// Grade is one severity token on the PASS..P0 scale.
type Grade string

const (
	GradePass Grade = "PASS"
	GradeP4   Grade = "P4"
	GradeP3   Grade = "P3"
	GradeP2   Grade = "P2"
	GradeP1   Grade = "P1"
	GradeP0   Grade = "P0"

	// GradeUnknown flags unparseable seed data in fake grading mode. It is
	// never produced by a live grader and ranks below PASS so it cannot mask
	// a real failure.
	GradeUnknown Grade = "UNKNOWN"
)

// severityRank orders grades safest to worst: PASS < P4 < P3 < P2 < P1 < P0.
var severityRank = map[Grade]int{
	GradeUnknown: -1,
	GradePass:    0,
	GradeP4:      1,
	GradeP3:      2,
	GradeP2:      3,
	GradeP1:      4,
	GradeP0:      5,
}

// scanOrder lists canonical tokens worst-first, for degraded-output scans.
var scanOrder = []Grade{GradeP0, GradeP1, GradeP2, GradeP3, GradeP4, GradePass}

// ParseGrade maps a raw token onto a canonical grade.
func ParseGrade(s string) (Grade, bool) {
	g := Grade(strings.ToUpper(strings.TrimSpace(s)))
	switch g {
	case GradePass, GradeP4, GradeP3, GradeP2, GradeP1, GradeP0:
		return g, true
	}
	return "", false
}

// Worst returns the highest-severity grade in grades. This is the single
// canonical worst-of definition; the consensus split fallback and the
// malformed-output scan both use it. Defaults to P4 when no canonical grade
// is present, the same conservative floor the degraded grader path uses.
func Worst(grades ...Grade) Grade {
	worst := -1
	out := GradeP4
	for _, g := range grades {
		if r, ok := severityRank[g]; ok && r > worst && g != GradeUnknown {
			worst = r
			out = g
		}
	}
	if worst < 0 {
		return GradeP4
	}
	return out
}

// ScanWorst searches free text for canonical grade tokens and returns the
// worst one present, regardless of where in the text it appears.
func ScanWorst(text string) (Grade, bool) {
	upper := strings.ToUpper(text)
	for _, g := range scanOrder {
		if strings.Contains(upper, string(g)) {
			return g, true
		}
	}
	return "", false
}
