package assertion

import "strings"

// ParseVerdict converts a raw reasoning response into a Verdict by
// scanning for the mandated conclusion marker, last occurrence first so
// the conclusion line wins over any earlier mention. The full response
// text is carried verbatim in Message on both branches; on failure it
// therefore includes the actual result, reason, and suggestions.
//
// A response with no recognizable marker yields an
// *UnparseableVerdictError, never a defaulted pass or fail.
func ParseVerdict(raw string) (Verdict, error) {
	lines := strings.Split(raw, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		m := markerPattern.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		return Verdict{
			Passed:  strings.EqualFold(m[1], "PASSED"),
			Message: strings.TrimSpace(raw),
		}, nil
	}
	return Verdict{}, &UnparseableVerdictError{Response: raw}
}
