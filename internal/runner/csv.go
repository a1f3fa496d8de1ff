// Package runner executes batches of assertion cases and renders the
// report.
package runner

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"agentassert/internal/assertion"
)

// ParseCases reads test specifications from CSV input with columns
// url, instructions, expected_result. A header row matching those names
// is skipped; every data row must carry all three fields non-empty.
func ParseCases(r io.Reader) ([]assertion.TestSpecification, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var specs []assertion.TestSpecification
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read cases: %w", err)
		}
		line++

		if line == 1 && isHeader(record) {
			continue
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("line %d: expected 3 columns (url, instructions, expected_result), got %d", line, len(record))
		}

		spec := assertion.TestSpecification{
			TargetURL:      strings.TrimSpace(record[0]),
			Instructions:   strings.TrimSpace(record[1]),
			ExpectedResult: strings.TrimSpace(record[2]),
		}
		if spec.TargetURL == "" || spec.Instructions == "" || spec.ExpectedResult == "" {
			return nil, fmt.Errorf("line %d: url, instructions, and expected_result must all be non-empty", line)
		}
		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("no test cases found")
	}
	return specs, nil
}

func isHeader(record []string) bool {
	if len(record) < 3 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(record[0]), "url") &&
		strings.EqualFold(strings.TrimSpace(record[1]), "instructions") &&
		strings.EqualFold(strings.TrimSpace(record[2]), "expected_result")
}
