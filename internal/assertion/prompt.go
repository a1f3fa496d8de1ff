package assertion

import (
	"fmt"
	"regexp"
	"strings"
)

// The conclusion markers the reasoning service is instructed to emit.
// The parser and the prompt share these so they cannot drift apart.
const (
	passMarker = "TEST PASSED"
	failMarker = "TEST FAILED"
)

// markerPattern matches either conclusion marker with case and interior
// whitespace tolerance; the free-text nature of the reasoning service
// makes the loose match necessary.
var markerPattern = regexp.MustCompile(`(?i)TEST[ \t]+(PASSED|FAILED)`)

// BuildPrompt deterministically renders a specification into the request
// sent to the reasoning service. Pure function: no I/O, no randomness,
// no truncation or reordering of fields.
func BuildPrompt(spec TestSpecification) string {
	var b strings.Builder

	b.WriteString("You are a web testing agent with access to browser automation tools.\n")
	b.WriteString("Use the available tools to navigate, inspect the DOM, capture performance metrics, take screenshots, and inspect network activity.\n\n")

	b.WriteString("You need to test the following:\n")
	fmt.Fprintf(&b, "URL: %s\n", sanitizeField(spec.TargetURL))
	fmt.Fprintf(&b, "Test Instructions: %s\n", sanitizeField(spec.Instructions))
	fmt.Fprintf(&b, "Expected Result: %s\n\n", sanitizeField(spec.ExpectedResult))

	b.WriteString(`Analysis criteria:
1. Navigate to the URL and perform the test using the tools.
2. Check HTTP status codes and page load time against the expectation.
3. Compare the actual visual and functional state with the expected result.

Format your response as:
ACTUAL RESULT: [what you actually found]
ANALYSIS: [detailed comparison with the expected result]
REASON FOR FAILURE: [if failed, the specific reasons why]
SUGGESTIONS: [if failed, up to three specific suggestions to fix the issue]
CONCLUSION: `)
	b.WriteString(passMarker)
	b.WriteString(" or ")
	b.WriteString(failMarker)
	b.WriteString("\n\nIMPORTANT: Always end with \"")
	b.WriteString(passMarker)
	b.WriteString("\" or \"")
	b.WriteString(failMarker)
	b.WriteString("\" so the result can be determined.\n")

	return b.String()
}

// sanitizeField defangs conclusion markers inside caller-supplied text so
// an echoed instruction can never be mistaken for the verdict.
func sanitizeField(s string) string {
	return markerPattern.ReplaceAllStringFunc(strings.TrimSpace(s), func(m string) string {
		return strings.Join(strings.Fields(m), "_")
	})
}
