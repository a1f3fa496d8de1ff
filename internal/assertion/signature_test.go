package assertion

import "testing"

func TestSignatureStability(t *testing.T) {
	spec := TestSpecification{
		TargetURL:      "https://example.com",
		Instructions:   "Check the page loads",
		ExpectedResult: "HTTP 200 and visible heading",
	}
	if Signature(spec) != Signature(spec) {
		t.Fatal("same specification must produce the same signature")
	}
}

func TestSignatureWhitespaceNormalization(t *testing.T) {
	a := TestSpecification{
		TargetURL:      "https://example.com",
		Instructions:   "Check   the page\tloads",
		ExpectedResult: "  HTTP 200  ",
	}
	b := TestSpecification{
		TargetURL:      "https://example.com",
		Instructions:   "Check the page loads",
		ExpectedResult: "HTTP 200",
	}
	if Signature(a) != Signature(b) {
		t.Error("whitespace differences must not change the signature")
	}
}

func TestSignatureDistinct(t *testing.T) {
	base := TestSpecification{
		TargetURL:      "https://example.com",
		Instructions:   "Check the page loads",
		ExpectedResult: "HTTP 200",
	}

	variants := []TestSpecification{
		{TargetURL: "https://example.org", Instructions: base.Instructions, ExpectedResult: base.ExpectedResult},
		{TargetURL: base.TargetURL, Instructions: "Check the footer", ExpectedResult: base.ExpectedResult},
		{TargetURL: base.TargetURL, Instructions: base.Instructions, ExpectedResult: "HTTP 404"},
	}
	seen := map[string]bool{Signature(base): true}
	for i, v := range variants {
		sig := Signature(v)
		if seen[sig] {
			t.Errorf("variant %d collides with an earlier signature", i)
		}
		seen[sig] = true
	}
}

func TestSignatureFieldBoundaries(t *testing.T) {
	// Content shifted across a field boundary must not collide.
	a := TestSpecification{TargetURL: "ab", Instructions: "c", ExpectedResult: "d"}
	b := TestSpecification{TargetURL: "a", Instructions: "bc", ExpectedResult: "d"}
	if Signature(a) == Signature(b) {
		t.Error("field boundary shift must change the signature")
	}
}
