package summary

import (
	"strings"
	"testing"
)

func TestDecodeToleratesFencesAndProse(t *testing.T) {
	text := "Sure, here is the summary:\n```json\n" +
		`{"headline": "Team offsite moved", "body": "The offsite moved to Friday. Rooms are rebooked.", "category": "informational", "action_items": [], "urgency": "low"}` +
		"\n```"
	s, err := Decode(text)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if s.Headline != "Team offsite moved" {
		t.Errorf("headline = %q", s.Headline)
	}
	if s.Category != CategoryInformational || s.Urgency != UrgencyLow {
		t.Errorf("category/urgency = %s/%s", s.Category, s.Urgency)
	}
}

func TestDecodeNormalizesUnknownEnums(t *testing.T) {
	s, err := Decode(`{"headline": "h", "body": "b", "category": "urgent-stuff", "urgency": "extreme"}`)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if s.Category != CategoryInformational {
		t.Errorf("category = %q, want informational", s.Category)
	}
	if s.Urgency != UrgencyLow {
		t.Errorf("urgency = %q, want low", s.Urgency)
	}
}

func TestDecodeDropsTrailingText(t *testing.T) {
	cases := []string{
		"```json\n" + `{"headline": "h1", "body": "b", "category": "spam", "urgency": "low"}` + "\n```",
		`{"headline": "h1", "body": "b", "category": "spam", "urgency": "low"}` + "\nLet me know if you need anything else!",
		// Braces inside string values must not end the object early.
		`{"headline": "h1", "body": "use {curly} and \"quoted\" text", "category": "spam", "urgency": "low"} trailing`,
	}
	for _, in := range cases {
		s, err := Decode(in)
		if err != nil {
			t.Errorf("Decode(%q) failed: %v", in, err)
			continue
		}
		if s.Headline != "h1" || s.Category != CategorySpam {
			t.Errorf("Decode(%q) = %+v", in, s)
		}
	}
}

func TestDecodeNoObject(t *testing.T) {
	if _, err := Decode("I cannot summarize this."); err == nil {
		t.Fatal("expected error for output without JSON object")
	}
}

func TestDecodeLooseTruncated(t *testing.T) {
	cases := []string{
		`{"headline": "Invoice due Friday"`,
		`{"headline": "Invoice due Friday", "body": "Pay by`,
		`{"headline": "Invoice due Friday", "body": "Pay by Friday.", "action_items": ["pay`,
		`{"headline": "Invoice due Friday",`,
		`{"headline": "Invoice due Friday", "body":`,
	}
	for _, in := range cases {
		s, ok := DecodeLoose(in)
		if !ok {
			t.Errorf("DecodeLoose(%q) failed", in)
			continue
		}
		if !strings.HasPrefix(s.Headline, "Invoice due") {
			t.Errorf("DecodeLoose(%q) headline = %q", in, s.Headline)
		}
	}
}

func TestDecodeLooseNothingUsable(t *testing.T) {
	if _, ok := DecodeLoose("thinking about it"); ok {
		t.Fatal("expected failure without an object start")
	}
}

func TestMergeIsMonotonic(t *testing.T) {
	a := Summary{Headline: "Inv", Body: "Pay"}
	b := Summary{Headline: "Invoice due Friday", Body: "Pay by Friday.", Category: CategoryActionRequired}
	merged := Merge(a, b)
	if merged.Headline != b.Headline || merged.Body != b.Body {
		t.Errorf("merge did not extend fields: %+v", merged)
	}

	// A shorter later value must not shrink an already-revealed field.
	c := Summary{Headline: "Inv", Urgency: UrgencyHigh}
	merged = Merge(merged, c)
	if merged.Headline != b.Headline {
		t.Errorf("merge regressed headline to %q", merged.Headline)
	}
	if merged.Urgency != UrgencyHigh {
		t.Errorf("merge dropped urgency")
	}
	if merged.Category != CategoryActionRequired {
		t.Errorf("merge cleared category")
	}
}

func TestMinimalUsesSubject(t *testing.T) {
	s := Minimal("Re: quick question")
	if s.Headline != "Re: quick question" {
		t.Errorf("headline = %q", s.Headline)
	}
	if s.Variant != VariantMinimal {
		t.Errorf("variant = %q", s.Variant)
	}
	if !s.Complete() {
		t.Error("minimal summary must be structurally complete")
	}
}

func TestVariantsAreComplete(t *testing.T) {
	for name, s := range map[string]Summary{
		"minimal":  Minimal(""),
		"redacted": Redacted(),
		"fallback": Fallback(),
	} {
		if !s.Complete() {
			t.Errorf("%s variant is not structurally complete: %+v", name, s)
		}
	}
}
