// Package summary defines the structured summary produced by the engine and
// the JSON contract used to obtain it from a language model.
package summary

import "strings"

// Category buckets an email by what the reader should do with it.
type Category string

const (
	CategoryActionRequired Category = "action_required"
	CategoryInformational  Category = "informational"
	CategoryPromotional    Category = "promotional"
	CategoryNewsletter     Category = "newsletter"
	CategorySpam           Category = "spam"
)

// Urgency is the model's read on how soon the email needs attention.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Variant records how a summary came to be. Every variant is a structurally
// complete Summary; callers render them all the same way.
type Variant string

const (
	VariantGenerated  Variant = "generated"  // produced by the model
	VariantMinimal    Variant = "minimal"    // input too short to summarize
	VariantRedacted   Variant = "redacted"   // model declined on safety grounds
	VariantFallback   Variant = "fallback"   // generic failure placeholder
	VariantExtractive Variant = "extractive" // rule-based, no model involved
)

// Summary is the engine's single output shape. Immutable once returned.
type Summary struct {
	Headline    string   `json:"headline"`
	Body        string   `json:"body"`
	Category    Category `json:"category"`
	ActionItems []string `json:"action_items"`
	Urgency     Urgency  `json:"urgency"`
	Variant     Variant  `json:"variant"`
}

// Minimal is the deterministic summary for low-content emails. The headline
// is derived from the subject line since the body carries no signal.
func Minimal(subject string) Summary {
	headline := strings.TrimSpace(subject)
	if headline == "" {
		headline = "Short message"
	}
	return Summary{
		Headline: headline,
		Body:     "This message is too short to summarize.",
		Category: CategoryInformational,
		Urgency:  UrgencyLow,
		Variant:  VariantMinimal,
	}
}

// Redacted is returned when the model refuses to summarize for safety reasons.
func Redacted() Summary {
	return Summary{
		Headline: "Summary unavailable",
		Body:     "A summary could not be generated for this message.",
		Category: CategoryInformational,
		Urgency:  UrgencyLow,
		Variant:  VariantRedacted,
	}
}

// Fallback is the placeholder for any other terminal failure.
func Fallback() Summary {
	return Summary{
		Headline: "Summary unavailable",
		Body:     "This message could not be summarized right now.",
		Category: CategoryInformational,
		Urgency:  UrgencyLow,
		Variant:  VariantFallback,
	}
}

// Normalize clamps enum fields decoded from model output onto the known sets
// so a creative model never leaks invented categories to the UI.
func (s Summary) Normalize() Summary {
	switch s.Category {
	case CategoryActionRequired, CategoryInformational, CategoryPromotional, CategoryNewsletter, CategorySpam:
	default:
		s.Category = CategoryInformational
	}
	switch s.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
	default:
		s.Urgency = UrgencyLow
	}
	if s.Variant == "" {
		s.Variant = VariantGenerated
	}
	return s
}

// Complete reports whether the summary has all required fields populated.
func (s Summary) Complete() bool {
	return s.Headline != "" && s.Body != "" && s.Category != "" && s.Urgency != ""
}
