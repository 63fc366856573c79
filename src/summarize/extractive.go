package summarize

import (
	"strings"

	"github.com/namuan/inbox-glide-sub001/src/preprocess"
	"github.com/namuan/inbox-glide-sub001/src/summary"
)

// extractiveSentences is how many leading sentences the rule-based path keeps.
const extractiveSentences = 3

// Extractive builds a summary without any model: the first few sentences of
// the normalized body. Used when the device cannot run inference at all, so
// it must never touch the model or the availability backoff loop.
func Extractive(doc preprocess.Document) summary.Summary {
	sentences := splitSentences(doc.Normalized)

	headline := strings.TrimSpace(doc.Subject)
	if headline == "" && len(sentences) > 0 {
		headline = sentences[0]
	}
	if headline == "" {
		headline = "Email received"
	}

	n := len(sentences)
	if n > extractiveSentences {
		n = extractiveSentences
	}
	body := strings.Join(sentences[:n], " ")
	if body == "" {
		body = "No readable content."
	}

	return summary.Summary{
		Headline: headline,
		Body:     body,
		Category: summary.CategoryInformational,
		Urgency:  summary.UrgencyLow,
		Variant:  summary.VariantExtractive,
	}
}

// splitSentences is a rough sentence splitter good enough for extraction:
// boundaries at ./!/? followed by whitespace, with newlines as soft breaks.
func splitSentences(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				flush()
			}
		}
	}
	flush()
	return out
}
