package summary

import (
	"encoding/json"
	"errors"
	"strings"
)

// Schema is the JSON schema handed to the model with every request.
// Providers that support structured output enforce it server-side; the rest
// receive it inline in the prompt.
const Schema = `{
  "type": "object",
  "properties": {
    "headline": {"type": "string", "description": "One sentence capturing the email"},
    "body": {"type": "string", "description": "Two to four sentences of detail"},
    "category": {"type": "string", "enum": ["action_required", "informational", "promotional", "newsletter", "spam"]},
    "action_items": {"type": "array", "items": {"type": "string"}},
    "urgency": {"type": "string", "enum": ["low", "medium", "high"]}
  },
  "required": ["headline", "body", "category", "urgency"]
}`

var errNoObject = errors.New("summary: no JSON object in model output")

// Decode parses a complete model response into a Summary. It tolerates code
// fences and prose around the object, which small local models emit often.
func Decode(text string) (Summary, error) {
	obj := extractObject(text)
	if obj == "" {
		return Summary{}, errNoObject
	}
	var s Summary
	if err := json.Unmarshal([]byte(obj), &s); err != nil {
		return Summary{}, err
	}
	return s.Normalize(), nil
}

// DecodeLoose parses a possibly unterminated response, as seen mid-stream.
// It closes any open strings, arrays, and objects before decoding, so fields
// that have fully streamed are visible before the response finishes. Returns
// false when not even a partial object can be recovered.
func DecodeLoose(text string) (Summary, bool) {
	obj := extractObject(text)
	if obj == "" {
		return Summary{}, false
	}
	var s Summary
	if err := json.Unmarshal([]byte(repair(obj)), &s); err != nil {
		return Summary{}, false
	}
	return s, true
}

// Merge folds a newer partial into the running summary. Fields only ever
// gain or extend content; an already-revealed field is never cleared or
// contradicted, so consumers see a monotonic refinement sequence.
func Merge(prev, next Summary) Summary {
	out := prev
	if len(next.Headline) >= len(prev.Headline) && next.Headline != "" {
		out.Headline = next.Headline
	}
	if len(next.Body) >= len(prev.Body) && next.Body != "" {
		out.Body = next.Body
	}
	if next.Category != "" {
		out.Category = next.Category
	}
	if next.Urgency != "" {
		out.Urgency = next.Urgency
	}
	if len(next.ActionItems) >= len(prev.ActionItems) {
		out.ActionItems = next.ActionItems
	}
	return out
}

// extractObject slices text down to the outermost balanced {...} region,
// dropping prose and code fences on either side. If the closing brace has not
// arrived yet (mid-stream), the open tail is returned for repair.
func extractObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	rest := text[start:]
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case inString && c == '"':
			inString = false
		case inString:
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return rest[:i+1]
			}
		}
	}
	return strings.TrimSpace(rest)
}

// repair appends the closers a truncated JSON object is missing.
func repair(obj string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(obj); i++ {
		c := obj[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case inString && c == '"':
			inString = false
		case inString:
		case c == '"':
			inString = true
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	b.WriteString(obj)
	if inString {
		b.WriteByte('"')
	} else {
		trimmed := strings.TrimRight(obj, " \t\r\n")
		switch {
		case strings.HasSuffix(trimmed, ":"):
			// A key streamed in without its value yet.
			b.Reset()
			b.WriteString(trimmed)
			b.WriteString("null")
		case strings.HasSuffix(trimmed, ","):
			b.Reset()
			b.WriteString(trimmed[:len(trimmed)-1])
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
