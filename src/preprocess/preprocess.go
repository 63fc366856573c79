// Package preprocess turns raw email content into a bounded, prompt-ready
// document: markup stripped, threads windowed and deduplicated, oversized
// bodies chunked, and hopeless inputs flagged before any model is touched.
package preprocess

import (
	"strings"
	"unicode/utf8"

	"github.com/namuan/inbox-glide-sub001/src/mail"
)

const (
	// DefaultMaxPromptChars is the hard per-call body budget.
	DefaultMaxPromptChars = 4000
	// DefaultChunkThreshold is the body length beyond which chunked
	// summarization kicks in instead of plain truncation.
	DefaultChunkThreshold = 10000
	// DefaultChunkOverlap keeps neighboring chunks sharing enough tail
	// context that sentences split across a boundary stay recoverable.
	DefaultChunkOverlap = 200
	// DefaultLowContentChars is the floor under which a body carries too
	// little signal to be worth a model call.
	DefaultLowContentChars = 50
	// DefaultThreadWindow is how many recent thread messages are included.
	DefaultThreadWindow = 5
)

// Options tune the preprocessor. Zero values take the documented defaults.
type Options struct {
	MaxPromptChars  int
	ChunkThreshold  int
	ChunkOverlap    int
	LowContentChars int
	ThreadWindow    int
	Detector        Detector
}

func (o Options) withDefaults() Options {
	if o.MaxPromptChars <= 0 {
		o.MaxPromptChars = DefaultMaxPromptChars
	}
	if o.ChunkThreshold <= 0 {
		o.ChunkThreshold = DefaultChunkThreshold
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.MaxPromptChars {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.ChunkOverlap == 0 {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.LowContentChars <= 0 {
		o.LowContentChars = DefaultLowContentChars
	}
	if o.ThreadWindow <= 0 {
		o.ThreadWindow = DefaultThreadWindow
	}
	if o.Detector == nil {
		o.Detector = HeuristicDetector{}
	}
	return o
}

// Chunk is one ordered segment of an oversized body.
type Chunk struct {
	Index int
	Text  string
}

// Document is the bounded, prompt-ready form of one email.
type Document struct {
	EmailID string
	Subject string

	// Normalized is the full markup-free body. Fingerprints hash this, so
	// cache identity survives truncation-policy changes.
	Normalized string

	// Body is the per-call prompt text: Normalized, possibly truncated.
	// Empty when Chunks is populated.
	Body      string
	Truncated bool

	// Chunks is non-empty when the body exceeded the chunk threshold.
	Chunks []Chunk

	// ThreadContext holds the windowed, deduplicated prior messages,
	// oldest first. The newest message itself is Body/Chunks.
	ThreadContext []string

	// LowContent short-circuits the pipeline: no cache, no model.
	LowContent bool

	// Language advisories. The engine never blocks on these alone.
	Language            string
	LanguageUnsupported bool
}

// Preprocessor normalizes messages into Documents.
type Preprocessor struct {
	opts Options
}

func New(opts Options) *Preprocessor {
	return &Preprocessor{opts: opts.withDefaults()}
}

// Prepare runs the full normalization pass for one message. It is pure and
// side-effect free; callers may run it concurrently.
func (p *Preprocessor) Prepare(msg mail.EmailMessage) Document {
	doc := Document{EmailID: msg.ID, Subject: msg.Subject}

	normalized := collapseSpace(StripHTML(msg.Body))
	if msg.IsThreaded && len(msg.Thread) > 0 {
		last := collapseSpace(StripHTML(msg.Thread[len(msg.Thread)-1].Body))
		normalized = dropQuoted(normalized, last)
	}
	doc.Normalized = normalized

	// All length budgets are in characters, not bytes: CJK bodies are three
	// bytes per rune and must not be cut short (or mid-rune).
	if utf8.RuneCountInString(strings.TrimSpace(normalized)) < p.opts.LowContentChars {
		doc.LowContent = true
		return doc
	}

	tag := p.opts.Detector.Detect(normalized)
	doc.Language = tag.String()
	doc.LanguageUnsupported = !Supported(tag)

	if msg.IsThreaded {
		doc.ThreadContext = p.threadContext(msg)
	}

	runes := []rune(normalized)
	switch {
	case len(runes) <= p.opts.MaxPromptChars:
		doc.Body = normalized
	case len(runes) <= p.opts.ChunkThreshold:
		doc.Body = string(runes[:p.opts.MaxPromptChars])
		doc.Truncated = true
	default:
		doc.Chunks = p.chunk(runes)
		doc.Truncated = true
	}
	return doc
}

// chunk splits text into overlapping, order-indexed segments of at most
// MaxPromptChars characters. Chunk count is ceil((len-overlap)/(size-overlap)).
func (p *Preprocessor) chunk(runes []rune) []Chunk {
	size := p.opts.MaxPromptChars
	step := size - p.opts.ChunkOverlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[start:])})
			break
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[start:end])})
	}
	return chunks
}

// threadContext windows the thread to the most recent messages and strips
// quoted text that merely repeats the preceding message.
func (p *Preprocessor) threadContext(msg mail.EmailMessage) []string {
	window := msg.RecentThread(p.opts.ThreadWindow)
	out := make([]string, 0, len(window))
	var prev string
	for _, m := range window {
		normalized := collapseSpace(StripHTML(m.Body))
		deduped := dropQuoted(normalized, prev)
		prev = normalized
		if strings.TrimSpace(deduped) != "" {
			out = append(out, deduped)
		}
	}
	return out
}

// dropQuoted removes ">"-prefixed quote lines and any line that appears
// verbatim in the preceding message of the thread.
func dropQuoted(text, prev string) string {
	prevLines := map[string]bool{}
	for _, line := range strings.Split(prev, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			prevLines[line] = true
		}
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if prevLines[trimmed] {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
