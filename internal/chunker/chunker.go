// Package chunker splits raw source text into bounded, semantically coherent
// pieces that are small enough to embed.
//
// Three policies are provided, selected by the kind of source being ingested:
//
//   - PolicyParagraph: greedy paragraph packing by character count, with a
//     hard split (and character overlap) for paragraphs that exceed the limit.
//   - PolicyMarkdown: line-oriented packing by word count that never closes a
//     chunk inside a fenced code block and seeds each chunk with the trailing
//     prose words of the previous one.
//   - PolicySections: top-level heading sections ("# Title"), sub-split by
//     blank-line paragraphs when a section is too long. Every piece keeps its
//     section heading.
//
// All functions are pure and deterministic, and empty input yields an empty
// result. Character counts are measured in runes.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one piece of split text.
type Chunk struct {
	// Heading is the section heading the chunk belongs to (sections policy
	// only; empty otherwise).
	Heading string `json:"heading,omitempty"`
	// Content is the chunk text.
	Content string `json:"content"`
	// CharCount is the rune length of Content.
	CharCount int `json:"char_count"`
}

// EmbedText returns the text that should be sent to the embedding provider.
// Sub-chunks of a long section are prefixed with their heading so the vector
// keeps the section's topic.
func (c Chunk) EmbedText() string {
	if c.Heading == "" || c.Heading == PreambleHeading {
		return c.Content
	}
	if strings.HasPrefix(strings.TrimSpace(c.Content), "#") {
		return c.Content
	}
	return "# " + c.Heading + "\n\n" + c.Content
}

// Policy selects a chunking strategy.
type Policy string

const (
	PolicyParagraph Policy = "paragraph"
	PolicyMarkdown  Policy = "markdown"
	PolicySections  Policy = "sections"
)

// PreambleHeading labels text that appears before the first heading.
const PreambleHeading = "Preamble"

// Options carries the limits for every policy. Each policy reads only the
// fields that apply to it.
type Options struct {
	// MaxChunkSize is the rune limit for the paragraph and sections policies.
	MaxChunkSize int
	// Overlap is the rune overlap used when hard-splitting a long paragraph.
	Overlap int

	// MinWords, MaxWords and OverlapWords drive the markdown policy.
	MinWords     int
	MaxWords     int
	OverlapWords int
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the defaults for the given policy.
func DefaultOptions(p Policy) Options {
	o := Options{
		MaxChunkSize: 1000,
		Overlap:      100,
		MinWords:     100,
		MaxWords:     800,
		OverlapWords: 50,
	}
	if p == PolicySections {
		o.MaxChunkSize = 2000
	}
	return o
}

// WithChunkSize sets MaxChunkSize (ignored when n <= 0).
func WithChunkSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxChunkSize = n
		}
	}
}

// WithOverlap sets the character overlap (ignored when n < 0).
func WithOverlap(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.Overlap = n
		}
	}
}

// WithWordLimits sets the markdown word limits. Non-positive max is ignored.
func WithWordLimits(minWords, maxWords, overlapWords int) Option {
	return func(o *Options) {
		if minWords >= 0 {
			o.MinWords = minWords
		}
		if maxWords > 0 {
			o.MaxWords = maxWords
		}
		if overlapWords >= 0 {
			o.OverlapWords = overlapWords
		}
	}
}

// Split runs the requested policy over text. Unknown policies fall back to
// paragraph chunking.
func Split(p Policy, text string, opts ...Option) []Chunk {
	o := DefaultOptions(p)
	for _, fn := range opts {
		fn(&o)
	}
	switch p {
	case PolicyMarkdown:
		return wrap(Markdown(text, o))
	case PolicySections:
		return Sections(text, o)
	default:
		return wrap(Paragraphs(text, o))
	}
}

// FilterShort drops chunks whose trimmed content is shorter than minChars
// runes. A non-positive minChars keeps everything except empty chunks.
func FilterShort(chunks []Chunk, minChars int) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		n := utf8.RuneCountInString(strings.TrimSpace(c.Content))
		if n == 0 || n < minChars {
			continue
		}
		out = append(out, c)
	}
	return out
}

func wrap(parts []string) []Chunk {
	out := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		out = append(out, Chunk{Content: p, CharCount: utf8.RuneCountInString(p)})
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
