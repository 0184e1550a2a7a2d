package chunker

import (
	"regexp"
	"strings"
)

var (
	// headingRE matches a top-level heading line ("# Title", not "## Title").
	headingRE = regexp.MustCompile(`^\s*#\s+(\S.*)$`)
	// paraSplitRE separates paragraphs inside a section.
	paraSplitRE = regexp.MustCompile(`\n\n+`)
)

type section struct {
	heading string
	body    []string
}

// Sections splits extracted document text on top-level headings. Text before
// the first heading becomes a PreambleHeading section. A section that fits in
// o.MaxChunkSize runes is kept whole; longer sections are packed greedily by
// paragraph without exceeding the limit. A single paragraph that is longer
// than the limit is kept as its own chunk.
func Sections(text string, o Options) []Chunk {
	max := o.MaxChunkSize
	if max <= 0 {
		max = DefaultOptions(PolicySections).MaxChunkSize
	}

	// Some PDF extractors emit 'Š' for bullet glyphs.
	text = strings.ReplaceAll(text, "Š", "*")
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}

	var out []Chunk
	for _, sec := range splitSections(text) {
		trimmed := strings.TrimSpace(strings.Join(sec.body, "\n"))
		if trimmed == "" {
			continue
		}
		if runeLen(trimmed) <= max {
			out = append(out, Chunk{Heading: sec.heading, Content: trimmed, CharCount: runeLen(trimmed)})
			continue
		}

		current := ""
		emit := func() {
			if c := strings.TrimSpace(current); c != "" {
				out = append(out, Chunk{Heading: sec.heading, Content: c, CharCount: runeLen(c)})
			}
		}
		for _, p := range paraSplitRE.Split(trimmed, -1) {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			candidate := p
			if current != "" {
				candidate = current + "\n\n" + p
			}
			if runeLen(candidate) > max && current != "" {
				emit()
				current = p
				continue
			}
			current = candidate
		}
		emit()
	}
	return out
}

func splitSections(text string) []section {
	var (
		out []section
		cur = section{heading: PreambleHeading}
	)
	for _, line := range strings.Split(text, "\n") {
		if m := headingRE.FindStringSubmatch(line); m != nil {
			if len(cur.body) > 0 {
				out = append(out, cur)
			}
			cur = section{heading: strings.TrimSpace(m[1]), body: []string{strings.TrimSpace(line)}}
			continue
		}
		cur.body = append(cur.body, line)
	}
	if len(cur.body) > 0 {
		out = append(out, cur)
	}
	return out
}
