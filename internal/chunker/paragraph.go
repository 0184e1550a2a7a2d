package chunker

import (
	"regexp"
	"strings"
)

// blankLineRE separates paragraphs: a newline, optional whitespace, newline.
var blankLineRE = regexp.MustCompile(`\n\s*\n`)

// Paragraphs packs blank-line separated paragraphs into chunks of at most
// o.MaxChunkSize runes. A paragraph longer than the limit is emitted on its
// own as fixed-size windows that overlap by o.Overlap runes.
func Paragraphs(text string, o Options) []string {
	max := o.MaxChunkSize
	if max <= 0 {
		max = DefaultOptions(PolicyParagraph).MaxChunkSize
	}
	overlap := o.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= max {
		overlap = max - 1
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		out     []string
		current string
	)
	flush := func() {
		if s := strings.TrimSpace(current); s != "" {
			out = append(out, s)
		}
		current = ""
	}

	for _, raw := range blankLineRE.Split(text, -1) {
		para := strings.TrimSpace(raw)
		if para == "" {
			continue
		}
		candidate := para
		if current != "" {
			candidate = current + "\n\n" + para
		}
		if runeLen(candidate) <= max {
			current = candidate
			continue
		}

		flush()
		if runeLen(para) > max {
			out = append(out, hardSplit(para, max, overlap)...)
			continue
		}
		current = para
	}
	flush()
	return out
}

// hardSplit cuts s into windows of max runes, each starting max-overlap runes
// after the previous one. The last window ends exactly at the end of s.
func hardSplit(s string, max, overlap int) []string {
	rs := []rune(s)
	step := max - overlap
	if step < 1 {
		step = 1
	}
	var out []string
	for i := 0; i < len(rs); i += step {
		end := i + max
		if end > len(rs) {
			end = len(rs)
		}
		if piece := strings.TrimSpace(string(rs[i:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(rs) {
			break
		}
	}
	return out
}
