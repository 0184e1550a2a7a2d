package chunker

import "strings"

const codeFence = "```"

type mdLine struct {
	text  string
	code  bool
	words int
}

// Markdown packs lines into chunks of roughly o.MaxWords words.
//
// A chunk is only closed outside a fenced code block, so fences always stay
// whole. A closed chunk with fewer than o.MinWords words is appended to the
// previous chunk instead of standing alone. Each new chunk is seeded with the
// last o.OverlapWords prose words of the chunk before it; the seed never
// reaches back into a code block.
func Markdown(text string, o Options) []string {
	maxWords := o.MaxWords
	if maxWords <= 0 {
		maxWords = DefaultOptions(PolicyMarkdown).MaxWords
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		out    []string
		cur    []mdLine
		words  int
		inCode bool
		fresh  bool // cur holds more than the overlap seed
	)

	push := func() {
		content := strings.TrimSpace(joinLines(cur))
		if content == "" {
			return
		}
		if words < o.MinWords && len(out) > 0 {
			out[len(out)-1] += "\n" + content
			return
		}
		out = append(out, content)
	}

	for _, line := range strings.Split(text, "\n") {
		fence := strings.HasPrefix(strings.TrimSpace(line), codeFence)
		isCode := inCode || fence
		if fence {
			inCode = !inCode
		}
		n := len(strings.Fields(line))
		cur = append(cur, mdLine{text: line, code: isCode, words: n})
		words += n
		fresh = true

		if !inCode && words >= maxWords {
			push()
			seed := proseTail(cur, o.OverlapWords)
			cur, words, fresh = nil, 0, false
			if seed != "" {
				n := len(strings.Fields(seed))
				cur = []mdLine{{text: seed, words: n}}
				words = n
			}
		}
	}
	if fresh {
		push()
	}
	return out
}

// proseTail returns up to n trailing words taken from the non-code lines at
// the end of lines. It stops at the first code line it meets.
func proseTail(lines []mdLine, n int) string {
	if n <= 0 {
		return ""
	}
	var tail []string
	for i := len(lines) - 1; i >= 0 && len(tail) < n; i-- {
		if lines[i].code {
			break
		}
		f := strings.Fields(lines[i].text)
		tail = append(f, tail...)
	}
	if len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	return strings.Join(tail, " ")
}

func joinLines(lines []mdLine) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.text)
	}
	return b.String()
}
