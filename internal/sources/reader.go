package sources

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/tbourn/go-docchat-backend/internal/config"
)

// Reader fetches page markdown from a Jina-style reader service:
// GET <base>/<url>.
type Reader struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewReader builds a page fetcher from cfg.
func NewReader(cfg config.ScrapeConfig) *Reader {
	return &Reader{
		BaseURL: strings.TrimRight(cfg.ReaderBaseURL, "/"),
		Token:   cfg.ReaderToken,
		Client:  newHTTPClient(cfg.Timeout),
	}
}

// FetchPage implements PageFetcher.
func (r *Reader) FetchPage(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/"+url, nil)
	if err != nil {
		return nil, err
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	body, err := do(r.Client, req)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("reader returned an empty page")
	}
	p := parseReaderOutput(string(body))
	if p.Title == "" {
		p.Title = MarkdownTitle(p.Markdown)
	}
	return p, nil
}

// parseReaderOutput splits the reader's "Title: / URL Source: / Markdown
// Content:" preamble from the markdown body. Input without the preamble is
// returned as markdown unchanged.
func parseReaderOutput(s string) *Page {
	const marker = "Markdown Content:"
	s = strings.ReplaceAll(s, "\r\n", "\n")
	i := strings.Index(s, marker)
	if i < 0 || !strings.HasPrefix(strings.TrimSpace(s), "Title:") {
		return &Page{Markdown: strings.TrimSpace(s)}
	}
	p := &Page{Markdown: strings.TrimSpace(s[i+len(marker):])}
	for _, line := range strings.Split(s[:i], "\n") {
		if v, ok := strings.CutPrefix(line, "Title:"); ok {
			p.Title = strings.TrimSpace(v)
			break
		}
	}
	return p
}

// MarkdownTitle returns the text of the first level-1 heading, or of the
// first heading of any level when there is none.
func MarkdownTitle(md string) string {
	src := []byte(md)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var first, h1 string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		t := strings.TrimSpace(inlineText(h, src))
		if first == "" {
			first = t
		}
		if h.Level == 1 && t != "" {
			h1 = t
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})
	if h1 != "" {
		return h1
	}
	return first
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(inlineText(c, src))
		}
	}
	return b.String()
}
