package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-docchat-backend/internal/config"
)

func init() { retryBase = time.Millisecond }

func newTestClient(t *testing.T, h http.Handler, dims int) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewOpenAI(config.AIConfig{
		APIKey:              "test",
		BaseURL:             srv.URL + "/v1",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: dims,
		ChatModel:           "gpt-test",
		TitleModel:          "gpt-test",
		MaxRetries:          2,
		Timeout:             5 * time.Second,
	})
}

func embeddingHandler(fail *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if fail != nil && atomic.AddInt32(fail, -1) >= 0 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
			return
		}
		var req struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// reverse order to prove results are placed by index
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Embedding: []float32{float32(len(req.Input[j])), 1}, Index: j}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
	}
}

func TestEmbed_OrdersByIndexAndValidatesDimensions(t *testing.T) {
	c := newTestClient(t, embeddingHandler(nil), 2)
	out, err := c.Embed(context.Background(), []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 2 || out[0][0] != 1 || out[1][0] != 3 {
		t.Fatalf("unexpected vectors: %v", out)
	}

	bad := newTestClient(t, embeddingHandler(nil), 3)
	if _, err := bad.Embed(context.Background(), []string{"a"}); err == nil || !strings.Contains(err.Error(), "dimensions") {
		t.Fatalf("expected dimension error, got %v", err)
	}
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	fails := int32(2)
	c := newTestClient(t, embeddingHandler(&fails), 2)
	v, err := EmbedOne(context.Background(), c, "hello")
	if err != nil {
		t.Fatalf("EmbedOne after retries: %v", err)
	}
	if v[0] != 5 {
		t.Fatalf("unexpected vector: %v", v)
	}

	always := int32(100)
	c = newTestClient(t, embeddingHandler(&always), 2)
	if _, err := c.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatalf("expected failure once retries are exhausted")
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), 2)
	out, err := c.Embed(context.Background(), nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil, nil; got %v, %v", out, err)
	}
}

func streamHandler(parts []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Stream   bool `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q}}]}`,
				"\"Deploying Go services\"\nextra")
			return
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "QUESTION:\nwhy?") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, p := range parts {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"x\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", p)
			if fl != nil {
				fl.Flush()
			}
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}
}

func TestGenerate_StreamsFragmentsUntilEOF(t *testing.T) {
	c := newTestClient(t, streamHandler([]string{"Hel", "", "lo"}), 2)
	s, err := c.Generate(context.Background(), Prompt{Context: "ctx", History: []string{"a", "b"}, Question: "why?"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer s.Close()

	var got []string
	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got = append(got, frag)
	}
	if strings.Join(got, "") != "Hello" || len(got) != 2 {
		t.Fatalf("unexpected fragments: %q", got)
	}
}

func TestTitle_CleansProviderOutput(t *testing.T) {
	c := newTestClient(t, streamHandler(nil), 2)
	title, err := c.Title(context.Background(), "how do I deploy?", 10)
	if err != nil {
		t.Fatalf("Title: %v", err)
	}
	if title != "Deploying" {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestCleanTitle(t *testing.T) {
	cases := map[string]string{
		`"Quoted"`:              "Quoted",
		"Title: Setup":          "Setup",
		"first line\nsecond":    "first line",
		"  **Bold title**  ":    "Bold title",
		"áéíóúáéíóúáéíóú extra": "áéíóúáéíóú",
	}
	for in, want := range cases {
		if got := CleanTitle(in, 10); got != want {
			t.Fatalf("CleanTitle(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestPromptRender(t *testing.T) {
	p := Prompt{Context: " ctx ", History: []string{"h1", "h2"}, Question: "q"}
	want := "CONTEXT:\nctx\n\nHISTORY:\nh1\nh2\n\nQUESTION:\nq"
	if got := p.Render(); got != want {
		t.Fatalf("Render:\n%q\nwant\n%q", got, want)
	}
	if p.system() != DefaultSystemPrompt {
		t.Fatalf("expected default system prompt")
	}
}

func TestRetryDelay_Caps(t *testing.T) {
	old := retryBase
	retryBase = 200 * time.Millisecond
	defer func() { retryBase = old }()
	if retryDelay(0) != 200*time.Millisecond || retryDelay(1) != 400*time.Millisecond {
		t.Fatalf("unexpected early delays")
	}
	if retryDelay(10) != 5*time.Second || retryDelay(-1) != 200*time.Millisecond {
		t.Fatalf("unexpected capped delays")
	}
}

func TestRetryable(t *testing.T) {
	if retryable(context.Canceled) || retryable(nil) {
		t.Fatalf("cancellation must not be retried")
	}
	if !retryable(errors.New("connection reset")) {
		t.Fatalf("transport errors should be retried")
	}
}
