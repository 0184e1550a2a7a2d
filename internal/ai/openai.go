package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tbourn/go-docchat-backend/internal/config"
)

const maxBatchSize = 100

// OpenAI implements Provider against an OpenAI-compatible API.
type OpenAI struct {
	client         *openai.Client
	embeddingModel string
	dimensions     int
	chatModel      string
	titleModel     string
	maxRetries     int
	timeout        time.Duration
}

// NewOpenAI builds a client from cfg. A non-empty BaseURL points the client at
// a compatible gateway.
func NewOpenAI(cfg config.AIConfig) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAI{
		client:         openai.NewClientWithConfig(oc),
		embeddingModel: cfg.EmbeddingModel,
		dimensions:     cfg.EmbeddingDimensions,
		chatModel:      cfg.ChatModel,
		titleModel:     cfg.TitleModel,
		maxRetries:     cfg.MaxRetries,
		timeout:        cfg.Timeout,
	}
}

// Embed implements Embedder. Inputs are sent in batches of up to 100 and
// every returned vector must have the configured dimension.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		resp, err := withRetry(ctx, o.maxRetries, func(ctx context.Context) (openai.EmbeddingResponse, error) {
			cctx, cancel := o.callContext(ctx)
			defer cancel()
			return o.client.CreateEmbeddings(cctx, openai.EmbeddingRequest{
				Input:      batch,
				Model:      openai.EmbeddingModel(o.embeddingModel),
				Dimensions: o.requestDimensions(),
			})
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("provider returned %d embeddings, expected %d", len(resp.Data), len(batch))
		}
		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			if o.dimensions > 0 && len(d.Embedding) != o.dimensions {
				return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(d.Embedding), o.dimensions)
			}
			vecs[d.Index] = d.Embedding
		}
		for _, v := range vecs {
			if v == nil {
				return nil, ErrEmptyResponse
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// requestDimensions asks for a shortened vector only from models that accept
// the parameter.
func (o *OpenAI) requestDimensions() int {
	if strings.HasPrefix(o.embeddingModel, "text-embedding-3") {
		return o.dimensions
	}
	return 0
}

// Generate implements Generator. The call timeout covers the whole stream and
// is released by Close.
func (o *OpenAI) Generate(ctx context.Context, p Prompt) (Stream, error) {
	cctx, cancel := o.callContext(ctx)
	req := openai.ChatCompletionRequest{
		Model: o.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.system()},
			{Role: openai.ChatMessageRoleUser, Content: p.Render()},
		},
		Stream: true,
	}
	s, err := withRetry(cctx, o.maxRetries, func(ctx context.Context) (*openai.ChatCompletionStream, error) {
		return o.client.CreateChatCompletionStream(ctx, req)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	return &openaiStream{s: s, cancel: cancel}, nil
}

type openaiStream struct {
	s      *openai.ChatCompletionStream
	cancel context.CancelFunc
}

// Recv returns the next non-empty content delta.
func (st *openaiStream) Recv() (string, error) {
	for {
		resp, err := st.s.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("generation stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if c := resp.Choices[0].Delta.Content; c != "" {
			return c, nil
		}
	}
}

func (st *openaiStream) Close() error {
	defer st.cancel()
	return st.s.Close()
}

// Title implements Titler.
func (o *OpenAI) Title(ctx context.Context, firstMessage string, maxRunes int) (string, error) {
	resp, err := withRetry(ctx, o.maxRetries, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		cctx, cancel := o.callContext(ctx)
		defer cancel()
		return o.client.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
			Model: o.titleModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(
					"Write a short title of at most %d characters for a conversation that starts with the user's message. Reply with the title only.", maxRunes)},
				{Role: openai.ChatMessageRoleUser, Content: firstMessage},
			},
			MaxTokens: 32,
		})
	})
	if err != nil {
		return "", fmt.Errorf("title request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	t := CleanTitle(resp.Choices[0].Message.Content, maxRunes)
	if t == "" {
		return "", ErrEmptyResponse
	}
	return t, nil
}

// CleanTitle strips quotes and line breaks and truncates to maxRunes.
func CleanTitle(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'`* ")
	s = strings.TrimSpace(strings.TrimPrefix(s, "Title:"))
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:maxRunes]))
	}
	return s
}

func (o *OpenAI) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}
