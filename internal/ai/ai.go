// Package ai wraps the embedding and generation provider behind narrow
// interfaces used by ingestion, retrieval and chat.
//
// The OpenAI-compatible implementation lives in openai.go; Limited adds
// request pacing; prompt.go renders the chat prompt layout.
package ai

import (
	"context"
)

// Embedder turns texts into fixed-length vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Stream is a finite, single-pass sequence of generated text fragments.
// Recv returns io.EOF once the sequence is exhausted.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Generator starts a streamed completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (Stream, error)
}

// Titler produces a short conversation title from its first message.
type Titler interface {
	Title(ctx context.Context, firstMessage string, maxRunes int) (string, error)
}

// Provider is the full set of capabilities a backend offers.
type Provider interface {
	Embedder
	Generator
	Titler
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	out, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, ErrEmptyResponse
	}
	return out[0], nil
}
