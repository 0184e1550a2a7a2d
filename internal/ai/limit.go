package ai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limited paces every provider call through one token bucket shared by
// ingestion and chat, keeping both under the provider's requests-per-minute cap.
type Limited struct {
	Provider Provider
	Limiter  *rate.Limiter
}

// NewLimited wraps p with a limiter allowing rpm requests per minute. rpm <= 0
// returns p unchanged.
func NewLimited(p Provider, rpm int) Provider {
	if rpm <= 0 {
		return p
	}
	return &Limited{
		Provider: p,
		Limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
	}
}

// Embed implements Embedder.
func (l *Limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Provider.Embed(ctx, texts)
}

// Generate implements Generator.
func (l *Limited) Generate(ctx context.Context, p Prompt) (Stream, error) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Provider.Generate(ctx, p)
}

// Title implements Titler.
func (l *Limited) Title(ctx context.Context, firstMessage string, maxRunes int) (string, error) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.Provider.Title(ctx, firstMessage, maxRunes)
}
