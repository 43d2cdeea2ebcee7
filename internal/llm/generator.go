package llm

import (
	"context"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"github.com/avelez/codetour/pkg/schema"
)

// Generator produces completions for prompts, optionally served from the
// prompt cache.
type Generator interface {
	Generate(ctx context.Context, prompt string, useCache bool) (string, error)
}

// Cache is the subset of the store the generator needs. A get miss is
// reported as an error; the generator treats any get error as a miss.
type Cache interface {
	GetCachedResponse(ctx context.Context, prompt string) (string, error)
	PutCachedResponse(ctx context.Context, prompt, response, model string) error
}

// CachingGenerator calls a chat model and caches responses keyed by the full
// prompt text. Cache failures never fail a generation: reads degrade to a
// miss and write failures are logged.
type CachingGenerator struct {
	chat      model.BaseChatModel
	cache     Cache
	modelName string
	logger    *slog.Logger
}

// NewCachingGenerator wraps a chat model with the prompt cache. cache may be
// nil, in which case every call goes to the model.
func NewCachingGenerator(chat model.BaseChatModel, cache Cache, modelName string, logger *slog.Logger) *CachingGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingGenerator{chat: chat, cache: cache, modelName: modelName, logger: logger}
}

func (g *CachingGenerator) Generate(ctx context.Context, prompt string, useCache bool) (string, error) {
	if useCache && g.cache != nil {
		if cached, err := g.cache.GetCachedResponse(ctx, prompt); err == nil {
			g.logger.Debug("prompt cache hit", "model", g.modelName, "prompt_len", len(prompt))
			return cached, nil
		}
	}

	resp, err := g.chat.Generate(ctx, []*einoschema.Message{einoschema.UserMessage(prompt)})
	if err != nil {
		return "", schema.NewError(schema.ErrCodeLLM, "llm generate failed").WithCause(err)
	}
	if resp == nil || resp.Content == "" {
		return "", schema.NewError(schema.ErrCodeLLM, "llm returned an empty response")
	}
	g.logger.Debug("llm response", "model", g.modelName,
		"prompt_len", len(prompt), "response_len", len(resp.Content))

	if useCache && g.cache != nil {
		if err := g.cache.PutCachedResponse(ctx, prompt, resp.Content, g.modelName); err != nil {
			g.logger.Warn("prompt cache write failed", "error", err)
		}
	}
	return resp.Content, nil
}
