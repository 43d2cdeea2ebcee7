package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	"github.com/cloudwego/eino/components/model"

	"github.com/avelez/codetour/pkg/schema"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI   = "openai"
	ProviderClaude   = "claude"
	ProviderOllama   = "ollama"
	ProviderQwen     = "qwen"
	ProviderDeepSeek = "deepseek"
)

// ModelConfig selects and configures the chat model backend.
type ModelConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature *float32
	Timeout     time.Duration
}

const (
	defaultMaxTokens = 16 * 1024
	defaultTimeout   = 600 * time.Second
)

// NewChatModel builds an eino chat model for the configured provider.
func NewChatModel(ctx context.Context, cfg ModelConfig) (model.BaseChatModel, error) {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   &cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLLM, "init openai model %q", cfg.Model).WithCause(err)
		}
		return m, nil

	case ProviderDeepSeek:
		// DeepSeek speaks the OpenAI-compatible API.
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     baseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   &cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLLM, "init deepseek model %q", cfg.Model).WithCause(err)
		}
		return m, nil

	case ProviderQwen:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
		}
		m, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL:     baseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   &cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLLM, "init qwen model %q", cfg.Model).WithCause(err)
		}
		return m, nil

	case ProviderClaude:
		claudeCfg := &claude.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}
		if cfg.BaseURL != "" {
			claudeCfg.BaseURL = &cfg.BaseURL
		}
		m, err := claude.NewChatModel(ctx, claudeCfg)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLLM, "init claude model %q", cfg.Model).WithCause(err)
		}
		return m, nil

	case ProviderOllama:
		m, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLLM, "init ollama model %q", cfg.Model).WithCause(err)
		}
		return m, nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported llm provider %q", cfg.Provider)
	}
}
