package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all codetour configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	OutputDir  string `json:"output_dir"`
	LogLevel   string `json:"log_level"`

	GitHubToken   string `json:"github_token"`
	GitHubBaseURL string `json:"github_base_url"`

	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
	LLMAPIKey   string `json:"llm_api_key"`
	LLMBaseURL  string `json:"llm_base_url"`

	UseCache     bool `json:"use_cache"`
	CacheTTLDays int  `json:"cache_ttl_days"`
	Scheduler    bool `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:   ":4200",
		DBPath:       filepath.Join(codetourDir(), "codetour.db"),
		OutputDir:    "output",
		LogLevel:     "info",
		LLMProvider:  "openai",
		LLMModel:     "gpt-4o",
		UseCache:     true,
		CacheTTLDays: 30,
		Scheduler:    true,
	}
}

func codetourDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codetour"
	}
	return filepath.Join(home, ".codetour")
}

func settingsPath() string {
	return filepath.Join(codetourDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CODETOUR_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CODETOUR_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CODETOUR_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("CODETOUR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv("CODETOUR_GITHUB_BASE_URL"); v != "" {
		cfg.GitHubBaseURL = v
	}
	if v := os.Getenv("CODETOUR_LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := os.Getenv("CODETOUR_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("CODETOUR_LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("CODETOUR_LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("CODETOUR_CACHE_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheTTLDays = n
		}
	}
	if v := os.Getenv("CODETOUR_USE_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseCache = b
		}
	}
	if v := os.Getenv("CODETOUR_SCHEDULER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler = b
		}
	}

	return cfg
}
