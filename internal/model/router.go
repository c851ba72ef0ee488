package model

import (
	"fmt"

	"github.com/talemachine/talemachine/internal/config"
	"github.com/talemachine/talemachine/internal/model/providers/anthropic"
	"github.com/talemachine/talemachine/internal/model/providers/gemini"
	"github.com/talemachine/talemachine/internal/model/providers/openai"
)

// NewProvider builds the configured backend. The original ran on Gemini;
// openai here also covers any OpenAI-compatible endpoint via base_url.
func NewProvider(cfg config.ModelsConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return openai.New(cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return anthropic.New(cfg.APIKey), nil
	case "gemini":
		return gemini.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
