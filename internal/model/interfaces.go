package model

import (
	"context"

	"github.com/talemachine/talemachine/internal/model/contract"
)

// Provider is one chat-completion backend. The agent loop and the entity
// extractor both talk through this interface.
type Provider interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Name() string
}
