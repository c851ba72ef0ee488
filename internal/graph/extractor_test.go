package graph

import (
	"context"
	"testing"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	responses []string
	calls     int
	lastReq   contract.CompletionRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	p.lastReq = req
	content := p.responses[p.calls]
	p.calls++
	return &contract.CompletionResponse{Content: content}, nil
}

func TestExtractParsesAndFilters(t *testing.T) {
	provider := &scriptedProvider{responses: []string{`{
		"nodes": [
			{"label": "Person", "name": "Alice", "properties": {"role": "Protagonist"}},
			{"label": "Dragon", "name": "Smaug"},
			{"label": "Location", "name": "Elmwood Park"}
		],
		"relationships": [
			{"source_label": "Person", "source_name": "Alice", "type": "VISITS", "target_label": "Location", "target_name": "Elmwood Park"},
			{"source_label": "Person", "source_name": "Alice", "type": "RIDES", "target_label": "Dragon", "target_name": "Smaug"}
		]
	}`}}

	extractor := NewModelExtractor(provider, "test-model")
	g, err := extractor.Extract(context.Background(), "some chapter text")
	require.NoError(t, err)

	// "Dragon" is not in the vocabulary, and with it both the RIDES
	// relationship and the invented type go away.
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "Alice", g.Nodes[0].Name)
	assert.Equal(t, "Elmwood Park", g.Nodes[1].Name)
	require.Len(t, g.Relationships, 1)
	assert.Equal(t, "VISITS", g.Relationships[0].Type)
}

func TestExtractHandlesCodeFences(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"```json\n{\"nodes\":[{\"label\":\"Person\",\"name\":\"Bob\"}],\"relationships\":[]}\n```"}}

	extractor := NewModelExtractor(provider, "test-model")
	g, err := extractor.Extract(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "Bob", g.Nodes[0].Name)
}

func TestExtractRejectsMalformedOutput(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"Sure! Here are the entities I found: Alice and Bob."}}

	extractor := NewModelExtractor(provider, "test-model")
	_, err := extractor.Extract(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidModelOutput)
}

func TestGenerateCypherRejectsWriteClauses(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"MATCH (n) DELETE n"}}

	extractor := NewModelExtractor(provider, "test-model")
	_, err := extractor.GenerateCypher(context.Background(), "schema", "wipe everything", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidModelOutput)
}

func TestGenerateCypherStripsFences(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"```cypher\nMATCH (p:Person) RETURN p.name LIMIT 5\n```"}}

	extractor := NewModelExtractor(provider, "test-model")
	query, err := extractor.GenerateCypher(context.Background(), "schema", "who is in the story?", 5)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (p:Person) RETURN p.name LIMIT 5", query)
}

func TestExtractPromptCarriesVocabulary(t *testing.T) {
	provider := &scriptedProvider{responses: []string{`{"nodes":[],"relationships":[]}`}}

	extractor := NewModelExtractor(provider, "test-model")
	_, err := extractor.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Contains(t, provider.lastReq.System, "Person")
	assert.Contains(t, provider.lastReq.System, "TELEPORTS_TO")
	assert.Equal(t, "test-model", provider.lastReq.Model)
}
