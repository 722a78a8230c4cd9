package embedding

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	ollamaBaseURL      = "http://localhost:11434"
	ollamaEmbed        = "/api/embed"
	ollamaDefaultModel = "nomic-embed-text"
)

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

// OllamaEmbedder calls a local or remote Ollama server.
type OllamaEmbedder struct {
	http       *httpClient
	model      string
	dimensions int
}

// NewOllamaEmbedder creates an Ollama embedder.
func NewOllamaEmbedder(model string, dimensions int, opts ...ClientOption) *OllamaEmbedder {
	if model == "" {
		model = ollamaDefaultModel
	}
	return &OllamaEmbedder{
		http:       newHTTPClient("ollama", ollamaBaseURL, opts),
		model:      model,
		dimensions: dimensions,
	}
}

// Embed returns the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if err := rejectEmpty(t); err != nil {
			return nil, err
		}
	}
	var resp ollamaResponse
	if err := e.http.post(ctx, ollamaEmbed, ollamaRequest{Model: e.model, Input: texts}, &resp, ollamaErrorMessage); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: ollama: %s", ErrProviderUnavailable, resp.Error)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama: got %d embeddings for %d inputs", ErrProviderUnavailable, len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func ollamaErrorMessage(body []byte) string {
	var resp ollamaResponse
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	return resp.Error
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the model identifier.
func (e *OllamaEmbedder) Model() string {
	return e.model
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.http.client.CloseIdleConnections()
	return nil
}
