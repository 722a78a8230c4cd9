package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	openAIBaseURL      = "https://api.openai.com/v1"
	openAIEmbeddings   = "/embeddings"
	openAIDefaultModel = "text-embedding-3-small"
)

type openAIRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// OpenAIEmbedder calls the OpenAI embeddings API.
type OpenAIEmbedder struct {
	http       *httpClient
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an OpenAI embedder. dimensions is requested explicitly
// only for text-embedding-3 models, which support shortening.
func NewOpenAIEmbedder(model string, dimensions int, opts ...ClientOption) *OpenAIEmbedder {
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAIEmbedder{
		http:       newHTTPClient("openai", openAIBaseURL, opts),
		model:      model,
		dimensions: dimensions,
	}
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one request. Results follow input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if err := rejectEmpty(t); err != nil {
			return nil, err
		}
	}
	req := openAIRequest{Model: e.model, Input: texts}
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dimensions
	}
	var resp openAIResponse
	if err := e.http.post(ctx, openAIEmbeddings, req, &resp, openAIErrorMessage); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai: got %d embeddings for %d inputs", ErrProviderUnavailable, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	seen := make([]bool, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: openai: embedding index %d out of range", ErrProviderUnavailable, d.Index)
		}
		if seen[d.Index] {
			return nil, fmt.Errorf("%w: openai: embedding index %d repeated", ErrProviderUnavailable, d.Index)
		}
		seen[d.Index] = true
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: openai: no embedding for input %d", ErrProviderUnavailable, i)
		}
	}
	return out, nil
}

func openAIErrorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errResp) != nil || errResp.Error.Message == "" {
		return ""
	}
	if errResp.Error.Type != "" {
		return errResp.Error.Type + ": " + errResp.Error.Message
	}
	return errResp.Error.Message
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the model identifier.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.http.client.CloseIdleConnections()
	return nil
}
