// Package embed turns text into vectors for the vector stores.
package embed

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	genai "google.golang.org/genai"
)

// Embedder is the langchaingo embedder contract, shared by every backend.
type Embedder = embeddings.Embedder

// geminiClient adapts genai to langchaingo's EmbedderClient.
type geminiClient struct {
	cli   *genai.Client
	model string
}

func (g *geminiClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	resp, err := g.cli.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{})
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// NewGemini returns a batching embedder backed by the Gemini embedding API.
func NewGemini(cli *genai.Client, model string) (Embedder, error) {
	return embeddings.NewEmbedder(&geminiClient{cli: cli, model: model},
		embeddings.WithBatchSize(100),
		embeddings.WithStripNewLines(false),
	)
}
