package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crawlmind/internal/ai"
	"crawlmind/internal/knowledge"
)

const (
	// NoContextMarker stands in for the context when retrieval found nothing.
	NoContextMarker = "No relevant context found."

	answerSystemPrompt = "You are CrawlMind, an assistant that answers questions about documents and web pages the user has added. " +
		"Answer only from the provided context. If the context does not contain the answer, say that you don't know. " +
		"If the user says goodbye, acknowledge it and close the conversation politely. " +
		"Answer in 2-3 clear sentences."
)

// Embedder turns one text into a vector using the caller's credential.
type Embedder interface {
	Embed(ctx context.Context, text, credential string) ([]float32, error)
}

// Generator produces an answer to question grounded in contextText.
type Generator interface {
	Generate(ctx context.Context, contextText, question, credential string) (string, error)
}

// EmbeddingClient adapts the OpenAI-compatible client to Embedder.
type EmbeddingClient struct {
	client *ai.OpenAICompatibleClient
	cfg    ai.EmbeddingConfig
}

func NewEmbeddingClient(client *ai.OpenAICompatibleClient, cfg ai.EmbeddingConfig) *EmbeddingClient {
	return &EmbeddingClient{client: client, cfg: cfg}
}

func (e *EmbeddingClient) Embed(ctx context.Context, text, credential string) ([]float32, error) {
	cfg := e.cfg
	if credential != "" {
		cfg.APIKey = credential
	}
	vec, err := e.client.Embed(ctx, cfg, text)
	if err != nil {
		if errors.Is(err, ai.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	return vec, nil
}

// AnswerGenerator adapts the OpenAI-compatible chat client to Generator.
// Each call is independent; prior turns are not sent.
type AnswerGenerator struct {
	client *ai.OpenAICompatibleClient
	cfg    ai.ChatConfig
}

func NewAnswerGenerator(client *ai.OpenAICompatibleClient, cfg ai.ChatConfig) *AnswerGenerator {
	return &AnswerGenerator{client: client, cfg: cfg}
}

func (g *AnswerGenerator) Generate(ctx context.Context, contextText, question, credential string) (string, error) {
	cfg := g.cfg
	if credential != "" {
		cfg.APIKey = credential
	}
	messages := []ai.ChatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: "Context:\n" + contextText + "\n\nQuestion: " + question},
	}
	answer, err := g.client.Complete(ctx, cfg, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return strings.TrimSpace(answer), nil
}

// BuildContext joins retrieved chunk texts for the prompt.
func BuildContext(chunks []knowledge.ScoredChunk) string {
	if len(chunks) == 0 {
		return NoContextMarker
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n")
}
