package model

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/dvloznov/alertledger/internal/artifact"
)

// GenAIRuntime serves sessions from a Gemini model described by an artifact
// manifest.
type GenAIRuntime struct {
	source artifact.Source
}

// NewGenAIRuntime reads manifests through src.
func NewGenAIRuntime(src artifact.Source) *GenAIRuntime {
	return &GenAIRuntime{source: src}
}

// Load reads the manifest at path and opens a client for the model it names.
func (r *GenAIRuntime) Load(ctx context.Context, path string) (Session, error) {
	manifest, err := artifact.ReadManifest(ctx, r.source, path)
	if errors.Is(err, artifact.ErrInvalidManifest) {
		return nil, &InitError{Reason: FailureUnsupportedEnvironment, Path: path, Err: err}
	}
	if err != nil {
		return nil, &InitError{Reason: FailureMissingArtifact, Path: path, Err: err}
	}

	cfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: manifest.APIVersion},
	}
	if manifest.Backend == artifact.BackendVertexAI {
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = manifest.Project
		cfg.Location = manifest.Location
	} else {
		cfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &genaiSession{
		client: client,
		model:  manifest.Model,
		window: manifest.ContextWindow,
	}, nil
}

// genaiSession keeps the conversation history and resends it on every call,
// so the context grows until the session is reset.
type genaiSession struct {
	client  *genai.Client
	model   string
	window  int
	history []*genai.Content
	tokens  int
}

func (s *genaiSession) Generate(ctx context.Context, prompt string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("genai session is closed")
	}
	promptTokens := EstimateTokens(prompt)
	if s.window > 0 && s.tokens+promptTokens > s.window {
		return "", fmt.Errorf("%w: %d tokens in session, window %d", ErrContextOverflow, s.tokens+promptTokens, s.window)
	}

	contents := append(s.history, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	})
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	reply := resp.Text()
	s.history = append(contents, &genai.Content{
		Role:  "model",
		Parts: []*genai.Part{{Text: reply}},
	})
	s.tokens += promptTokens + EstimateTokens(reply)
	return reply, nil
}

func (s *genaiSession) Close() error {
	s.client = nil
	s.history = nil
	s.tokens = 0
	return nil
}

var _ Runtime = (*GenAIRuntime)(nil)
