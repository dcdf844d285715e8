package artifact

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Backend names the service that serves a model.
type Backend string

const (
	BackendGeminiAPI Backend = "gemini"
	BackendVertexAI  Backend = "vertex"
)

// ErrInvalidManifest marks a manifest that was read but cannot be used.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest describes a model artifact. The file itself is small YAML; the
// weights live behind the backend it names.
type Manifest struct {
	Model      string  `yaml:"model"`
	Backend    Backend `yaml:"backend"`
	Project    string  `yaml:"project"`
	Location   string  `yaml:"location"`
	APIVersion string  `yaml:"api_version"`
	// ContextWindow is the session budget in estimated tokens. Zero means
	// the backend enforces its own limit.
	ContextWindow int `yaml:"context_window"`
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w: %v", ErrInvalidManifest, err)
	}
	if m.Model == "" {
		return nil, fmt.Errorf("parse manifest: %w: model is required", ErrInvalidManifest)
	}
	switch m.Backend {
	case "":
		m.Backend = BackendGeminiAPI
	case BackendGeminiAPI, BackendVertexAI:
	default:
		return nil, fmt.Errorf("parse manifest: %w: unsupported backend %q", ErrInvalidManifest, m.Backend)
	}
	if m.APIVersion == "" {
		m.APIVersion = "v1"
	}
	if m.ContextWindow < 0 {
		return nil, fmt.Errorf("parse manifest: %w: context_window must not be negative", ErrInvalidManifest)
	}
	return &m, nil
}

// ReadManifest reads and parses the manifest at path from src.
func ReadManifest(ctx context.Context, src Source, path string) (*Manifest, error) {
	data, err := src.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ReadManifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("ReadManifest: %s: %w", BaseName(path), err)
	}
	return m, nil
}
