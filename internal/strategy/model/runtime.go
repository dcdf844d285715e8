package model

import "context"

// Runtime loads a model artifact into a fresh inference session.
type Runtime interface {
	// Load opens the artifact at path. Loading may take seconds.
	Load(ctx context.Context, path string) (Session, error)
}

// Session is one stateful inference context. Context accumulates across
// Generate calls until the session is closed.
type Session interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}

// ArtifactChecker answers whether a usable artifact exists at a path.
// Downloading and retention are handled elsewhere.
type ArtifactChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}
