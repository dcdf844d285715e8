// Package artifact locates model artifacts on local disk or in Google Cloud
// Storage and reads their manifests.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Source reads artifacts from one kind of location.
type Source interface {
	Exists(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) ([]byte, error)
}

// Local reads artifacts from the filesystem.
type Local struct{}

// Exists reports whether path names a regular, non-empty file.
func (Local) Exists(_ context.Context, p string) (bool, error) {
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat artifact %q: %w", p, err)
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

func (Local) Read(_ context.Context, p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read artifact %q: %w", p, err)
	}
	return data, nil
}

// GCS reads artifacts addressed as gs://bucket/object.
type GCS struct {
	client *storage.Client
}

// NewGCS wraps an existing storage client. The caller owns the client.
func NewGCS(client *storage.Client) *GCS {
	return &GCS{client: client}
}

// Exists checks object attributes without downloading the artifact.
func (g *GCS) Exists(ctx context.Context, uri string) (bool, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return false, err
	}
	_, err = g.client.Bucket(bucket).Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("GCS.Exists: reading attrs %s/%s: %w", bucket, object, err)
	}
	return true, nil
}

func (g *GCS) Read(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	rc, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCS.Read: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("GCS.Read: reading bytes: %w", err)
	}
	return data, nil
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// BaseName returns the file name of a local path or GCS URI.
// e.g., "gs://bucket/models/extractor.yaml" → "extractor.yaml"
func BaseName(p string) string {
	if _, object, err := ParseGCSURI(p); err == nil {
		return path.Base(object)
	}
	return path.Base(p)
}

// Resolver picks the GCS source for gs:// paths and the local source otherwise.
type Resolver struct {
	local Source
	gcs   Source
}

// NewResolver builds a resolver. gcs may be nil when cloud artifacts are not used.
func NewResolver(gcs Source) *Resolver {
	return &Resolver{local: Local{}, gcs: gcs}
}

func (r *Resolver) source(p string) (Source, error) {
	if strings.HasPrefix(p, "gs://") {
		if r.gcs == nil {
			return nil, fmt.Errorf("no GCS source configured for %s", p)
		}
		return r.gcs, nil
	}
	return r.local, nil
}

func (r *Resolver) Exists(ctx context.Context, p string) (bool, error) {
	src, err := r.source(p)
	if err != nil {
		return false, err
	}
	return src.Exists(ctx, p)
}

func (r *Resolver) Read(ctx context.Context, p string) ([]byte, error) {
	src, err := r.source(p)
	if err != nil {
		return nil, err
	}
	return src.Read(ctx, p)
}
