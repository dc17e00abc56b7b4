// Package registry answers whether a tagged image already exists.
package registry

import (
	"context"
	"errors"
	"fmt"
)

// ErrImageNotFound means the registry has no image for the repository and tag.
var ErrImageNotFound = errors.New("image not found")

// ImageRecord describes an image the registry reported.
type ImageRecord struct {
	RepositoryName string
	Tags           []string
	Digest         string
}

// Tag returns the first tag the registry reported, or "".
func (r ImageRecord) Tag() string {
	if len(r.Tags) == 0 {
		return ""
	}
	return r.Tags[0]
}

// Probe looks up a single tag. Implementations return ErrImageNotFound when the
// tag (or repository) does not exist and a *ProviderError for any other
// failure. Probes never retry.
type Probe interface {
	Probe(ctx context.Context, repositoryName string, tag string) (ImageRecord, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context, repositoryName string, tag string) (ImageRecord, error)

func (f ProbeFunc) Probe(ctx context.Context, repositoryName string, tag string) (ImageRecord, error) {
	return f(ctx, repositoryName, tag)
}

// ProviderError is a registry call that failed for a reason other than the
// image not existing.
type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("registry error %s: %s", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrImageNotFound)
}

// ProviderCode returns the provider error code carried by err, or "".
func ProviderCode(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

func notFound(repositoryName string, tag string, reason string) error {
	return fmt.Errorf("%s:%s: %s: %w", repositoryName, tag, reason, ErrImageNotFound)
}
