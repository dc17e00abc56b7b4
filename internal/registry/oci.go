package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/replicate/kaniko-controller/internal/logging"
)

// OCIProbe checks a registry that speaks the distribution API, for when the
// build pushes somewhere other than ECR.
type OCIProbe struct {
	host    string
	options []remote.Option
	logger  *logging.Logger
}

func NewOCIProbe(host string, logger *logging.Logger, options ...remote.Option) *OCIProbe {
	return &OCIProbe{
		host:    host,
		options: options,
		logger:  logger.Named("oci"),
	}
}

func (p *OCIProbe) Probe(ctx context.Context, repositoryName string, tag string) (ImageRecord, error) {
	log := p.logger.Sugar()

	imageRef := fmt.Sprintf("%s/%s:%s", p.host, repositoryName, tag)
	ref, err := name.ParseReference(imageRef, name.Insecure)
	if err != nil {
		return ImageRecord{}, &ProviderError{Code: "InvalidReference", Err: fmt.Errorf("parsing reference: %w", err)}
	}

	log.Debugw("fetching descriptor", "ref", ref.String())
	opts := append([]remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	}, p.options...)
	desc, err := remote.Head(ref, opts...)
	if err != nil {
		if isNotFound(err) {
			return ImageRecord{}, notFound(repositoryName, tag, "manifest unknown")
		}
		code := transportCode(err)
		log.Warnw("fetching descriptor failed", "ref", ref.String(), "code", code, "error", err)
		return ImageRecord{}, &ProviderError{Code: code, Err: fmt.Errorf("fetching descriptor: %w", err)}
	}

	return ImageRecord{
		RepositoryName: repositoryName,
		Tags:           []string{tag},
		Digest:         desc.Digest.String(),
	}, nil
}

// HEAD responses carry no error body, so a bare 404 counts as not found too.
func isNotFound(err error) bool {
	var e *transport.Error
	if !errors.As(err, &e) {
		return false
	}
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	for _, diagnosticErr := range e.Errors {
		if diagnosticErr.Code == transport.ManifestUnknownErrorCode || diagnosticErr.Code == transport.NameUnknownErrorCode {
			return true
		}
	}
	return false
}

func transportCode(err error) string {
	var e *transport.Error
	if !errors.As(err, &e) {
		return codeUnknown
	}
	if len(e.Errors) > 0 {
		return string(e.Errors[0].Code)
	}
	return strconv.Itoa(e.StatusCode)
}
