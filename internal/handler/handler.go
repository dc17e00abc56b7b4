// Package handler adapts the orchestrator to the Lambda runtime.
package handler

import (
	"context"

	"github.com/aws/aws-lambda-go/lambdacontext"

	builderrors "github.com/replicate/kaniko-controller/internal/errors"
	"github.com/replicate/kaniko-controller/internal/logging"
	"github.com/replicate/kaniko-controller/internal/request"
	"github.com/replicate/kaniko-controller/internal/waiter"
)

type Ensurer interface {
	Ensure(ctx context.Context, req request.BuildRequest, deadline waiter.Deadline) (request.Response, error)
}

type Handler struct {
	ensurer Ensurer
	logger  *logging.Logger
}

func New(ensurer Ensurer, logger *logging.Logger) *Handler {
	return &Handler{ensurer: ensurer, logger: logger.Named("handler")}
}

// Handle serves one invocation. The time budget is the context deadline the
// Lambda runtime sets.
func (h *Handler) Handle(ctx context.Context, req request.BuildRequest) (request.Response, error) {
	log := h.logger.Sugar()
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		log = log.With("aws_request_id", lc.AwsRequestID)
	}

	if req.AdditionalTags == nil {
		req.AdditionalTags = []string{}
	}

	deadline := waiter.FromContext(ctx)
	log.Infow("controller invoked", "repository", req.RepoName, "tag", req.ImageTag, "remaining", deadline.Remaining().String())

	resp, err := h.ensurer.Ensure(ctx, req, deadline)
	if err != nil {
		stage, _ := builderrors.StageOf(err)
		log.Errorw("controller failed", "stage", string(stage), "code", builderrors.Code(err), "error", err)
		return request.Response{}, err
	}
	log.Infow("controller finished", "repository", resp.RepositoryName, "tag", resp.ImageTag, "digest", resp.ImageDigest)
	return resp, nil
}
