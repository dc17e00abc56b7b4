// Package orchestrator ensures a tagged image exists, building it with kaniko
// when it does not.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/replicate/kaniko-controller/internal/dispatch"
	builderrors "github.com/replicate/kaniko-controller/internal/errors"
	"github.com/replicate/kaniko-controller/internal/logging"
	"github.com/replicate/kaniko-controller/internal/registry"
	"github.com/replicate/kaniko-controller/internal/repackage"
	"github.com/replicate/kaniko-controller/internal/request"
	"github.com/replicate/kaniko-controller/internal/waiter"
)

const finalCheckTimeout = 10 * time.Second

type Repackager interface {
	Repackage(ctx context.Context, bucket string, sourceKey string) (repackage.Artifact, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, spec dispatch.Spec) (dispatch.TaskHandle, error)
}

type Waiter interface {
	Wait(ctx context.Context, handle dispatch.TaskHandle, repositoryName string, tag string, deadline waiter.Deadline) waiter.Outcome
}

type Orchestrator struct {
	probe      registry.Probe
	repackager Repackager
	dispatcher Dispatcher
	waiter     Waiter
	logger     *logging.Logger
}

func New(probe registry.Probe, repackager Repackager, dispatcher Dispatcher, waiter Waiter, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		probe:      probe,
		repackager: repackager,
		dispatcher: dispatcher,
		waiter:     waiter,
		logger:     logger.Named("orchestrator"),
	}
}

// Ensure returns the image for req's repository and primary tag, building it
// first if the registry does not have it.
//
// A waiter timeout is tolerated and followed by one last registry check; that
// final check failing is fatal. Every returned error is a
// *builderrors.StageError.
func (o *Orchestrator) Ensure(ctx context.Context, req request.BuildRequest, deadline waiter.Deadline) (request.Response, error) {
	log := o.logger.Sugar().With(
		"invocation_id", uuid.NewString(),
		"repository", req.RepoName,
		"tag", req.ImageTag,
	)

	if err := req.Validate(); err != nil {
		log.Errorw("invalid build request", "error", err)
		return request.Response{}, builderrors.InvalidRequest(err)
	}
	log.Infow("ensuring image", "destination", req.Destination(), "tags", req.Tags(), "bucket", req.S3Bucket, "key", req.CodeLocation)

	record, err := o.probe.Probe(ctx, req.RepoName, req.ImageTag)
	if err == nil {
		log.Infow("image found before building, exiting cleanly", "digest", record.Digest)
		return response(record, req.ImageTag), nil
	}
	if registry.IsNotFound(err) {
		log.Infow("image not found, building")
	} else {
		log.Warnw("image pre-check failed, building anyway", "code", registry.ProviderCode(err), "error", err)
	}

	artifact, err := o.repackager.Repackage(ctx, req.S3Bucket, req.CodeLocation)
	if err != nil {
		log.Errorw("repackaging failed", "error", err)
		return request.Response{}, builderrors.RepackagingFailed(err)
	}

	handle, err := o.dispatcher.Dispatch(ctx, dispatch.Spec{
		TaskDefinition:  req.TaskDefinitionARN,
		Cluster:         req.ClusterName,
		Network:         dispatch.Network{SubnetID: req.SubnetID, SecurityGroupID: req.SecurityGroupID},
		ContextLocation: artifact.Location(),
		RepositoryURI:   req.RepositoryURI,
		PrimaryTag:      req.ImageTag,
		AdditionalTags:  req.AdditionalTags,
	})
	if err != nil {
		log.Errorw("dispatch failed", "error", err)
		return request.Response{}, builderrors.DispatchFailed(err)
	}
	log = log.With("task_arn", handle.TaskARN)

	outcome := o.waiter.Wait(ctx, handle, req.RepoName, req.ImageTag, deadline)
	if !outcome.Succeeded() {
		log.Warnw("waiting for image did not succeed, checking registry anyway",
			"state", outcome.State,
			"iterations", outcome.Iterations,
			"last_status", outcome.LastStatus,
			"message", outcome.Message,
		)
	}

	// The final lookup runs even if ctx expired while waiting.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalCheckTimeout)
	defer cancel()
	record, err = o.probe.Probe(finalCtx, req.RepoName, req.ImageTag)
	if err != nil {
		log.Errorw("image not found after build", "code", registry.ProviderCode(err), "error", err)
		return request.Response{}, builderrors.VerificationFailed(err)
	}

	log.Infow("image found, exiting cleanly", "digest", record.Digest)
	return response(record, req.ImageTag), nil
}

func response(record registry.ImageRecord, requestedTag string) request.Response {
	tag := record.Tag()
	if tag == "" {
		tag = requestedTag
	}
	return request.NewResponse(record.RepositoryName, tag, record.Digest)
}
