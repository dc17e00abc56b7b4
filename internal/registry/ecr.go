package registry

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/smithy-go"

	"github.com/replicate/kaniko-controller/internal/logging"
)

// codeUnknown is used when a call failed before the provider answered.
const codeUnknown = "Unknown"

// ECRAPI is the subset of the ECR client the probe uses.
type ECRAPI interface {
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

type ECRProbe struct {
	client ECRAPI
	logger *logging.Logger
}

func NewECRProbe(client ECRAPI, logger *logging.Logger) *ECRProbe {
	return &ECRProbe{client: client, logger: logger.Named("ecr")}
}

func (p *ECRProbe) Probe(ctx context.Context, repositoryName string, tag string) (ImageRecord, error) {
	log := p.logger.Sugar()
	log.Debugw("describing image", "repository", repositoryName, "tag", tag)

	out, err := p.client.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repositoryName),
		ImageIds:       []ecrtypes.ImageIdentifier{{ImageTag: aws.String(tag)}},
	})
	if err != nil {
		var imageNotFound *ecrtypes.ImageNotFoundException
		if errors.As(err, &imageNotFound) {
			return ImageRecord{}, notFound(repositoryName, tag, imageNotFound.ErrorCode())
		}
		var repoNotFound *ecrtypes.RepositoryNotFoundException
		if errors.As(err, &repoNotFound) {
			return ImageRecord{}, notFound(repositoryName, tag, repoNotFound.ErrorCode())
		}

		code := codeUnknown
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.ErrorCode()
		}
		log.Warnw("describe images failed", "repository", repositoryName, "tag", tag, "code", code, "error", err)
		return ImageRecord{}, &ProviderError{Code: code, Err: err}
	}

	if len(out.ImageDetails) == 0 {
		log.Debugw("describe images returned no results", "repository", repositoryName, "tag", tag)
		return ImageRecord{}, notFound(repositoryName, tag, "the search worked but returned no images")
	}

	detail := out.ImageDetails[0]
	record := ImageRecord{
		RepositoryName: aws.ToString(detail.RepositoryName),
		Tags:           detail.ImageTags,
		Digest:         aws.ToString(detail.ImageDigest),
	}
	if record.RepositoryName == "" {
		record.RepositoryName = repositoryName
	}
	log.Infow("found image", "repository", record.RepositoryName, "tags", record.Tags, "digest", record.Digest)
	return record, nil
}
