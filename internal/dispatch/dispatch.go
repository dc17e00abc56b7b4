// Package dispatch submits kaniko build tasks to ECS.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"

	"github.com/replicate/kaniko-controller/internal/logging"
)

// ErrNoTask means RunTask succeeded but started nothing.
var ErrNoTask = errors.New("run task started no tasks")

// ECSAPI is the subset of the ECS client the dispatcher uses.
type ECSAPI interface {
	RunTask(ctx context.Context, params *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error)
}

// Network is where the build task runs.
type Network struct {
	SubnetID        string
	SecurityGroupID string
}

// Spec is everything a single build task needs.
type Spec struct {
	TaskDefinition  string
	Cluster         string
	Network         Network
	ContextLocation string
	RepositoryURI   string
	PrimaryTag      string
	AdditionalTags  []string
}

// TaskHandle identifies a submitted task.
type TaskHandle struct {
	TaskARN string
	Cluster string
}

type Dispatcher struct {
	client        ECSAPI
	containerName string
	launchType    ecstypes.LaunchType
	logger        *logging.Logger
}

func New(client ECSAPI, containerName string, launchType string, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		client:        client,
		containerName: containerName,
		launchType:    ecstypes.LaunchType(launchType),
		logger:        logger.Named("dispatch"),
	}
}

// BuildCommand renders the kaniko arguments: the build context, then one
// destination per tag with the primary tag first.
func BuildCommand(contextLocation string, repositoryURI string, primaryTag string, additionalTags []string) []string {
	tags := append([]string{primaryTag}, additionalTags...)
	command := []string{"--context", contextLocation}
	for _, destination := range lo.Map(tags, func(tag string, _ int) string { return repositoryURI + ":" + tag }) {
		command = append(command, "--destination", destination)
	}
	return command
}

// Dispatch starts exactly one build task. Failures are not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, spec Spec) (TaskHandle, error) {
	log := d.logger.Sugar()

	command := BuildCommand(spec.ContextLocation, spec.RepositoryURI, spec.PrimaryTag, spec.AdditionalTags)
	log.Infow("running build task",
		"task_definition", spec.TaskDefinition,
		"cluster", spec.Cluster,
		"command", strings.Join(command, " "),
	)

	out, err := d.client.RunTask(ctx, &ecs.RunTaskInput{
		TaskDefinition: aws.String(spec.TaskDefinition),
		Cluster:        aws.String(spec.Cluster),
		Count:          aws.Int32(1),
		LaunchType:     d.launchType,
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        []string{spec.Network.SubnetID},
				SecurityGroups: []string{spec.Network.SecurityGroupID},
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		},
		Overrides: &ecstypes.TaskOverride{
			ContainerOverrides: []ecstypes.ContainerOverride{{
				Name:    aws.String(d.containerName),
				Command: command,
			}},
		},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			log.Errorw("run task failed", "code", apiErr.ErrorCode(), "error", err)
		}
		return TaskHandle{}, fmt.Errorf("running task %s on %s: %w", spec.TaskDefinition, spec.Cluster, err)
	}

	if len(out.Failures) > 0 {
		reasons := lo.Map(out.Failures, func(f ecstypes.Failure, _ int) string {
			return fmt.Sprintf("%s: %s", aws.ToString(f.Arn), aws.ToString(f.Reason))
		})
		return TaskHandle{}, fmt.Errorf("running task %s on %s: %s", spec.TaskDefinition, spec.Cluster, strings.Join(reasons, "; "))
	}
	if len(out.Tasks) == 0 || aws.ToString(out.Tasks[0].TaskArn) == "" {
		return TaskHandle{}, fmt.Errorf("running task %s on %s: %w", spec.TaskDefinition, spec.Cluster, ErrNoTask)
	}

	handle := TaskHandle{TaskARN: aws.ToString(out.Tasks[0].TaskArn), Cluster: spec.Cluster}
	log.Infow("build task started", "task_arn", handle.TaskARN)
	return handle, nil
}
