package waiter

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"

	"github.com/replicate/kaniko-controller/internal/dispatch"
)

// ECSTasksAPI is the subset of the ECS client used to poll task status.
type ECSTasksAPI interface {
	DescribeTasks(ctx context.Context, params *ecs.DescribeTasksInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error)
}

// ECSStatus reads a task's lastStatus from DescribeTasks.
type ECSStatus struct {
	client ECSTasksAPI
}

func NewECSStatus(client ECSTasksAPI) *ECSStatus {
	return &ECSStatus{client: client}
}

func (s *ECSStatus) Status(ctx context.Context, handle dispatch.TaskHandle) (string, bool, error) {
	out, err := s.client.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(handle.Cluster),
		Tasks:   []string{handle.TaskARN},
	})
	if err != nil {
		return "", false, fmt.Errorf("describing task %s: %w", handle.TaskARN, err)
	}
	if len(out.Tasks) == 0 {
		return "", false, nil
	}
	return aws.ToString(out.Tasks[0].LastStatus), true, nil
}
