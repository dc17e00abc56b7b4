// Package waiter polls a build task until its image shows up in the registry
// or the invocation runs out of time.
package waiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/replicate/kaniko-controller/internal/dispatch"
	"github.com/replicate/kaniko-controller/internal/logging"
	"github.com/replicate/kaniko-controller/internal/registry"
)

type State string

const (
	StatePollingTask   State = "POLLING_TASK"
	StateCheckingImage State = "CHECKING_IMAGE"
	StateSuccess       State = "SUCCESS"
	StateTimedOut      State = "TIMED_OUT"
)

// Statuses a task reports once it is stopping or has stopped.
var terminalStatuses = map[string]bool{
	"DEACTIVATING":   true,
	"STOPPING":       true,
	"DEPROVISIONING": true,
	"STOPPED":        true,
	"DELETED":        true,
}

func IsTerminal(status string) bool {
	return terminalStatuses[strings.ToUpper(status)]
}

// TaskStatus reports a task's last known status. found is false when the
// scheduler does not (yet) know about the task.
type TaskStatus interface {
	Status(ctx context.Context, handle dispatch.TaskHandle) (status string, found bool, err error)
}

// Outcome is where the wait ended.
type Outcome struct {
	State      State
	Image      registry.ImageRecord
	Iterations int
	LastStatus string
	Message    string
}

func (o Outcome) Succeeded() bool {
	return o.State == StateSuccess
}

type Waiter struct {
	tasks    TaskStatus
	probe    registry.Probe
	interval time.Duration
	floor    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *logging.Logger
}

type Option func(*Waiter)

// WithSleep replaces the pause between polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Waiter) {
		w.sleep = sleep
	}
}

func New(tasks TaskStatus, probe registry.Probe, interval time.Duration, floor time.Duration, logger *logging.Logger, opts ...Option) *Waiter {
	w := &Waiter{
		tasks:    tasks,
		probe:    probe,
		interval: interval,
		floor:    floor,
		sleep:    sleepContext,
		logger:   logger.Named("waiter"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait polls until the task has stopped and the image is in the registry.
//
// Running out of time is an outcome, not an error: the loop never starts an
// iteration once the deadline's remaining time is at or below the floor, and
// it returns a TIMED_OUT outcome instead. Status query failures, unknown
// tasks, running tasks and registry misses all keep the loop going.
func (w *Waiter) Wait(ctx context.Context, handle dispatch.TaskHandle, repositoryName string, tag string, deadline Deadline) Outcome {
	log := w.logger.Sugar().With("task_arn", handle.TaskARN, "repository", repositoryName, "tag", tag)

	outcome := Outcome{State: StatePollingTask}
	for {
		if remaining := deadline.Remaining(); remaining <= w.floor {
			outcome.State = StateTimedOut
			outcome.Message = fmt.Sprintf("the image hasn't shown up in the allotted time (%s left, floor %s); check whether the timeout needs extending or the build task errored", remaining.Round(time.Millisecond), w.floor)
			log.Warnw("gave up waiting for image", "iterations", outcome.Iterations, "last_status", outcome.LastStatus)
			return outcome
		}

		log.Tracew("sleeping before poll", "iteration", outcome.Iterations)
		outcome.Iterations++
		// Sleep first so the scheduler has a chance to register the task.
		if err := w.sleep(ctx, w.interval); err != nil {
			outcome.State = StateTimedOut
			outcome.Message = fmt.Sprintf("stopped waiting for image: %s", err)
			log.Warnw("wait cancelled", "error", err)
			return outcome
		}

		status, found, err := w.tasks.Status(ctx, handle)
		if err != nil {
			log.Warnw("task status query failed, looping", "error", err)
			continue
		}
		if !found {
			log.Debugw("task not visible yet, looping")
			continue
		}
		outcome.LastStatus = status
		if !IsTerminal(status) {
			log.Debugw("task still running, looping", "status", status)
			continue
		}

		outcome.State = StateCheckingImage
		record, err := w.probe.Probe(ctx, repositoryName, tag)
		if err == nil {
			outcome.State = StateSuccess
			outcome.Image = record
			log.Infow("image is available", "digest", record.Digest, "iterations", outcome.Iterations)
			return outcome
		}
		log.Debugw("task finished but image not found yet, looping", "status", status, "error", err)
		outcome.State = StatePollingTask
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
