package handler

import (
	"fmt"

	"github.com/replicate/kaniko-controller/internal/awsclient"
	"github.com/replicate/kaniko-controller/internal/config"
	"github.com/replicate/kaniko-controller/internal/dispatch"
	"github.com/replicate/kaniko-controller/internal/logging"
	"github.com/replicate/kaniko-controller/internal/orchestrator"
	"github.com/replicate/kaniko-controller/internal/registry"
	"github.com/replicate/kaniko-controller/internal/repackage"
	"github.com/replicate/kaniko-controller/internal/storage"
	"github.com/replicate/kaniko-controller/internal/waiter"
)

// Assemble wires the orchestrator's components from cfg and the AWS clients.
func Assemble(cfg config.Config, clients *awsclient.Clients, logger *logging.Logger) (*orchestrator.Orchestrator, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var probe registry.Probe
	switch cfg.Registry {
	case config.RegistryOCI:
		probe = registry.NewOCIProbe(cfg.RegistryHost, logger)
	default:
		probe = registry.NewECRProbe(clients.ECR, logger)
	}

	var store storage.ObjectStore
	if cfg.LocalStorageDir != "" {
		local, err := storage.NewLocalStorage(cfg.LocalStorageDir, logger)
		if err != nil {
			return nil, err
		}
		store = local
	} else {
		store = storage.NewS3Store(clients.S3, logger)
	}

	repackager := repackage.New(store, cfg.StagingDir, logger)
	dispatcher := dispatch.New(clients.ECS, cfg.ContainerName, cfg.LaunchType, logger)
	w := waiter.New(waiter.NewECSStatus(clients.ECS), probe, cfg.PollInterval, cfg.DeadlineFloor, logger)

	return orchestrator.New(probe, repackager, dispatcher, w, logger), nil
}
