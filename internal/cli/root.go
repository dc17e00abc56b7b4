// Package cli implements the kaniko-controller command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/replicate/kaniko-controller/internal/awsclient"
	"github.com/replicate/kaniko-controller/internal/config"
	"github.com/replicate/kaniko-controller/internal/handler"
	"github.com/replicate/kaniko-controller/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// Set by the Lambda runtime; a bare `bootstrap` with no arguments serves
// invocations when it is present.
const lambdaRuntimeAPIEnv = "AWS_LAMBDA_RUNTIME_API"

type options struct {
	cfg         config.Config
	verbose     bool
	startLambda func(handler any, options ...lambda.Option)
}

func NewRootCommand() (*cobra.Command, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	return newRootCommand(&options{cfg: cfg, startLambda: lambda.StartWithOptions}), nil
}

func newRootCommand(opts *options) *cobra.Command {
	rootCmd := cobra.Command{
		Use:     "kaniko-controller",
		Short:   "Ensure a container image exists by building it with kaniko on ECS",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose && os.Getenv("KANIKO_CONTROLLER_LOG_LEVEL") == "" {
				_ = os.Setenv("KANIKO_CONTROLLER_LOG_LEVEL", "debug")
			}
			cmd.SilenceUsage = true
		},
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Getenv(lambdaRuntimeAPIEnv) != "" {
				return serveLambda(cmd, opts)
			}
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	addConfigFlags(rootCmd.PersistentFlags(), &opts.cfg)

	rootCmd.AddCommand(
		newLambdaCommand(opts),
		newInvokeCommand(opts),
	)

	return &rootCmd
}

func addConfigFlags(flags *pflag.FlagSet, cfg *config.Config) {
	flags.StringVar(&cfg.Registry, "registry", cfg.Registry, `Registry probe to use, "ecr" or "oci"`)
	flags.StringVar(&cfg.RegistryHost, "registry-host", cfg.RegistryHost, "Registry host for the oci probe, e.g. localhost:5000")
	flags.StringVar(&cfg.StagingDir, "staging-dir", cfg.StagingDir, "Scratch directory for repackaging source archives")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Time between build task status checks")
	flags.DurationVar(&cfg.DeadlineFloor, "deadline-floor", cfg.DeadlineFloor, "Stop polling once less than this much time remains")
	flags.StringVar(&cfg.ContainerName, "container-name", cfg.ContainerName, "Container in the task definition that runs kaniko")
	flags.StringVar(&cfg.LocalStorageDir, "local-storage", cfg.LocalStorageDir, "Read and write source archives under this directory instead of S3")
}

func (o *options) newHandler(ctx context.Context) (*handler.Handler, error) {
	logger := logging.New("kaniko-controller")

	awsCfg, err := awsclient.LoadConfig(ctx, o.cfg)
	if err != nil {
		return nil, err
	}
	orch, err := handler.Assemble(o.cfg, awsclient.New(awsCfg, o.cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("assembling controller: %w", err)
	}
	return handler.New(orch, logger), nil
}
