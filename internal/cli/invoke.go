package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/replicate/kaniko-controller/internal/request"
)

// Matches the longest a Lambda invocation may run.
const defaultInvokeTimeout = 15 * time.Minute

func newInvokeCommand(opts *options) *cobra.Command {
	var eventPath string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run a single invocation locally from an event file",
		Long: `Run a single invocation locally from an event file.

The event is the JSON (or YAML) payload the Lambda would receive. Pass "-"
to read it from stdin. The response is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, opts, eventPath, timeout)
		},
	}
	cmd.Flags().StringVarP(&eventPath, "event", "e", "", `Path to the event payload, or "-" for stdin`)
	cmd.Flags().DurationVar(&timeout, "timeout", defaultInvokeTimeout, "Time budget for the invocation, 0 for none")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

func invoke(cmd *cobra.Command, opts *options, eventPath string, timeout time.Duration) error {
	req, err := readEvent(cmd.InOrStdin(), eventPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	h, err := opts.newHandler(ctx)
	if err != nil {
		return err
	}
	resp, err := h.Handle(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func readEvent(stdin io.Reader, eventPath string) (request.BuildRequest, error) {
	if eventPath == "-" {
		return request.Read(stdin)
	}

	path, err := homedir.Expand(eventPath)
	if err != nil {
		return request.BuildRequest{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return request.BuildRequest{}, fmt.Errorf("opening event: %w", err)
	}
	defer f.Close()
	return request.Read(f)
}
