package cli

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

func newLambdaCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve invocations from the AWS Lambda runtime",
		Long: `Serve invocations from the AWS Lambda runtime.

This is also what the root command does when run without arguments inside
Lambda (AWS_LAMBDA_RUNTIME_API is set), so the binary can be deployed as
"bootstrap" on a provided runtime.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveLambda(cmd, opts)
		},
	}
}

func serveLambda(cmd *cobra.Command, opts *options) error {
	h, err := opts.newHandler(cmd.Context())
	if err != nil {
		return err
	}
	opts.startLambda(h.Handle, lambda.WithContext(cmd.Context()))
	return nil
}
