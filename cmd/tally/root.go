package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yairfalse/tally/internal/plugin/aws"
)

var (
	version = "0.1.0"

	flags   runFlags
	rootCmd = &cobra.Command{
		Use:   "tally",
		Short: "AWS resource inventory report",
		Long: `Tally - AWS resource inventory report

Tally lists the resources of one AWS account and region with read-only
describe and list calls, and writes them into a single workbook with one
sheet per resource category.

Credentials come from the AWS SDK default chain: environment, shared
config files, SSO, or instance roles.`,
		Example: `  tally                                   # All categories, default workbook
  tally --region eu-west-1                # Another region
  tally --categories EC2,RDS,S3           # Only these categories
  tally --config tally.toml -o inv.xlsx   # Config file and output path`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), flags, newAWSSource)
		},
	}
)

// Execute runs the root command
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, diagnose(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Tally {{.Version}} - AWS resource inventory report
`)

	f := rootCmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "Config file (.toml, .yaml or .yml)")
	f.StringVarP(&flags.output, "output", "o", "", "Workbook path (default aws_services_report.xlsx)")
	f.StringVar(&flags.region, "region", "", "AWS region (default from the SDK chain)")
	f.StringSliceVar(&flags.categories, "categories", nil, "Only collect these categories, in this order")
	f.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
}

// diagnose maps a fatal error to the line printed before exiting.
func diagnose(err error) string {
	switch {
	case errors.Is(err, aws.ErrNoCredentials):
		return "Error: No AWS credentials found."
	case errors.Is(err, aws.ErrIncompleteCredentials):
		return "Error: Incomplete AWS credentials configuration."
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}
