package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/ini.v1"

	"github.com/kepler-ops/contributor-redact/pkg/config"
	"github.com/kepler-ops/contributor-redact/pkg/model"
	"github.com/kepler-ops/contributor-redact/pkg/verify"
)

// NewVerifyCmd creates the verify command.
func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check whether a contributor can still access task work",
		Long: `Verify fetches work from a task as the given contributor and reports
whether access is still active. This is a point-in-time probe against
the work distribution API; a still-active contributor is reported as a
warning, not treated as a failure.

Example:
  redact verify --worker-id 12345 \
    --job-url "https://work.example.com/tasks/abc123?secret=s3cret"`,
		Args: cobra.NoArgs,
		RunE: runVerify,
	}

	cmd.Flags().String("job-url", "", "Task URL containing the job id and secret")
	cmd.Flags().String("worker-id", "", "Contributor ID to probe as")
	cmd.Flags().Bool("commit", false, "Also attempt a judgment commit")
	_ = cmd.MarkFlagRequired("job-url")
	_ = cmd.MarkFlagRequired("worker-id")

	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	// Verification only needs its own section, not store credentials
	cfgPath, _ := cmd.Flags().GetString("config")
	file := ini.Empty()
	if cfgPath != "" {
		f, err := ini.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", cfgPath, err)
		}
		file = f
	}
	verifyCfg := config.LoadVerificationConfig(file.Section("verification"))

	jobURL, _ := cmd.Flags().GetString("job-url")
	workerID, _ := cmd.Flags().GetString("worker-id")
	commit, _ := cmd.Flags().GetBool("commit")

	checker := verify.NewChecker(verifyCfg)
	outcome := checker.Verify(cmd.Context(), model.Contributor{ID: workerID}, jobURL, commit)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "verification: %s\n", outcome.Status)
	for _, note := range outcome.Notes {
		fmt.Fprintf(out, "  %s\n", note)
	}
	for _, e := range outcome.Errors {
		fmt.Fprintf(out, "  %s: %s\n", e.Target, e.Message)
	}

	if outcome.Status == model.StatusFailed {
		return fmt.Errorf("verification failed for worker %s", workerID)
	}
	return nil
}
