package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/analytics"
	"github.com/kepler-ops/contributor-redact/pkg/cache"
	"github.com/kepler-ops/contributor-redact/pkg/config"
	"github.com/kepler-ops/contributor-redact/pkg/connector"
	"github.com/kepler-ops/contributor-redact/pkg/model"
	"github.com/kepler-ops/contributor-redact/pkg/pipeline"
	"github.com/kepler-ops/contributor-redact/pkg/relational"
	"github.com/kepler-ops/contributor-redact/pkg/resolver"
	"github.com/kepler-ops/contributor-redact/pkg/search"
	"github.com/kepler-ops/contributor-redact/pkg/storage"
	"github.com/kepler-ops/contributor-redact/pkg/verify"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Redact one or more contributors across all stores",
		Long: `Run resolves a contributor's project associations, then masks or
deletes their PII store by store. Input is a single contributor
(--contributor-id with --email), a CSV batch (--csv), or, with neither,
contributors marked PENDING_DELETION in the database.

The default mode is a dry run that only reports what would change.
Pass --execute to mutate; a CSV backup of the input identities is
written before the first mutation.

Examples:
  # Preview a single contributor
  redact run --contributor-id 12345 --email user@example.com

  # Execute a CSV batch, skipping the session cache
  redact run --csv batch.csv --execute --skip-cache

  # Execute and verify task access afterwards
  redact run --csv batch.csv --execute \
    --task-url "https://work.example.com/tasks/abc123?secret=s3cret"`,
		Args: cobra.NoArgs,
		RunE: runRedaction,
	}

	cmd.Flags().String("contributor-id", "", "Contributor ID to redact")
	cmd.Flags().String("email", "", "Contributor email (required with --contributor-id)")
	cmd.Flags().String("csv", "", "CSV file of contributors (contributor_id,email_address,name)")
	cmd.Flags().Bool("execute", false, "Mutate the stores instead of previewing")
	cmd.Flags().Bool("dry-run", true, "Preview every phase without mutating")
	cmd.Flags().Bool("skip-cache", false, "Skip the session cache clearing phase")
	cmd.Flags().Bool("full-discovery", false, "Sweep the whole search catalog for project indices")
	cmd.Flags().Int("sample-size", 0, "Max contributors to pull when no input is given")
	cmd.Flags().String("backup-dir", "", "Directory for the pre-mutation CSV backup")
	cmd.Flags().String("task-url", "", "Task URL for post-masking access verification")
	cmd.Flags().Bool("commit", false, "Also attempt a judgment commit during verification")

	return cmd
}

func runRedaction(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := zap.L().Named("redact")

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg.Run); err != nil {
		return err
	}

	taskURL, _ := cmd.Flags().GetString("task-url")
	commit, _ := cmd.Flags().GetBool("commit")

	factory := connector.NewClientFactory(cfg, logger)

	// The relational store is both an input source and the system of
	// record, so it is the one connection that must succeed.
	pg, err := factory.CreatePostgresConnector(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	db := sqlx.NewDb(pg.DB(), "postgres")
	assocResolver := resolver.NewResolver(db, cfg.Run.ShardCount)

	relationalOp, err := relational.NewMaskingOperator(pg.DB())
	if err != nil {
		return err
	}

	// Every other store degrades to a skipped phase when unreachable
	var searchOp pipeline.SearchMasker
	if esClient, err := factory.CreateSearchClient(); err != nil {
		logger.Warn("Search cluster unavailable, phase will be skipped", zap.Error(err))
	} else {
		searchOp = search.NewOperator(search.NewClient(esClient), cfg.Elasticsearch)
	}

	var analyticsOp pipeline.AnalyticsMasker
	if ch, err := factory.CreateClickHouseConnector(ctx); err != nil {
		logger.Warn("Analytics store unavailable, phase will be skipped", zap.Error(err))
	} else {
		defer ch.Close()
		analyticsOp = analytics.NewMaskingOperator(ch, cfg.ClickHouse.Database)
	}

	var storageOp pipeline.StorageDeleter
	if s3Client, err := factory.CreateObjectClient(ctx); err != nil {
		logger.Warn("Object storage unavailable, phase will be skipped", zap.Error(err))
	} else {
		storageOp = storage.NewDeleter(s3Client, cfg.S3.Bucket)
	}

	var cacheOp pipeline.CacheCleaner
	if !cfg.Run.SkipCache {
		redisClient := factory.CreateCacheClient()
		defer redisClient.Close()
		cacheOp = cache.NewCleaner(redisClient)
	}

	contributors, err := loadContributors(cmd, db, cfg.Run.SampleSize)
	if err != nil {
		return err
	}
	if len(contributors) == 0 {
		logger.Info("No contributors to process")
		return nil
	}

	p := pipeline.New(
		assocResolver,
		relationalOp,
		searchOp,
		analyticsOp,
		storageOp,
		cacheOp,
		verify.NewChecker(cfg.Verification),
		pipeline.Options{
			DryRun:        cfg.Run.DryRun,
			SkipCache:     cfg.Run.SkipCache,
			FullDiscovery: cfg.Run.FullDiscovery,
			BackupDir:     cfg.Run.BackupDir,
			TaskURL:       taskURL,
			Commit:        commit,
		},
	)

	report, err := p.Run(ctx, contributors)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
	return nil
}

// applyRunFlags layers explicit command flags over the loaded run
// configuration. --execute and an explicit --dry-run=true conflict.
func applyRunFlags(cmd *cobra.Command, run *config.RunConfig) error {
	execute, _ := cmd.Flags().GetBool("execute")
	if execute {
		if cmd.Flags().Changed("dry-run") {
			if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
				return fmt.Errorf("--execute and --dry-run=true are mutually exclusive")
			}
		}
		run.DryRun = false
	} else if cmd.Flags().Changed("dry-run") {
		run.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}

	if cmd.Flags().Changed("skip-cache") {
		run.SkipCache, _ = cmd.Flags().GetBool("skip-cache")
	}
	if cmd.Flags().Changed("full-discovery") {
		run.FullDiscovery, _ = cmd.Flags().GetBool("full-discovery")
	}
	if cmd.Flags().Changed("sample-size") {
		run.SampleSize, _ = cmd.Flags().GetInt("sample-size")
	}
	if cmd.Flags().Changed("backup-dir") {
		run.BackupDir, _ = cmd.Flags().GetString("backup-dir")
	}
	return nil
}

// loadContributors resolves the input batch from the flags: a single
// identity, a CSV file, or rows marked for deletion in the database.
func loadContributors(cmd *cobra.Command, db pipeline.Querier, sampleSize int) ([]model.Contributor, error) {
	contributorID, _ := cmd.Flags().GetString("contributor-id")
	email, _ := cmd.Flags().GetString("email")
	csvPath, _ := cmd.Flags().GetString("csv")

	if contributorID != "" && csvPath != "" {
		return nil, fmt.Errorf("--contributor-id and --csv are mutually exclusive")
	}

	if contributorID != "" {
		if email == "" {
			return nil, fmt.Errorf("--email is required with --contributor-id")
		}
		return []model.Contributor{{ID: contributorID, Email: email}}, nil
	}

	if csvPath != "" {
		return pipeline.ReadContributorsCSV(csvPath)
	}

	return pipeline.LoadMarkedContributors(cmd.Context(), db, sampleSize)
}
