// pkg/pipeline/pipeline.go
package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

// AssociationResolver builds the association set for one contributor
type AssociationResolver interface {
	Resolve(ctx context.Context, contributorID string) (*model.AssociationSet, error)
}

// RelationalMasker runs the relational masking phase
type RelationalMasker interface {
	Mask(ctx context.Context, c model.Contributor) model.PhaseOutcome
	Preview(ctx context.Context, c model.Contributor) model.PhaseOutcome
}

// SearchMasker runs the search index masking phase
type SearchMasker interface {
	Mask(ctx context.Context, c model.Contributor, set *model.AssociationSet, fullDiscovery bool) model.PhaseOutcome
	Preview(ctx context.Context, c model.Contributor, set *model.AssociationSet, fullDiscovery bool) model.PhaseOutcome
}

// AnalyticsMasker runs the analytics store masking phase
type AnalyticsMasker interface {
	Mask(ctx context.Context, c model.Contributor) model.PhaseOutcome
	Preview(ctx context.Context, c model.Contributor) model.PhaseOutcome
}

// StorageDeleter runs the object storage cleanup phase
type StorageDeleter interface {
	Delete(ctx context.Context, c model.Contributor) model.PhaseOutcome
	Preview(ctx context.Context, c model.Contributor) model.PhaseOutcome
}

// CacheCleaner runs the session cache clearing phase
type CacheCleaner interface {
	Clear(ctx context.Context, c model.Contributor) model.PhaseOutcome
	Preview(ctx context.Context, c model.Contributor) model.PhaseOutcome
}

// AccessVerifier runs the post-masking access check
type AccessVerifier interface {
	Verify(ctx context.Context, c model.Contributor, taskURL string, commit bool) model.PhaseOutcome
}

// Options tunes one pipeline run
type Options struct {
	DryRun        bool
	SkipCache     bool
	FullDiscovery bool
	BackupDir     string

	// TaskURL enables the verification phase when non-empty
	TaskURL string
	Commit  bool
}

// Pipeline sequences the redaction phases for a batch of contributors.
// A nil operator skips its phase. Every phase failure is contained to
// its outcome; the pipeline itself never aborts mid-batch.
type Pipeline struct {
	resolver   AssociationResolver
	relational RelationalMasker
	search     SearchMasker
	analytics  AnalyticsMasker
	storage    StorageDeleter
	cache      CacheCleaner
	verifier   AccessVerifier

	opts   Options
	logger *zap.Logger
}

// New creates a pipeline
func New(
	resolver AssociationResolver,
	relational RelationalMasker,
	search SearchMasker,
	analytics AnalyticsMasker,
	storage StorageDeleter,
	cache CacheCleaner,
	verifier AccessVerifier,
	opts Options,
) *Pipeline {
	return &Pipeline{
		resolver:   resolver,
		relational: relational,
		search:     search,
		analytics:  analytics,
		storage:    storage,
		cache:      cache,
		verifier:   verifier,
		opts:       opts,
		logger:     zap.L().Named("pipeline"),
	}
}

// Run processes every contributor through the full phase sequence and
// returns the aggregated report. In execute mode a CSV backup of the
// input rows is written before any store is touched.
func (p *Pipeline) Run(ctx context.Context, contributors []model.Contributor) (*model.RunReport, error) {
	report := &model.RunReport{
		RunID:     uuid.NewString(),
		DryRun:    p.opts.DryRun,
		StartedAt: time.Now(),
	}

	p.logger.Info("Starting redaction run",
		zap.String("run_id", report.RunID),
		zap.Bool("dry_run", p.opts.DryRun),
		zap.Int("contributors", len(contributors)))

	if !p.opts.DryRun && p.opts.BackupDir != "" {
		path, err := WriteBackup(p.opts.BackupDir, report.RunID, contributors)
		if err != nil {
			// No mutation happens without a backup on disk
			return nil, err
		}
		p.logger.Info("Wrote pre-mutation backup", zap.String("path", path))
	}

	for _, c := range contributors {
		report.Contributors = append(report.Contributors, p.processContributor(ctx, c))
	}

	report.FinishedAt = time.Now()
	return report, nil
}

func (p *Pipeline) processContributor(ctx context.Context, c model.Contributor) model.ContributorReport {
	cr := model.ContributorReport{Contributor: c}
	logger := p.logger.With(zap.String("contributor_id", c.ID))

	set, resolveOutcome := p.resolve(ctx, c)
	cr.Outcomes = append(cr.Outcomes, resolveOutcome)

	cr.Outcomes = append(cr.Outcomes, p.runPhase(logger, model.PhaseRelational, p.relational == nil, func() model.PhaseOutcome {
		if p.opts.DryRun {
			return p.relational.Preview(ctx, c)
		}
		return p.relational.Mask(ctx, c)
	}))

	cr.Outcomes = append(cr.Outcomes, p.runPhase(logger, model.PhaseSearch, p.search == nil, func() model.PhaseOutcome {
		if p.opts.DryRun {
			return p.search.Preview(ctx, c, set, p.opts.FullDiscovery)
		}
		return p.search.Mask(ctx, c, set, p.opts.FullDiscovery)
	}))

	cr.Outcomes = append(cr.Outcomes, p.runPhase(logger, model.PhaseAnalytics, p.analytics == nil, func() model.PhaseOutcome {
		if p.opts.DryRun {
			return p.analytics.Preview(ctx, c)
		}
		return p.analytics.Mask(ctx, c)
	}))

	cr.Outcomes = append(cr.Outcomes, p.runPhase(logger, model.PhaseStorage, p.storage == nil, func() model.PhaseOutcome {
		if p.opts.DryRun {
			return p.storage.Preview(ctx, c)
		}
		return p.storage.Delete(ctx, c)
	}))

	cr.Outcomes = append(cr.Outcomes, p.runPhase(logger, model.PhaseCache, p.cache == nil || p.opts.SkipCache, func() model.PhaseOutcome {
		if p.opts.DryRun {
			return p.cache.Preview(ctx, c)
		}
		return p.cache.Clear(ctx, c)
	}))

	if p.verifier != nil && p.opts.TaskURL != "" && !p.opts.DryRun {
		cr.Outcomes = append(cr.Outcomes, p.verifier.Verify(ctx, c, p.opts.TaskURL, p.opts.Commit))
	}

	return cr
}

// resolve runs the resolver phase. A total resolution failure does not
// stop the contributor: later phases still sweep their fixed targets
// with an empty association set.
func (p *Pipeline) resolve(ctx context.Context, c model.Contributor) (*model.AssociationSet, model.PhaseOutcome) {
	outcome := model.NewPhaseOutcome(model.PhaseResolve)

	if p.resolver == nil {
		return nil, outcome.WithStatus(model.StatusSkipped)
	}

	set, err := p.resolver.Resolve(ctx, c.ID)
	if err != nil {
		outcome.AddError("resolver", err)
		return nil, outcome.WithStatus(model.StatusFailed)
	}

	for _, shardErr := range set.ShardFailures {
		outcome.AddError(shardName(shardErr.Shard), shardErr.Err)
	}
	outcome.Matched = len(set.ProjectIDs)
	if len(set.ProjectIDs) > 0 {
		outcome.AddNote("resolved %d project association(s)", len(set.ProjectIDs))
	}

	return set, outcome
}

func (p *Pipeline) runPhase(logger *zap.Logger, phase model.Phase, skip bool, run func() model.PhaseOutcome) model.PhaseOutcome {
	if skip {
		return model.NewPhaseOutcome(phase).WithStatus(model.StatusSkipped)
	}

	outcome := run()
	logger.Info("Phase complete",
		zap.String("phase", phase.String()),
		zap.String("status", outcome.Status.String()),
		zap.Int("matched", outcome.Matched),
		zap.Int("modified", outcome.Modified),
		zap.Int("errors", len(outcome.Errors)))
	return outcome
}

func shardName(shard int) string {
	return "kepler_distribution_segment_t" + strconv.Itoa(shard)
}
