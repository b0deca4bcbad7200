// pkg/resolver/resolver.go
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

// Querier is the subset of sqlx used by the resolver
type Querier interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Fixed association sources in the relational store. The distribution
// segment shards are generated from the configured shard count.
const (
	queryDirectMapping = `SELECT DISTINCT project_id FROM kepler_project_contributor_mapping_t WHERE contributor_id = $1`
	queryStats         = `SELECT DISTINCT project_id FROM kepler_project_contributor_stats_t WHERE contributor_id = $1`
	queryTeams         = `SELECT DISTINCT ptm.project_id
		FROM kepler_project_team_mapping_t ptm
		JOIN kepler_team_member_t tm ON ptm.team_id = tm.team_id
		WHERE tm.contributor_id = $1`
	queryJobs = `SELECT DISTINCT j.project_id
		FROM kepler_crowd_contributor_job_mapping_t m
		JOIN kepler_jobs_t j ON m.job_id = j.id
		WHERE m.contributor_id = $1`
)

// Resolver determines a contributor's project associations by querying
// the direct mapping table and every distribution segment shard
type Resolver struct {
	db         Querier
	logger     *zap.Logger
	shardCount int
}

// NewResolver creates a resolver over the relational store
func NewResolver(db Querier, shardCount int) *Resolver {
	return &Resolver{
		db:         db,
		logger:     zap.L().Named("resolver"),
		shardCount: shardCount,
	}
}

// Resolve builds the association set for one contributor. A failure
// against any single source is logged and skipped; the result is the
// union of the sources that succeeded. Only a failure of every source
// is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, contributorID string) (*model.AssociationSet, error) {
	set := &model.AssociationSet{ContributorID: contributorID}
	projects := make(map[string]bool)

	sources := []struct {
		name  string
		query string
	}{
		{"direct_mapping", queryDirectMapping},
		{"stats", queryStats},
		{"teams", queryTeams},
		{"jobs", queryJobs},
	}

	succeeded := 0
	for _, src := range sources {
		ids, err := r.selectIDs(ctx, src.query, contributorID)
		if err != nil {
			r.logger.Warn("Association source unavailable, skipping",
				zap.String("source", src.name),
				zap.String("contributor_id", contributorID),
				zap.Error(err))
			continue
		}
		succeeded++
		for _, id := range ids {
			projects[id] = true
		}
	}

	for shard := 0; shard < r.shardCount; shard++ {
		query := fmt.Sprintf(
			`SELECT DISTINCT project_id FROM kepler_distribution_segment_t%d WHERE worker_id = $1 OR last_annotator = $1`,
			shard)
		ids, err := r.selectIDs(ctx, query, contributorID)
		if err != nil {
			r.logger.Warn("Distribution shard unreachable, skipping",
				zap.Int("shard", shard),
				zap.String("contributor_id", contributorID),
				zap.Error(err))
			set.ShardFailures = append(set.ShardFailures, model.ShardError{Shard: shard, Err: err})
			continue
		}
		succeeded++
		for _, id := range ids {
			projects[id] = true
		}
	}

	if succeeded == 0 {
		return nil, errors.New("all association sources failed")
	}

	for id := range projects {
		set.ProjectIDs = append(set.ProjectIDs, id)
	}
	sort.Strings(set.ProjectIDs)
	set.Indices = model.SearchIndices(set.ProjectIDs)

	r.logger.Info("Resolved contributor associations",
		zap.String("contributor_id", contributorID),
		zap.Int("projects", len(set.ProjectIDs)),
		zap.Int("shard_failures", len(set.ShardFailures)))

	return set, nil
}

func (r *Resolver) selectIDs(ctx context.Context, query, contributorID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, contributorID); err != nil {
		return nil, err
	}
	return ids, nil
}
