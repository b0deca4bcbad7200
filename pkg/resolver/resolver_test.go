package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier returns canned project ids per query substring and fails
// queries whose text contains a configured marker
type fakeQuerier struct {
	results map[string][]string
	failOn  []string
	queries []string
}

func (f *fakeQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	f.queries = append(f.queries, query)
	for _, marker := range f.failOn {
		if strings.Contains(query, marker) {
			return errors.New("connection refused")
		}
	}
	out := dest.(*[]string)
	for marker, ids := range f.results {
		if strings.Contains(query, marker) {
			*out = append(*out, ids...)
		}
	}
	return nil
}

func TestResolveUnionsAllSources(t *testing.T) {
	db := &fakeQuerier{
		results: map[string][]string{
			"kepler_project_contributor_mapping_t": {"p1", "p2"},
			"kepler_project_contributor_stats_t":   {"p2"},
			"kepler_distribution_segment_t3":       {"p3"},
		},
	}

	r := NewResolver(db, 10)
	set, err := r.Resolve(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2", "p3"}, set.ProjectIDs)
	assert.Equal(t, []string{"project-p1", "project-p2", "project-p3"}, set.Indices)
	assert.Empty(t, set.ShardFailures)
}

func TestResolveQueriesEveryShard(t *testing.T) {
	db := &fakeQuerier{}

	r := NewResolver(db, 10)
	_, err := r.Resolve(context.Background(), "c1")
	require.NoError(t, err)

	shardQueries := 0
	for _, q := range db.queries {
		if strings.Contains(q, "kepler_distribution_segment_t") {
			shardQueries++
		}
	}
	assert.Equal(t, 10, shardQueries)
}

func TestResolveToleratesPartialShardFailure(t *testing.T) {
	db := &fakeQuerier{
		results: map[string][]string{
			"kepler_distribution_segment_t0": {"p0"},
			"kepler_distribution_segment_t5": {"p5"},
		},
		failOn: []string{
			"kepler_distribution_segment_t1",
			"kepler_distribution_segment_t2",
			"kepler_distribution_segment_t3",
		},
	}

	r := NewResolver(db, 10)
	set, err := r.Resolve(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, []string{"p0", "p5"}, set.ProjectIDs)
	assert.Len(t, set.ShardFailures, 3)
	shards := []int{set.ShardFailures[0].Shard, set.ShardFailures[1].Shard, set.ShardFailures[2].Shard}
	assert.Equal(t, []int{1, 2, 3}, shards)
}

func TestResolveFailsOnlyWhenEverySourceFails(t *testing.T) {
	db := &fakeQuerier{
		failOn: []string{"kepler_"},
	}

	r := NewResolver(db, 4)
	_, err := r.Resolve(context.Background(), "c1")
	assert.Error(t, err)
}
