package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

type fakeResolver struct {
	set *model.AssociationSet
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, contributorID string) (*model.AssociationSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

// fakePhase implements every masking phase interface, recording
// whether it was executed or previewed
type fakePhase struct {
	phase    model.Phase
	outcome  model.PhaseOutcome
	masked   int
	previews int
}

func newFakePhase(phase model.Phase) *fakePhase {
	return &fakePhase{phase: phase, outcome: model.NewPhaseOutcome(phase)}
}

func (f *fakePhase) mask() model.PhaseOutcome {
	f.masked++
	return f.outcome
}

func (f *fakePhase) preview() model.PhaseOutcome {
	f.previews++
	return f.outcome
}

func (f *fakePhase) Mask(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	return f.mask()
}

func (f *fakePhase) Preview(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	return f.preview()
}

type fakeSearchPhase struct {
	fakePhase
	lastSet *model.AssociationSet
}

func (f *fakeSearchPhase) Mask(ctx context.Context, c model.Contributor, set *model.AssociationSet, fullDiscovery bool) model.PhaseOutcome {
	f.lastSet = set
	return f.mask()
}

func (f *fakeSearchPhase) Preview(ctx context.Context, c model.Contributor, set *model.AssociationSet, fullDiscovery bool) model.PhaseOutcome {
	f.lastSet = set
	return f.preview()
}

type fakeStoragePhase struct{ fakePhase }

func (f *fakeStoragePhase) Delete(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	return f.mask()
}

type fakeCachePhase struct{ fakePhase }

func (f *fakeCachePhase) Clear(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	return f.mask()
}

type fakeVerifier struct {
	calls int
}

func (f *fakeVerifier) Verify(ctx context.Context, c model.Contributor, taskURL string, commit bool) model.PhaseOutcome {
	f.calls++
	return model.NewPhaseOutcome(model.PhaseVerify)
}

type fixture struct {
	resolver   *fakeResolver
	relational *fakePhase
	search     *fakeSearchPhase
	analytics  *fakePhase
	storage    *fakeStoragePhase
	cache      *fakeCachePhase
	verifier   *fakeVerifier
}

func newFixture() *fixture {
	return &fixture{
		resolver: &fakeResolver{set: &model.AssociationSet{
			ContributorID: "c1",
			ProjectIDs:    []string{"p1"},
			Indices:       []string{"project-p1"},
		}},
		relational: newFakePhase(model.PhaseRelational),
		search:     &fakeSearchPhase{fakePhase: *newFakePhase(model.PhaseSearch)},
		analytics:  newFakePhase(model.PhaseAnalytics),
		storage:    &fakeStoragePhase{fakePhase: *newFakePhase(model.PhaseStorage)},
		cache:      &fakeCachePhase{fakePhase: *newFakePhase(model.PhaseCache)},
		verifier:   &fakeVerifier{},
	}
}

func (f *fixture) pipeline(opts Options) *Pipeline {
	return New(f.resolver, f.relational, f.search, f.analytics, f.storage, f.cache, f.verifier, opts)
}

func run(t *testing.T, p *Pipeline) *model.RunReport {
	t.Helper()
	report, err := p.Run(context.Background(), []model.Contributor{{ID: "c1", Email: "user1@example.com"}})
	require.NoError(t, err)
	require.Len(t, report.Contributors, 1)
	return report
}

func TestExecuteRunsEveryPhaseInOrder(t *testing.T) {
	f := newFixture()
	report := run(t, f.pipeline(Options{TaskURL: "https://x/tasks/j1?secret=s1"}))

	phases := make([]model.Phase, 0)
	for _, o := range report.Contributors[0].Outcomes {
		phases = append(phases, o.Phase)
	}
	assert.Equal(t, []model.Phase{
		model.PhaseResolve,
		model.PhaseRelational,
		model.PhaseSearch,
		model.PhaseAnalytics,
		model.PhaseStorage,
		model.PhaseCache,
		model.PhaseVerify,
	}, phases)

	assert.Equal(t, 1, f.relational.masked)
	assert.Equal(t, 0, f.relational.previews)
	assert.Equal(t, 1, f.verifier.calls)
	// The search phase consumes the resolver's association set
	require.NotNil(t, f.search.lastSet)
	assert.Equal(t, []string{"project-p1"}, f.search.lastSet.Indices)
}

func TestDryRunOnlyPreviews(t *testing.T) {
	f := newFixture()
	report := run(t, f.pipeline(Options{DryRun: true, TaskURL: "https://x/tasks/j1?secret=s1"}))

	assert.True(t, report.DryRun)
	assert.Equal(t, 0, f.relational.masked)
	assert.Equal(t, 1, f.relational.previews)
	assert.Equal(t, 0, f.search.masked)
	assert.Equal(t, 1, f.search.previews)
	assert.Equal(t, 0, f.storage.masked)
	// Verification mutates nothing but still calls live APIs as the
	// contributor, so dry run skips it
	assert.Equal(t, 0, f.verifier.calls)
}

func TestSkipCacheOption(t *testing.T) {
	f := newFixture()
	report := run(t, f.pipeline(Options{SkipCache: true}))

	assert.Equal(t, 0, f.cache.masked)
	for _, o := range report.Contributors[0].Outcomes {
		if o.Phase == model.PhaseCache {
			assert.Equal(t, model.StatusSkipped, o.Status)
		}
	}
}

func TestResolveFailureDoesNotStopLaterPhases(t *testing.T) {
	f := newFixture()
	f.resolver.err = errors.New("relational store unreachable")

	report := run(t, f.pipeline(Options{}))

	outcomes := report.Contributors[0].Outcomes
	assert.Equal(t, model.StatusFailed, outcomes[0].Status)
	// Later phases still sweep their fixed targets
	assert.Equal(t, 1, f.relational.masked)
	assert.Equal(t, 1, f.search.masked)
	assert.Nil(t, f.search.lastSet)
}

func TestPhaseFailureIsContainedToItsOutcome(t *testing.T) {
	f := newFixture()
	f.relational.outcome = model.NewPhaseOutcome(model.PhaseRelational).WithStatus(model.StatusFailed)

	report := run(t, f.pipeline(Options{}))

	assert.True(t, report.Contributors[0].Failed())
	assert.Equal(t, 1, f.search.masked)
	assert.Equal(t, 1, f.analytics.masked)
}

func TestShardFailuresDegradeResolveOutcome(t *testing.T) {
	f := newFixture()
	f.resolver.set.ShardFailures = []model.ShardError{
		{Shard: 2, Err: errors.New("timeout")},
	}

	report := run(t, f.pipeline(Options{}))

	resolve := report.Contributors[0].Outcomes[0]
	assert.Equal(t, model.StatusDegraded, resolve.Status)
	require.Len(t, resolve.Errors, 1)
	assert.Equal(t, "kepler_distribution_segment_t2", resolve.Errors[0].Target)
}

func TestBatchContinuesPastFailingContributor(t *testing.T) {
	f := newFixture()
	f.relational.outcome = model.NewPhaseOutcome(model.PhaseRelational).WithStatus(model.StatusFailed)

	report, err := f.pipeline(Options{}).Run(context.Background(), []model.Contributor{
		{ID: "c1", Email: "a@x.com"},
		{ID: "c2", Email: "b@y.com"},
	})
	require.NoError(t, err)
	assert.Len(t, report.Contributors, 2)
	assert.Equal(t, 2, f.relational.masked)
}

func TestExecuteWritesBackupBeforeMutation(t *testing.T) {
	f := newFixture()
	dir := t.TempDir()

	report := run(t, f.pipeline(Options{BackupDir: dir}))

	files, err := ReadContributorsCSV(backupPath(t, dir, report.RunID))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "c1", files[0].ID)
}

func TestDryRunWritesNoBackup(t *testing.T) {
	f := newFixture()
	dir := t.TempDir()

	report := run(t, f.pipeline(Options{DryRun: true, BackupDir: dir}))

	_, err := ReadContributorsCSV(backupPath(t, dir, report.RunID))
	assert.Error(t, err)
}
