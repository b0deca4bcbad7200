package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

func backupPath(t *testing.T, dir, runID string) string {
	t.Helper()
	return filepath.Join(dir, "contributors_backup_"+runID+".csv")
}

func TestBackupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := []model.Contributor{
		{ID: "c1", Email: "a@x.com", Name: "Ada"},
		{ID: "c2", Email: "b@y.com"},
	}

	path, err := WriteBackup(dir, "run-1", in)
	require.NoError(t, err)
	assert.Equal(t, backupPath(t, dir, "run-1"), path)

	out, err := ReadContributorsCSV(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestWriteBackupCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "backups")

	_, err := WriteBackup(dir, "run-2", []model.Contributor{{ID: "c1", Email: "a@x.com"}})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestReadContributorsCSVRejectsMissingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte("c1,a@x.com,Ada\n"), 0o644))

	_, err := ReadContributorsCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing expected header")
}

func TestReadContributorsCSVRejectsIncompleteRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.csv")
	content := "contributor_id,email_address,name\nc1,,Ada\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := ReadContributorsCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestReadContributorsCSVRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := ReadContributorsCSV(path)
	assert.Error(t, err)
}

func TestReadContributorsCSVAcceptsTwoColumnRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.csv")
	content := "contributor_id,email_address\nc1,a@x.com\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	contributors, err := ReadContributorsCSV(path)
	require.NoError(t, err)
	require.Len(t, contributors, 1)
	assert.Equal(t, model.Contributor{ID: "c1", Email: "a@x.com"}, contributors[0])
}

type fakeContributorQuerier struct {
	query string
	limit int
}

func (f *fakeContributorQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	f.query = query
	if len(args) == 1 {
		f.limit, _ = args[0].(int)
	}
	rows := dest.(*[]contributorRow)
	*rows = append(*rows, contributorRow{ID: "c1", Email: "a@x.com", Name: "Ada"})
	return nil
}

func TestLoadMarkedContributors(t *testing.T) {
	q := &fakeContributorQuerier{}

	contributors, err := LoadMarkedContributors(context.Background(), q, 25)
	require.NoError(t, err)
	require.Len(t, contributors, 1)
	assert.Equal(t, "c1", contributors[0].ID)
	assert.Equal(t, 25, q.limit)
	assert.Contains(t, q.query, "status = 'PENDING_DELETION'")
	assert.Contains(t, q.query, "LIMIT $1")
}
