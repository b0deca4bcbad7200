package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

func uniqueViolation() error {
	return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func TestMaskWithRetryRetriesOnceWithSaltedSentinel(t *testing.T) {
	var sentinels []string
	attempt := func(sentinelEmail string) error {
		sentinels = append(sentinels, sentinelEmail)
		if len(sentinels) == 1 {
			return uniqueViolation()
		}
		return nil
	}

	err := maskWithRetry("abcdef123456", attempt, nil)
	require.NoError(t, err)

	require.Len(t, sentinels, 2)
	assert.Equal(t, model.SentinelEmail, sentinels[0])
	assert.Equal(t, "deleted_user_abcdef12@deleted.com", sentinels[1])
}

func TestMaskWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	attempts := 0
	attempt := func(string) error {
		attempts++
		return errors.New("connection reset by peer")
	}

	err := maskWithRetry("c1", attempt, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestMaskWithRetrySecondFailureIsReturned(t *testing.T) {
	attempts := 0
	attempt := func(string) error {
		attempts++
		return uniqueViolation()
	}

	err := maskWithRetry("c1", attempt, nil)
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "salted sentinel")
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"pq error with unique code", uniqueViolation(), true},
		{"wrapped pq error", fmt.Errorf("update failed: %w", uniqueViolation()), true},
		{"pq error with other code", &pq.Error{Code: "23503"}, false},
		{"message text only", errors.New(`pq: duplicate key value violates unique constraint "contributors_email_key"`), true},
		{"unrelated error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestMaskStatementIncludesStatusAndName(t *testing.T) {
	query, args := maskStatement(maskTables[0], "c1", model.SentinelEmail)

	assert.Equal(t, "UPDATE kepler_crowd_contributors_t SET email = $1, name = $2, status = $3 WHERE id = $4", query)
	assert.Equal(t, []interface{}{model.SentinelEmail, model.SentinelName, model.DeactivatedStatus, "c1"}, args)
}

func TestMaskStatementEmailOnlyTable(t *testing.T) {
	table := maskTable{Name: "kepler_contributor_payment_t", IDColumn: "contributor_id", EmailColumn: "payment_email"}
	query, args := maskStatement(table, "c1", "x@deleted.com")

	assert.Equal(t, "UPDATE kepler_contributor_payment_t SET payment_email = $1 WHERE contributor_id = $2", query)
	assert.Equal(t, []interface{}{"x@deleted.com", "c1"}, args)
}

func TestJobMappingIsDeletedFirst(t *testing.T) {
	// Access revocation must precede everything else in the phase
	require.NotEmpty(t, deleteTables)
	assert.Equal(t, "kepler_crowd_contributor_job_mapping_t", deleteTables[0].Name)
}

type fakeResult struct {
	rows    int64
	rowsErr error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.rowsErr }

type fakeExecer struct {
	result fakeResult
	err    error
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestExecCountReturnsAffectedRows(t *testing.T) {
	tx := &fakeExecer{result: fakeResult{rows: 4}}

	n, err := execCount(context.Background(), tx, "UPDATE t SET x = $1", "v")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestExecCountSurfacesRowsAffectedError(t *testing.T) {
	tx := &fakeExecer{result: fakeResult{rowsErr: errors.New("driver does not report rows")}}

	n, err := execCount(context.Background(), tx, "UPDATE t SET x = $1", "v")
	require.Error(t, err)
	assert.Equal(t, 0, n)
}
