// pkg/pipeline/backup.go
package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

// backupHeader is the fixed column order of backup and input files
var backupHeader = []string{"contributor_id", "email_address", "name"}

// WriteBackup writes the input contributor rows to a CSV named after
// the run id, so a botched run can be reconciled against the original
// identities. Returns the file path.
func WriteBackup(dir, runID string, contributors []model.Contributor) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("contributors_backup_%s.csv", runID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(backupHeader); err != nil {
		return "", fmt.Errorf("failed to write backup header: %w", err)
	}
	for _, c := range contributors {
		if err := w.Write([]string{c.ID, c.Email, c.Name}); err != nil {
			return "", fmt.Errorf("failed to write backup row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush backup file: %w", err)
	}
	return path, nil
}

// ReadContributorsCSV loads a contributor batch from a CSV file with
// the backup column layout. A header row is required.
func ReadContributorsCSV(path string) ([]model.Contributor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contributor file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contributor file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("contributor file %s is empty", path)
	}

	header := records[0]
	if len(header) < 2 || !strings.EqualFold(header[0], backupHeader[0]) {
		return nil, fmt.Errorf("contributor file %s missing expected header %v", path, backupHeader)
	}

	var contributors []model.Contributor
	for i, row := range records[1:] {
		if len(row) < 2 || row[0] == "" || row[1] == "" {
			return nil, fmt.Errorf("contributor file row %d is incomplete", i+2)
		}
		c := model.Contributor{ID: row[0], Email: row[1]}
		if len(row) > 2 {
			c.Name = row[2]
		}
		contributors = append(contributors, c)
	}

	return contributors, nil
}

// Querier is the subset of sqlx used to load marked contributors
type Querier interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type contributorRow struct {
	ID    string `db:"id"`
	Email string `db:"email"`
	Name  string `db:"name"`
}

// LoadMarkedContributors fetches contributors flagged for deletion,
// bounded by limit
func LoadMarkedContributors(ctx context.Context, db Querier, limit int) ([]model.Contributor, error) {
	var rows []contributorRow
	query := `SELECT id, email, COALESCE(name, '') AS name
		FROM kepler_crowd_contributors_t
		WHERE status = 'PENDING_DELETION'
		ORDER BY id
		LIMIT $1`
	if err := db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load marked contributors: %w", err)
	}

	contributors := make([]model.Contributor, 0, len(rows))
	for _, row := range rows {
		contributors = append(contributors, model.Contributor{ID: row.ID, Email: row.Email, Name: row.Name})
	}
	return contributors, nil
}
