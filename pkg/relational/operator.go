// pkg/relational/operator.go
package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

const statementTimeout = 60 * time.Second

// MaskingOperator deactivates a contributor's primary record and
// overwrites PII across the dependent relational tables
type MaskingOperator struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMaskingOperator creates a relational masking operator
func NewMaskingOperator(db *sql.DB) (*MaskingOperator, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}

	return &MaskingOperator{
		db:     db,
		logger: zap.L().Named("relational"),
	}, nil
}

// Mask runs the full relational phase for one contributor. Each
// contributor gets its own transaction; a uniqueness-constraint
// violation rolls it back and retries exactly once with the salted
// sentinel. A second failure is recorded in the outcome and does not
// stop the batch.
func (o *MaskingOperator) Mask(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseRelational)

	var matched, modified int
	err := maskWithRetry(c.ID, func(sentinelEmail string) error {
		var attemptErr error
		matched, modified, attemptErr = o.maskContributor(ctx, c, sentinelEmail)
		return attemptErr
	}, func(sentinelEmail string) {
		o.logger.Warn("Sentinel collided with a previous deletion, retrying with salted sentinel",
			zap.String("contributor_id", c.ID),
			zap.String("sentinel", sentinelEmail))
	})
	if err != nil {
		o.logger.Error("Relational masking failed",
			zap.String("contributor_id", c.ID),
			zap.Error(err))
		outcome.AddError("relational", err)
		return outcome.WithStatus(model.StatusFailed)
	}

	o.logger.Info("Relational masking complete",
		zap.String("contributor_id", c.ID),
		zap.Int("matched", matched),
		zap.Int("modified", modified))

	return outcome.WithCounts(matched, modified)
}

// Preview reports how many rows each table holds for the contributor
// without mutating anything
func (o *MaskingOperator) Preview(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseRelational)

	total := 0
	count := func(table, column, value string) {
		queryCtx, cancel := context.WithTimeout(ctx, statementTimeout)
		defer cancel()

		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1", table, column)
		if err := o.db.QueryRowContext(queryCtx, query, value).Scan(&n); err != nil {
			outcome.AddError(table, err)
			return
		}
		if n > 0 {
			outcome.AddNote("would modify %d row(s) in %s", n, table)
		}
		total += n
	}

	for _, t := range deleteTables {
		count(t.Name, t.IDColumn, c.ID)
	}
	count(mercuryMappingTable, "email", c.Email)
	for _, t := range maskTables {
		count(t.Name, t.IDColumn, c.ID)
	}

	return outcome.WithCounts(total, 0)
}

// maskContributor performs every delete and update inside one fresh
// transaction so a failure for this contributor cannot leak into
// another contributor's work
func (o *MaskingOperator) maskContributor(ctx context.Context, c model.Contributor, sentinelEmail string) (matched, modified int, err error) {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				o.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.String("contributor_id", c.ID))
			}
		}
	}()

	for _, t := range deleteTables {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", t.Name, t.IDColumn)
		n, execErr := execCount(ctx, tx, query, c.ID)
		if execErr != nil {
			return matched, modified, fmt.Errorf("delete from %s failed: %w", t.Name, execErr)
		}
		matched += n
		modified += n
	}

	// The legacy account mapping is keyed by email, not contributor id
	n, execErr := execCount(ctx, tx,
		fmt.Sprintf("DELETE FROM %s WHERE email = $1", mercuryMappingTable), c.Email)
	if execErr != nil {
		return matched, modified, fmt.Errorf("delete from %s failed: %w", mercuryMappingTable, execErr)
	}
	matched += n
	modified += n

	for _, t := range maskTables {
		query, args := maskStatement(t, c.ID, sentinelEmail)
		n, execErr := execCount(ctx, tx, query, args...)
		if execErr != nil {
			return matched, modified, fmt.Errorf("update of %s failed: %w", t.Name, execErr)
		}
		matched += n
		modified += n
	}

	for _, t := range auditTables {
		queryCtx, cancel := context.WithTimeout(ctx, statementTimeout)
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1", t.Name, t.IDColumn)
		scanErr := tx.QueryRowContext(queryCtx, query, c.ID).Scan(&count)
		cancel()
		if scanErr != nil {
			return matched, modified, fmt.Errorf("count of %s failed: %w", t.Name, scanErr)
		}
		if count > 0 {
			o.logger.Info("Contributor rows retained for aggregate reporting",
				zap.String("table", t.Name),
				zap.String("contributor_id", c.ID),
				zap.Int("rows", count))
			matched += count
		}
	}

	if err = tx.Commit(); err != nil {
		return matched, modified, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return matched, modified, nil
}

// maskStatement builds the sentinel update for one table
func maskStatement(t maskTable, contributorID, sentinelEmail string) (string, []interface{}) {
	sets := []string{fmt.Sprintf("%s = $1", t.EmailColumn)}
	args := []interface{}{sentinelEmail}

	if t.NameColumn != "" {
		sets = append(sets, fmt.Sprintf("%s = $%d", t.NameColumn, len(args)+1))
		args = append(args, model.SentinelName)
	}
	if t.HasStatus {
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, model.DeactivatedStatus)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		t.Name, strings.Join(sets, ", "), t.IDColumn, len(args)+1)
	args = append(args, contributorID)

	return query, args
}

// execer is the subset of *sql.Tx needed to run counted statements
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func execCount(ctx context.Context, tx execer, query string, args ...interface{}) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	res, err := tx.ExecContext(queryCtx, query, args...)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// maskWithRetry runs attempt with the default sentinel email. A
// uniqueness-constraint failure gets exactly one retry with the salted
// sentinel; any other error, or a second failure, is returned as-is.
func maskWithRetry(contributorID string, attempt func(sentinelEmail string) error, onRetry func(sentinelEmail string)) error {
	err := attempt(model.SentinelEmail)
	if err == nil {
		return nil
	}
	if !IsUniqueViolation(err) {
		return err
	}

	salted := model.SaltedSentinelEmail(contributorID)
	if onRetry != nil {
		onRetry(salted)
	}
	if retryErr := attempt(salted); retryErr != nil {
		return fmt.Errorf("retry with salted sentinel failed: %w", retryErr)
	}
	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL
// unique-constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// Drivers that surface errors as plain strings still carry the
	// canonical message text
	return err != nil && strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
