// pkg/analytics/operator.go
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/connector"
	"github.com/kepler-ops/contributor-redact/pkg/model"
)

const statementTimeout = 5 * time.Minute

// metricsTable is one analytics table carrying contributor emails in
// pipe-delimited text columns
type metricsTable struct {
	Name         string
	EmailColumns []string

	// EmailOnly tables have no contributor_id column; matching is by
	// email alone
	EmailOnly bool
}

// The contributor_id column in these tables is part of the sort key
// and cannot be rewritten by a mutation. Only the free-text email
// columns are masked; the id stays behind as a known limitation.
var metricsTables = []metricsTable{
	{Name: "unit_metrics", EmailColumns: []string{"worker_email", "last_annotator_email"}},
	{Name: "unit_metrics_hourly", EmailColumns: []string{"worker_email", "last_annotator_email"}},
	{Name: "unit_metrics_topic", EmailColumns: []string{"worker_email"}},
	{Name: "accrued_contributor_stats", EmailColumns: []string{"worker_email"}, EmailOnly: true},
}

// Engine limitations that are expected per table and must not mark the
// phase failed: Kafka-backed tables reject mutations, key columns
// cannot be updated, and some tables simply lack contributor_id.
var toleratedErrors = []string{
	"Table engine Kafka doesn't support mutations",
	"Cannot UPDATE key column",
	"There is no column `contributor_id`",
}

// MaskingOperator rewrites email occurrences in the analytics tables
// with exact substring replacement, leaving co-located values intact
type MaskingOperator struct {
	conn   connector.DatabaseConnector
	dbName string
	logger *zap.Logger
}

// NewMaskingOperator creates an analytics masking operator
func NewMaskingOperator(conn connector.DatabaseConnector, dbName string) *MaskingOperator {
	return &MaskingOperator{
		conn:   conn,
		dbName: dbName,
		logger: zap.L().Named("analytics"),
	}
}

// Mask issues one replaceAll mutation per table. Tolerated engine
// limitations are logged and skipped; anything else degrades the
// phase. Analytics only feeds internal reporting, so the phase never
// comes back failed on its own.
func (o *MaskingOperator) Mask(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseAnalytics)

	for _, t := range metricsTables {
		matched, err := o.countRows(ctx, t, c)
		if err != nil {
			outcome.AddError(o.qualified(t.Name), err)
			continue
		}
		outcome.Matched += matched

		query, args := mutationStatement(o.dbName, t, c)
		_, err = o.conn.ExecWithTimeout(ctx, query, statementTimeout, args...)
		if err != nil {
			if IsToleratedMutationError(err) {
				o.logger.Info("Skipping table with expected engine limitation",
					zap.String("table", t.Name),
					zap.String("reason", err.Error()))
				outcome.AddNote("%s skipped: engine limitation", t.Name)
				continue
			}
			outcome.AddError(o.qualified(t.Name), err)
			continue
		}

		// Mutations are async server-side; the matched count is the
		// best local estimate of rows rewritten
		outcome.Modified += matched
		o.logger.Info("Submitted analytics mutation",
			zap.String("table", t.Name),
			zap.Int("matched", matched))
	}

	if outcome.Status == model.StatusSucceeded {
		outcome.AddNote("contributor_id sort-key column is not rewritten")
	}
	return outcome
}

// Preview counts matching rows per table without mutating
func (o *MaskingOperator) Preview(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseAnalytics)

	for _, t := range metricsTables {
		matched, err := o.countRows(ctx, t, c)
		if err != nil {
			outcome.AddError(o.qualified(t.Name), err)
			continue
		}
		if matched > 0 {
			outcome.AddNote("would modify %d row(s) in %s", matched, t.Name)
		}
		outcome.Matched += matched
	}

	return outcome
}

func (o *MaskingOperator) countRows(ctx context.Context, t metricsTable, c model.Contributor) (int, error) {
	where, args := matchPredicate(t, c)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", o.qualified(t.Name), where)

	rows, err := o.conn.QueryWithTimeout(ctx, query, statementTimeout, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count uint64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return int(count), rows.Err()
}

func (o *MaskingOperator) qualified(table string) string {
	return o.dbName + "." + table
}

// mutationStatement builds the ALTER TABLE UPDATE with replaceAll per
// email column. replaceAll performs exact substring replacement, so
// other contributors' emails sharing a pipe-delimited column survive
// byte-for-byte.
func mutationStatement(dbName string, t metricsTable, c model.Contributor) (string, []interface{}) {
	sets := make([]string, 0, len(t.EmailColumns))
	args := make([]interface{}, 0, len(t.EmailColumns)*2+2)
	for _, col := range t.EmailColumns {
		sets = append(sets, fmt.Sprintf("%s = replaceAll(%s, ?, ?)", col, col))
		args = append(args, c.Email, model.SentinelName)
	}

	where, whereArgs := matchPredicate(t, c)
	args = append(args, whereArgs...)

	query := fmt.Sprintf("ALTER TABLE %s.%s UPDATE %s WHERE %s",
		dbName, t.Name, strings.Join(sets, ", "), where)
	return query, args
}

func matchPredicate(t metricsTable, c model.Contributor) (string, []interface{}) {
	emailMatch := fmt.Sprintf("%s LIKE ?", t.EmailColumns[0])
	emailArg := "%" + c.Email + "%"

	if t.EmailOnly {
		return emailMatch, []interface{}{emailArg}
	}
	return "contributor_id = ? OR " + emailMatch, []interface{}{c.ID, emailArg}
}

// IsToleratedMutationError reports whether err is one of the known
// per-table engine limitations
func IsToleratedMutationError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, tolerated := range toleratedErrors {
		if strings.Contains(msg, tolerated) {
			return true
		}
	}
	return false
}
