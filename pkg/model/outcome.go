// pkg/model/outcome.go
package model

import (
	"fmt"
	"strings"
	"time"
)

// Phase identifies one stage of the redaction pipeline
type Phase int

const (
	PhaseResolve Phase = iota
	PhaseRelational
	PhaseSearch
	PhaseAnalytics
	PhaseStorage
	PhaseCache
	PhaseVerify
)

// String returns a string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseResolve:
		return "Resolve"
	case PhaseRelational:
		return "Relational"
	case PhaseSearch:
		return "Search"
	case PhaseAnalytics:
		return "Analytics"
	case PhaseStorage:
		return "Storage"
	case PhaseCache:
		return "Cache"
	case PhaseVerify:
		return "Verify"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// PhaseStatus classifies how a phase ended
type PhaseStatus int

const (
	// StatusSucceeded means the phase completed with no errors
	StatusSucceeded PhaseStatus = iota
	// StatusDegraded means the phase completed with partial coverage
	StatusDegraded
	// StatusFailed means the phase could not complete
	StatusFailed
	// StatusUnknown means completion could not be observed (e.g. an
	// async task outlived the poll window)
	StatusUnknown
	// StatusSkipped means the phase was not attempted
	StatusSkipped
)

// String returns a string representation of the phase status
func (s PhaseStatus) String() string {
	switch s {
	case StatusSucceeded:
		return "Succeeded"
	case StatusDegraded:
		return "Degraded"
	case StatusFailed:
		return "Failed"
	case StatusUnknown:
		return "Unknown"
	case StatusSkipped:
		return "Skipped"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// TargetError records one error against one target (table, index,
// bucket, key pattern)
type TargetError struct {
	Target  string
	Message string
}

// PhaseOutcome accumulates the result of one phase for one contributor
type PhaseOutcome struct {
	Phase    Phase
	Status   PhaseStatus
	Matched  int
	Modified int
	Errors   []TargetError
	Notes    []string
}

// NewPhaseOutcome creates an outcome with succeeded status
func NewPhaseOutcome(phase Phase) PhaseOutcome {
	return PhaseOutcome{Phase: phase, Status: StatusSucceeded}
}

// WithStatus sets the phase status
func (o PhaseOutcome) WithStatus(status PhaseStatus) PhaseOutcome {
	o.Status = status
	return o
}

// WithCounts sets matched and modified counts
func (o PhaseOutcome) WithCounts(matched, modified int) PhaseOutcome {
	o.Matched = matched
	o.Modified = modified
	return o
}

// AddError records an error against a target. Any recorded error
// demotes a succeeded phase to degraded; harder failures are set
// explicitly via WithStatus.
func (o *PhaseOutcome) AddError(target string, err error) {
	o.Errors = append(o.Errors, TargetError{Target: target, Message: err.Error()})
	if o.Status == StatusSucceeded {
		o.Status = StatusDegraded
	}
}

// AddNote records a human-readable remark for the report
func (o *PhaseOutcome) AddNote(format string, args ...interface{}) {
	o.Notes = append(o.Notes, fmt.Sprintf(format, args...))
}

// ContributorReport holds all phase outcomes for one contributor
type ContributorReport struct {
	Contributor Contributor
	Outcomes    []PhaseOutcome
}

// Failed reports whether any phase failed outright
func (r *ContributorReport) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			return true
		}
	}
	return false
}

// RunReport aggregates contributor reports for one run
type RunReport struct {
	RunID      string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time

	Contributors []ContributorReport
}

// Summary renders a phase-by-phase outcome table
func (r *RunReport) Summary() string {
	var sb strings.Builder

	mode := "EXECUTE"
	if r.DryRun {
		mode = "DRY RUN"
	}
	sb.WriteString(fmt.Sprintf("Run %s (%s): %d contributor(s), %s\n",
		r.RunID, mode, len(r.Contributors), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))

	for _, cr := range r.Contributors {
		sb.WriteString(fmt.Sprintf("\nContributor %s <%s>\n", cr.Contributor.ID, cr.Contributor.Email))
		sb.WriteString(fmt.Sprintf("  %-12s %-10s %8s %8s  %s\n", "PHASE", "STATUS", "MATCHED", "MODIFIED", "NOTES"))
		for _, o := range cr.Outcomes {
			notes := strings.Join(o.Notes, "; ")
			if len(o.Errors) > 0 {
				if notes != "" {
					notes += "; "
				}
				notes += fmt.Sprintf("%d error(s)", len(o.Errors))
			}
			sb.WriteString(fmt.Sprintf("  %-12s %-10s %8d %8d  %s\n",
				o.Phase, o.Status, o.Matched, o.Modified, notes))
		}
	}

	return sb.String()
}
