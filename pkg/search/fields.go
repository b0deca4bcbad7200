// pkg/search/fields.go
package search

import "github.com/kepler-ops/contributor-redact/pkg/model"

// PII field paths across the unit metrics and project indices. The
// same names recur at the document root, inside the latest/earliest
// snapshot objects, and inside each history entry.
var (
	rootEmailFields = []string{
		"email",
		"email_address",
		"worker_email",
		"workerEmail",
		"lastAnnotatorEmail",
		"qa_checker_email",
	}

	rootIDFields = []string{
		"contributor_id",
		"worker_id",
		"workerId",
		"lastAnnotator",
		"qa_checker_id",
	}

	snapshotObjects = []string{"latest", "earliest"}

	snapshotEmailFields = []string{
		"workerEmail",
		"lastAnnotatorEmail",
		"lastReviewerEmail",
	}

	snapshotIDFields = []string{
		"workerId",
		"lastAnnotator",
	}
)

// historyField is an array of snapshot objects
const historyField = "history"

// maskDocument rewrites every configured PII field in one document.
// Email fields match on the contributor email and take the sentinel
// email; id fields match on the contributor id and take the sentinel
// name. Returns whether the document changed.
func maskDocument(doc map[string]interface{}, email, contributorID string) bool {
	changed := false

	for _, f := range rootEmailFields {
		changed = maskInto(doc, f, email, model.SentinelEmail) || changed
	}
	for _, f := range rootIDFields {
		changed = maskInto(doc, f, contributorID, model.SentinelName) || changed
	}

	for _, name := range snapshotObjects {
		if snapshot, ok := doc[name].(map[string]interface{}); ok {
			changed = maskSnapshot(snapshot, email, contributorID) || changed
		}
	}

	if history, ok := doc[historyField].([]interface{}); ok {
		for _, entry := range history {
			if snapshot, ok := entry.(map[string]interface{}); ok {
				changed = maskSnapshot(snapshot, email, contributorID) || changed
			}
		}
	}

	return changed
}

func maskSnapshot(snapshot map[string]interface{}, email, contributorID string) bool {
	changed := false
	for _, f := range snapshotEmailFields {
		changed = maskInto(snapshot, f, email, model.SentinelEmail) || changed
	}
	for _, f := range snapshotIDFields {
		changed = maskInto(snapshot, f, contributorID, model.SentinelName) || changed
	}
	return changed
}

func maskInto(obj map[string]interface{}, field, target, sentinel string) bool {
	raw, present := obj[field]
	if !present {
		return false
	}
	masked, changed := MaskField(raw, target, sentinel)
	if changed {
		obj[field] = masked
	}
	return changed
}
