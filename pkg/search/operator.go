// pkg/search/operator.go
package search

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/config"
	"github.com/kepler-ops/contributor-redact/pkg/model"
)

// Full catalog discovery only kicks in when the resolver found fewer
// project associations than this; a well-populated association set
// already names the indices worth sweeping.
const discoveryThreshold = 3

// searchPageSize bounds the per-document fallback path
const searchPageSize = 1000

// maskScript is the painless source for the update-by-query pass. It
// mirrors the shape-preserving substitution in fieldshape.go: scalars
// stay scalars, delimited strings keep their delimiter, arrays keep
// their length. Unmodified documents are marked noop so matched and
// modified counts stay honest.
const maskScript = `
String maskValue(String value, String target, String sentinel, String delim) {
  if (value == target) { return sentinel; }
  if (value.contains(target)) {
    String[] parts = value.splitOnToken(delim);
    for (int i = 0; i < parts.length; i++) {
      if (parts[i] == target) { parts[i] = sentinel; }
    }
    return String.join(delim, parts);
  }
  return value;
}
def maskField(def value, String target, String sentinel, String delim) {
  if (value instanceof String) { return maskValue((String)value, target, sentinel, delim); }
  if (value instanceof List) {
    for (int i = 0; i < value.size(); i++) {
      if (value.get(i) instanceof String) {
        value.set(i, maskValue((String)value.get(i), target, sentinel, delim));
      }
    }
  }
  return value;
}
boolean changed = false;
for (def f : params.email_fields) {
  String name = (String)f;
  if (ctx._source.containsKey(name) && ctx._source[name] != null) {
    String before = String.valueOf(ctx._source[name]);
    ctx._source[name] = maskField(ctx._source[name], params.email, params.email_sentinel, params.delimiter);
    if (!String.valueOf(ctx._source[name]).equals(before)) { changed = true; }
  }
}
for (def f : params.id_fields) {
  String name = (String)f;
  if (ctx._source.containsKey(name) && ctx._source[name] != null) {
    String before = String.valueOf(ctx._source[name]);
    ctx._source[name] = maskField(ctx._source[name], params.contributor_id, params.id_sentinel, params.delimiter);
    if (!String.valueOf(ctx._source[name]).equals(before)) { changed = true; }
  }
}
List snapshots = new ArrayList();
for (def objName : params.snapshots) {
  if (ctx._source.containsKey((String)objName) && ctx._source[(String)objName] instanceof Map) {
    snapshots.add(ctx._source[(String)objName]);
  }
}
if (ctx._source.containsKey('history') && ctx._source['history'] instanceof List) {
  for (def entry : ctx._source['history']) {
    if (entry instanceof Map) { snapshots.add(entry); }
  }
}
for (def snap : snapshots) {
  for (def f : params.snapshot_email_fields) {
    String name = (String)f;
    if (snap.containsKey(name) && snap[name] != null) {
      String before = String.valueOf(snap[name]);
      snap[name] = maskField(snap[name], params.email, params.email_sentinel, params.delimiter);
      if (!String.valueOf(snap[name]).equals(before)) { changed = true; }
    }
  }
  for (def f : params.snapshot_id_fields) {
    String name = (String)f;
    if (snap.containsKey(name) && snap[name] != null) {
      String before = String.valueOf(snap[name]);
      snap[name] = maskField(snap[name], params.contributor_id, params.id_sentinel, params.delimiter);
      if (!String.valueOf(snap[name]).equals(before)) { changed = true; }
    }
  }
}
if (!changed) { ctx.op = 'noop'; }
`

// Operator rewrites PII-bearing fields in the search indices
type Operator struct {
	api    API
	cfg    *config.ElasticsearchConfig
	logger *zap.Logger
}

// NewOperator creates a search masking operator
func NewOperator(api API, cfg *config.ElasticsearchConfig) *Operator {
	return &Operator{
		api:    api,
		cfg:    cfg,
		logger: zap.L().Named("search"),
	}
}

// Mask sweeps every target index with an async update-by-query and
// blocks on each task. A task that outlives the poll window demotes
// the phase to unknown; per-index request failures degrade it.
func (o *Operator) Mask(ctx context.Context, c model.Contributor, set *model.AssociationSet, fullDiscovery bool) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseSearch)

	body, err := buildUpdateBody(c)
	if err != nil {
		outcome.AddError("request", err)
		return outcome.WithStatus(model.StatusFailed)
	}

	matched, modified := 0, 0
	for _, index := range o.targets(ctx, set, fullDiscovery, &outcome) {
		taskID, err := o.api.UpdateByQuery(ctx, index, body)
		if err != nil {
			outcome.AddError(index, err)
			continue
		}

		o.logger.Info("Submitted update-by-query",
			zap.String("index", index),
			zap.String("task_id", taskID))

		progress, completed, err := waitForTask(ctx, o.api, o.logger, taskID, o.cfg.TaskPollInterval, o.cfg.TaskPollTimeout)
		if err != nil {
			outcome.AddError(index, err)
			continue
		}
		if !completed {
			outcome.AddNote("task for %s timed out after %s, final counts unknown", index, o.cfg.TaskPollTimeout)
			if outcome.Status == model.StatusSucceeded {
				outcome.Status = model.StatusUnknown
			}
			continue
		}

		matched += progress.Total
		modified += progress.Updated
	}

	o.logger.Info("Search masking complete",
		zap.String("contributor_id", c.ID),
		zap.Int("matched", matched),
		zap.Int("modified", modified))

	return outcome.WithCounts(matched, modified)
}

// Preview counts matching documents per target index without mutating
func (o *Operator) Preview(ctx context.Context, c model.Contributor, set *model.AssociationSet, fullDiscovery bool) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseSearch)

	body, err := json.Marshal(map[string]interface{}{"query": buildQuery(c)})
	if err != nil {
		outcome.AddError("request", err)
		return outcome.WithStatus(model.StatusFailed)
	}

	matched := 0
	for _, index := range o.targets(ctx, set, fullDiscovery, &outcome) {
		n, err := o.api.Count(ctx, index, body)
		if err != nil {
			outcome.AddError(index, err)
			continue
		}
		if n > 0 {
			outcome.AddNote("would modify up to %d document(s) in %s", n, index)
		}
		matched += n
	}

	return outcome.WithCounts(matched, 0)
}

// MaskDocuments is the per-document fallback for indices where
// scripted updates are disabled: search, rewrite in process with the
// same shape-preserving logic, write back each changed document.
func (o *Operator) MaskDocuments(ctx context.Context, c model.Contributor, index string) (int, int, error) {
	body, err := json.Marshal(map[string]interface{}{"query": buildQuery(c)})
	if err != nil {
		return 0, 0, err
	}

	docs, err := o.api.SearchDocs(ctx, index, body, searchPageSize)
	if err != nil {
		return 0, 0, err
	}

	modified := 0
	for _, doc := range docs {
		if !maskDocument(doc.Source, c.Email, c.ID) {
			continue
		}
		if err := o.api.UpdateDoc(ctx, index, doc.ID, doc.Source); err != nil {
			return len(docs), modified, err
		}
		modified++
	}

	return len(docs), modified, nil
}

// targets assembles the index sweep order: the fallback index always,
// then the resolver-driven project indices that exist, then (opt-in,
// and only when resolution came back thin) the full catalog.
func (o *Operator) targets(ctx context.Context, set *model.AssociationSet, fullDiscovery bool, outcome *model.PhaseOutcome) []string {
	seen := map[string]bool{o.cfg.FallbackIndex: true}
	targets := []string{o.cfg.FallbackIndex}

	resolved := []string{}
	if set != nil {
		resolved = set.Indices
	}
	for _, index := range resolved {
		if seen[index] {
			continue
		}
		exists, err := o.api.IndexExists(ctx, index)
		if err != nil {
			outcome.AddError(index, err)
			continue
		}
		if !exists {
			o.logger.Debug("Resolved index does not exist, skipping", zap.String("index", index))
			continue
		}
		seen[index] = true
		targets = append(targets, index)
	}

	if fullDiscovery && len(resolved) < discoveryThreshold {
		discovered, err := o.api.ListIndices(ctx, "project-*")
		if err != nil {
			outcome.AddError("project-*", err)
			return targets
		}
		added := 0
		for _, index := range discovered {
			if seen[index] || added >= o.cfg.DiscoveryLimit {
				continue
			}
			seen[index] = true
			targets = append(targets, index)
			added++
		}
		o.logger.Info("Full index discovery enabled",
			zap.Int("discovered", len(discovered)),
			zap.Int("added", added))
	}

	return targets
}

// buildQuery matches any configured field carrying the contributor's
// email or id
func buildQuery(c model.Contributor) map[string]interface{} {
	return map[string]interface{}{
		"query_string": map[string]interface{}{
			"query": fmt.Sprintf("%q OR %q", c.Email, c.ID),
		},
	}
}

// buildUpdateBody assembles the full update-by-query request body
func buildUpdateBody(c model.Contributor) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"query": buildQuery(c),
		"script": map[string]interface{}{
			"lang":   "painless",
			"source": maskScript,
			"params": map[string]interface{}{
				"email":                 c.Email,
				"contributor_id":        c.ID,
				"email_sentinel":        model.SentinelEmail,
				"id_sentinel":           model.SentinelName,
				"delimiter":             Delimiter,
				"email_fields":          rootEmailFields,
				"id_fields":             rootIDFields,
				"snapshots":             snapshotObjects,
				"snapshot_email_fields": snapshotEmailFields,
				"snapshot_id_fields":    snapshotIDFields,
			},
		},
	})
}
