package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

func sampleDoc() map[string]interface{} {
	return map[string]interface{}{
		"unit_id":      "u1",
		"worker_email": "a@x.com",
		"workerId":     "c1",
		"latest": map[string]interface{}{
			"workerEmail":   "a@x.com | b@y.com",
			"lastAnnotator": "c1",
			"score":         float64(0.9),
		},
		"history": []interface{}{
			map[string]interface{}{
				"workerEmail":       []interface{}{"a@x.com", "b@y.com"},
				"lastReviewerEmail": "b@y.com",
			},
		},
	}
}

func TestMaskDocumentRewritesAllLevels(t *testing.T) {
	doc := sampleDoc()
	changed := maskDocument(doc, "a@x.com", "c1")
	require.True(t, changed)

	assert.Equal(t, model.SentinelEmail, doc["worker_email"])
	assert.Equal(t, model.SentinelName, doc["workerId"])

	latest := doc["latest"].(map[string]interface{})
	assert.Equal(t, model.SentinelEmail+" | b@y.com", latest["workerEmail"])
	assert.Equal(t, model.SentinelName, latest["lastAnnotator"])
	assert.Equal(t, float64(0.9), latest["score"])

	entry := doc["history"].([]interface{})[0].(map[string]interface{})
	workers := entry["workerEmail"].([]interface{})
	assert.Equal(t, []interface{}{model.SentinelEmail, "b@y.com"}, workers)
	assert.Equal(t, "b@y.com", entry["lastReviewerEmail"])
}

func TestMaskDocumentRewritesRootIdentifierFields(t *testing.T) {
	doc := map[string]interface{}{
		"contributor_id": "c1",
		"worker_id":      "c1",
		"qa_checker_id":  "c1",
	}
	require.True(t, maskDocument(doc, "a@x.com", "c1"))

	assert.Equal(t, model.SentinelName, doc["contributor_id"])
	assert.Equal(t, model.SentinelName, doc["worker_id"])
	assert.Equal(t, model.SentinelName, doc["qa_checker_id"])
}

func TestMaskDocumentUsesEmailSentinelForEmailFields(t *testing.T) {
	doc := map[string]interface{}{
		"email_address":    "a@x.com",
		"qa_checker_email": "a@x.com",
	}
	require.True(t, maskDocument(doc, "a@x.com", "c1"))

	assert.Equal(t, model.SentinelEmail, doc["email_address"])
	assert.Equal(t, model.SentinelEmail, doc["qa_checker_email"])
}

func TestMaskDocumentUntouchedWhenNoMatch(t *testing.T) {
	doc := sampleDoc()
	changed := maskDocument(doc, "nobody@else.com", "c999")
	assert.False(t, changed)
	assert.Equal(t, "a@x.com", doc["worker_email"])
}

func TestMaskDocumentIsIdempotent(t *testing.T) {
	doc := sampleDoc()
	require.True(t, maskDocument(doc, "a@x.com", "c1"))
	assert.False(t, maskDocument(doc, "a@x.com", "c1"))
}

func TestMaskDocumentSkipsNonStringFields(t *testing.T) {
	doc := map[string]interface{}{
		"email":    float64(12345),
		"workerId": map[string]interface{}{"nested": "c1"},
	}
	changed := maskDocument(doc, "a@x.com", "c1")
	assert.False(t, changed)
	assert.Equal(t, float64(12345), doc["email"])
}
