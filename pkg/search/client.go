// pkg/search/client.go
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
)

// Document is one search hit with its source
type Document struct {
	ID     string
	Source map[string]interface{}
}

// API is the subset of the search cluster surface the operator needs.
// Kept small so tests can fake it.
type API interface {
	// UpdateByQuery submits an async update-by-query and returns the
	// server-side task id
	UpdateByQuery(ctx context.Context, index string, body []byte) (string, error)

	// GetTask fetches the raw status document for an async task
	GetTask(ctx context.Context, taskID string) ([]byte, error)

	// Count returns the number of documents matching body in index
	Count(ctx context.Context, index string, body []byte) (int, error)

	// IndexExists reports whether an index is present
	IndexExists(ctx context.Context, index string) (bool, error)

	// ListIndices returns index names matching a pattern
	ListIndices(ctx context.Context, pattern string) ([]string, error)

	// SearchDocs returns matching documents with their sources
	SearchDocs(ctx context.Context, index string, body []byte, size int) ([]Document, error)

	// UpdateDoc applies a partial document update
	UpdateDoc(ctx context.Context, index, docID string, doc map[string]interface{}) error
}

// Client implements API over a go-elasticsearch client
type Client struct {
	es *elasticsearch.Client
}

// NewClient wraps an Elasticsearch client
func NewClient(es *elasticsearch.Client) *Client {
	return &Client{es: es}
}

func (c *Client) UpdateByQuery(ctx context.Context, index string, body []byte) (string, error) {
	res, err := c.es.UpdateByQuery(
		[]string{index},
		c.es.UpdateByQuery.WithContext(ctx),
		c.es.UpdateByQuery.WithBody(bytes.NewReader(body)),
		c.es.UpdateByQuery.WithConflicts("proceed"),
		c.es.UpdateByQuery.WithWaitForCompletion(false),
		c.es.UpdateByQuery.WithSlices("auto"),
		c.es.UpdateByQuery.WithRequestsPerSecond(-1),
	)
	if err != nil {
		return "", fmt.Errorf("update-by-query on %s failed: %w", index, err)
	}

	payload, err := readResponse(res, index)
	if err != nil {
		return "", err
	}

	var out struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("failed to decode update-by-query response: %w", err)
	}
	if out.Task == "" {
		return "", fmt.Errorf("update-by-query on %s returned no task id", index)
	}
	return out.Task, nil
}

func (c *Client) GetTask(ctx context.Context, taskID string) ([]byte, error) {
	res, err := c.es.Tasks.Get(
		taskID,
		c.es.Tasks.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("task status request failed: %w", err)
	}
	return readResponse(res, taskID)
}

func (c *Client) Count(ctx context.Context, index string, body []byte) (int, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
		c.es.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("count on %s failed: %w", index, err)
	}

	payload, err := readResponse(res, index)
	if err != nil {
		return 0, err
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return out.Count, nil
}

func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.es.Indices.Exists(
		[]string{index},
		c.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("index existence check for %s failed: %w", index, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	return res.StatusCode == 200, nil
}

func (c *Client) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := c.es.Cat.Indices(
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithIndex(pattern),
		c.es.Cat.Indices.WithFormat("json"),
		c.es.Cat.Indices.WithH("index"),
	)
	if err != nil {
		return nil, fmt.Errorf("index discovery for %s failed: %w", pattern, err)
	}

	payload, err := readResponse(res, pattern)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode index catalog: %w", err)
	}

	indices := make([]string, 0, len(rows))
	for _, row := range rows {
		indices = append(indices, row.Index)
	}
	return indices, nil
}

func (c *Client) SearchDocs(ctx context.Context, index string, body []byte, size int) ([]Document, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithSize(size),
	)
	if err != nil {
		return nil, fmt.Errorf("search on %s failed: %w", index, err)
	}

	payload, err := readResponse(res, index)
	if err != nil {
		return nil, err
	}

	var out struct {
		Hits struct {
			Hits []struct {
				ID     string                 `json:"_id"`
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	docs := make([]Document, 0, len(out.Hits.Hits))
	for _, hit := range out.Hits.Hits {
		docs = append(docs, Document{ID: hit.ID, Source: hit.Source})
	}
	return docs, nil
}

func (c *Client) UpdateDoc(ctx context.Context, index, docID string, doc map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"doc": doc})
	if err != nil {
		return fmt.Errorf("failed to encode document update: %w", err)
	}

	res, err := c.es.Update(
		index,
		docID,
		bytes.NewReader(body),
		c.es.Update.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("document update %s/%s failed: %w", index, docID, err)
	}

	_, err = readResponse(res, index)
	return err
}

func readResponse(res *esapi.Response, target string) ([]byte, error) {
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("request against %s returned %s: %s", target, res.Status(), string(payload))
	}
	return payload, nil
}
