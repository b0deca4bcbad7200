package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

type fakeObjectAPI struct {
	pages   [][]string
	page    int
	deleted [][]string
}

func (f *fakeObjectAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	keys := f.pages[f.page]
	contents := make([]types.Object, len(keys))
	for i, k := range keys {
		contents[i] = types.Object{Key: aws.String(k)}
	}

	truncated := f.page < len(f.pages)-1
	f.page++
	return &s3.ListObjectsV2Output{
		Contents:              contents,
		IsTruncated:           aws.Bool(truncated),
		NextContinuationToken: aws.String(fmt.Sprintf("page-%d", f.page)),
	}, nil
}

func (f *fakeObjectAPI) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	var batch []string
	for _, obj := range params.Delete.Objects {
		batch = append(batch, aws.ToString(obj.Key))
	}
	f.deleted = append(f.deleted, batch)
	return &s3.DeleteObjectsOutput{}, nil
}

func TestDeleteMatchesKeysAcrossPages(t *testing.T) {
	api := &fakeObjectAPI{pages: [][]string{
		{"uploads/c1/avatar.png", "uploads/c2/avatar.png"},
		{"exports/report-c1.csv", "exports/report-c3.csv"},
	}}

	d := NewDeleter(api, "kepler-artifacts")
	outcome := d.Delete(context.Background(), model.Contributor{ID: "c1"})

	require.Equal(t, model.StatusSucceeded, outcome.Status)
	assert.Equal(t, 2, outcome.Matched)
	assert.Equal(t, 2, outcome.Modified)
	require.Len(t, api.deleted, 1)
	assert.Equal(t, []string{"uploads/c1/avatar.png", "exports/report-c1.csv"}, api.deleted[0])
}

func TestDeleteSkipsWhenNoBucketConfigured(t *testing.T) {
	d := NewDeleter(&fakeObjectAPI{pages: [][]string{{}}}, "")
	outcome := d.Delete(context.Background(), model.Contributor{ID: "c1"})
	assert.Equal(t, model.StatusSkipped, outcome.Status)
}

func TestPreviewDoesNotDelete(t *testing.T) {
	api := &fakeObjectAPI{pages: [][]string{{"uploads/c1/a.png"}}}

	d := NewDeleter(api, "kepler-artifacts")
	outcome := d.Preview(context.Background(), model.Contributor{ID: "c1"})

	assert.Equal(t, 1, outcome.Matched)
	assert.Equal(t, 0, outcome.Modified)
	assert.Empty(t, api.deleted)
}

func TestBatchKeysRespectsCeiling(t *testing.T) {
	keys := make([]string, 2500)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%d", i)
	}

	batches := batchKeys(keys, 1000)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 1000)
	assert.Len(t, batches[1], 1000)
	assert.Len(t, batches[2], 500)
}
