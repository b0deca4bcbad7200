// pkg/storage/s3.go
package storage

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

// deleteBatchSize is the S3 DeleteObjects request ceiling
const deleteBatchSize = 1000

// ObjectAPI is the S3 surface the deleter needs
type ObjectAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Deleter removes a contributor's uploaded artifacts from object
// storage
type Deleter struct {
	api    ObjectAPI
	bucket string
	logger *zap.Logger
}

// NewDeleter creates an object storage deleter
func NewDeleter(api ObjectAPI, bucket string) *Deleter {
	return &Deleter{
		api:    api,
		bucket: bucket,
		logger: zap.L().Named("storage"),
	}
}

// Delete removes every object whose key carries the contributor id,
// in batches of up to 1000 keys
func (d *Deleter) Delete(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseStorage)

	if d.bucket == "" {
		outcome.AddNote("no bucket configured")
		return outcome.WithStatus(model.StatusSkipped)
	}

	keys, err := d.matchingKeys(ctx, c.ID)
	if err != nil {
		outcome.AddError(d.bucket, err)
		return outcome.WithStatus(model.StatusFailed)
	}

	deleted := 0
	for _, batch := range batchKeys(keys, deleteBatchSize) {
		objects := make([]types.ObjectIdentifier, len(batch))
		for i, key := range batch {
			objects[i] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		out, err := d.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			outcome.AddError(d.bucket, err)
			continue
		}

		deleted += len(batch) - len(out.Errors)
		for _, delErr := range out.Errors {
			outcome.AddError(aws.ToString(delErr.Key), errorFromDeleteError(delErr))
		}
	}

	d.logger.Info("Object storage cleanup complete",
		zap.String("contributor_id", c.ID),
		zap.Int("matched", len(keys)),
		zap.Int("deleted", deleted))

	return outcome.WithCounts(len(keys), deleted)
}

// Preview lists the keys that would be deleted
func (d *Deleter) Preview(ctx context.Context, c model.Contributor) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseStorage)

	if d.bucket == "" {
		outcome.AddNote("no bucket configured")
		return outcome.WithStatus(model.StatusSkipped)
	}

	keys, err := d.matchingKeys(ctx, c.ID)
	if err != nil {
		outcome.AddError(d.bucket, err)
		return outcome.WithStatus(model.StatusFailed)
	}

	if len(keys) > 0 {
		outcome.AddNote("would delete %d object(s) from %s", len(keys), d.bucket)
	}
	return outcome.WithCounts(len(keys), 0)
}

// matchingKeys pages through the bucket and keeps keys containing the
// contributor id
func (d *Deleter) matchingKeys(ctx context.Context, contributorID string) ([]string, error) {
	var keys []string
	var token *string

	for {
		out, err := d.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(d.bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.Contains(key, contributorID) {
				keys = append(keys, key)
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	return keys, nil
}

func batchKeys(keys []string, size int) [][]string {
	var batches [][]string
	for len(keys) > 0 {
		n := size
		if len(keys) < n {
			n = len(keys)
		}
		batches = append(batches, keys[:n])
		keys = keys[n:]
	}
	return batches
}

func errorFromDeleteError(e types.Error) error {
	return &deleteError{code: aws.ToString(e.Code), message: aws.ToString(e.Message)}
}

type deleteError struct {
	code    string
	message string
}

func (e *deleteError) Error() string {
	return e.code + ": " + e.message
}
