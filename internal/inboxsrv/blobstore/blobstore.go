// Package blobstore provides object storage for inbound submissions, project
// reports and developer profiles. The S3 implementation is the production
// backend; the memory implementation backs tests.
package blobstore

import (
	"context"
	"time"

	"github.com/devatlas/devatlas/internal/common/apperrors"
)

var (
	ErrBlobStore apperrors.Error = apperrors.New("object store error")
	// The object named by the caller does not exist. Permanent for the
	// operation that asked; listings and retries will not bring it back.
	ErrObjectNotFound apperrors.Error = ErrBlobStore.New("object not found").SetDisposition(apperrors.DoNotRetry)
	ErrInvalidKey     apperrors.Error = ErrBlobStore.New("invalid object key").SetDisposition(apperrors.DoNotRetry)
)

// ObjectInfo describes one stored object as returned by List. LastModified
// comes from the listing itself, which is what report ordering is based on.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// Store is the object storage interface. Keys follow the grammars in this
// package; buckets are passed explicitly because submissions, private
// reports and GitHub-sourced reports live in different buckets.
type Store interface {
	// Get returns the object's content.
	Get(ctx context.Context, bucket, key string) ([]byte, apperrors.Error)
	// Put stores the content under the key, replacing any existing object.
	Put(ctx context.Context, bucket, key string, data []byte) apperrors.Error
	// Copy duplicates an object, possibly across buckets. The source is
	// left untouched.
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) apperrors.Error
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) apperrors.Error
	// List returns all objects under the prefix with their listing
	// metadata.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, apperrors.Error)
	// EnsureCredentials refreshes access credentials that are about to
	// expire. Called at batch boundaries so a long merge batch does not
	// fail halfway through.
	EnsureCredentials(ctx context.Context) apperrors.Error
}
