package blobstore

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/apperrors"
)

// credentialRefreshWindow is how close to expiry credentials may get before
// a batch refuses to start with them.
const credentialRefreshWindow = 2 * time.Minute

// S3Options configures the store client. Static credentials are for
// S3-compatible servers; left empty, the default AWS chain applies.
type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store implements Store on top of the AWS SDK. An optional endpoint
// override points it at an S3-compatible server in development. Object
// transfers go through the transfer manager, which splits large objects
// into concurrent parts.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	creds      aws.CredentialsProvider
}

// NewS3Store builds the S3 client for the given options. When the endpoint
// is non-empty the client uses path-style addressing against it.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		provider := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(provider)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		creds:      cfg.Credentials,
	}, nil
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, apperrors.Error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(ctx, "get", bucket, key, err)
	}
	return buf.Bytes(), nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte) apperrors.Error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return mapS3Error(ctx, "put", bucket, key, err)
	}
	return nil
}

func (s *S3Store) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) apperrors.Error {
	// Keys are base58 ids, decimal timestamps and hex hashes, so the copy
	// source needs no URL encoding.
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(srcBucket + "/" + srcKey),
	})
	if err != nil {
		return mapS3Error(ctx, "copy", dstBucket, srcKey+" -> "+dstKey, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, bucket, key string) apperrors.Error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error(ctx, "delete", bucket, key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, apperrors.Error) {
	var objects []ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error(ctx, "list", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				LastModified: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}

	return objects, nil
}

// EnsureCredentials retrieves the current credentials and forces a refresh
// when they are within the expiry window.
func (s *S3Store) EnsureCredentials(ctx context.Context) apperrors.Error {
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return ErrBlobStore.MsgErr("failed to retrieve credentials", err)
	}
	if !creds.CanExpire || time.Until(creds.Expires) > credentialRefreshWindow {
		return nil
	}

	log.Ctx(ctx).Info().Time("expires", creds.Expires).Msg("credentials close to expiry, refreshing")
	if cache, ok := s.creds.(*aws.CredentialsCache); ok {
		cache.Invalidate()
	}
	if _, err := s.creds.Retrieve(ctx); err != nil {
		return ErrBlobStore.MsgErr("failed to refresh credentials", err)
	}
	return nil
}

// mapS3Error folds SDK errors into the store taxonomy. Missing objects get
// their own sentinel; everything else stays retryable.
func mapS3Error(ctx context.Context, op, bucket, key string, err error) apperrors.Error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrObjectNotFound.Msg(op + " " + bucket + "/" + key)
	}
	log.Ctx(ctx).Error().Err(err).Str("op", op).Str("bucket", bucket).Str("key", key).Msg("object store operation failed")
	return ErrBlobStore.Err(err)
}

var _ Store = (*S3Store)(nil)
