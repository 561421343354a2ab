// Package s3 implements types.ObjectStorage on top of the AWS SDK v2.
// It works against AWS S3 and any S3-compatible endpoint.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"entitystore/config"
	"entitystore/observability"
	"entitystore/storage/types"
)

// Client implements the ObjectStorage interface for AWS S3
type Client struct {
	s3Client *s3.Client
	config   *config.StorageConfig
	logger   observability.Logger
	metrics  observability.Metrics
}

// NewClient creates a new S3 storage client. optFns are applied to the
// S3 client options after the configuration-derived ones.
func NewClient(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics, optFns ...func(*s3.Options)) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid S3 configuration: %w", err)
	}

	awsCfg, err := buildAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	endpoint := cfg.EndpointURL()
	opts := append([]func(*s3.Options){
		func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
			o.UsePathStyle = cfg.PathStyle
		},
	}, optFns...)

	return &Client{
		s3Client: s3.NewFromConfig(awsCfg, opts...),
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Put stores an object in S3. The body is buffered to learn its size.
func (c *Client) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata types.ObjectMetadata) (*types.UploadInfo, error) {
	defer c.track("put")()

	bucket = c.bucket(bucket)

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, reader); err != nil {
		c.metrics.RecordError("put", "read")
		c.logger.Error(ctx, "failed to read content", err, observability.Fields{
			"bucket": bucket,
			"key":    key,
		})
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
	}

	if metadata.ContentType != "" {
		input.ContentType = aws.String(metadata.ContentType)
	}
	if metadata.ContentEncoding != "" {
		input.ContentEncoding = aws.String(metadata.ContentEncoding)
	}
	if metadata.CacheControl != "" {
		input.CacheControl = aws.String(metadata.CacheControl)
	}
	if len(metadata.UserMetadata) > 0 {
		input.Metadata = metadata.UserMetadata
	}

	out, err := c.s3Client.PutObject(ctx, input)
	if err != nil {
		c.metrics.RecordError("put", errorType(err))
		c.logger.Error(ctx, "failed to put object", err, observability.Fields{
			"bucket": bucket,
			"key":    key,
		})
		if isBucketNotFoundError(err) {
			return nil, fmt.Errorf("failed to put object: %w: %s", types.ErrBucketNotFound, bucket)
		}
		return nil, fmt.Errorf("failed to put object: %w", err)
	}

	c.metrics.RecordSuccess("put")
	c.metrics.RecordObjectSize("put", int64(buf.Len()))
	c.logger.Debug(ctx, "object stored successfully", observability.Fields{
		"bucket": bucket,
		"key":    key,
		"size":   buf.Len(),
	})

	return &types.UploadInfo{
		Bucket: bucket,
		Key:    key,
		ETag:   aws.ToString(out.ETag),
		Size:   int64(buf.Len()),
	}, nil
}

// Get retrieves an object from S3
func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, _, err := c.GetWithMetadata(ctx, bucket, key)
	return body, err
}

// GetWithMetadata retrieves an object along with its metadata
func (c *Client) GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *types.ObjectMetadata, error) {
	defer c.track("get")()

	bucket = c.bucket(bucket)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.metrics.RecordError("get", errorType(err))
		if isNotFoundError(err) {
			c.logger.Debug(ctx, "object not found", observability.Fields{
				"bucket": bucket,
				"key":    key,
			})
			return nil, nil, types.ErrObjectNotFound
		}
		c.logger.Error(ctx, "failed to get object", err, observability.Fields{
			"bucket": bucket,
			"key":    key,
		})
		if isBucketNotFoundError(err) {
			return nil, nil, fmt.Errorf("failed to get object: %w: %s", types.ErrBucketNotFound, bucket)
		}
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}

	metadata := &types.ObjectMetadata{
		ContentType:     aws.ToString(result.ContentType),
		ContentLength:   aws.ToInt64(result.ContentLength),
		ContentEncoding: aws.ToString(result.ContentEncoding),
		CacheControl:    aws.ToString(result.CacheControl),
		LastModified:    aws.ToTime(result.LastModified),
		ETag:            aws.ToString(result.ETag),
		UserMetadata:    result.Metadata,
	}

	c.metrics.RecordSuccess("get")
	c.metrics.RecordObjectSize("get", metadata.ContentLength)

	return result.Body, metadata, nil
}

// Delete removes an object from S3
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	defer c.track("delete")()

	bucket = c.bucket(bucket)

	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil
		}
		c.metrics.RecordError("delete", errorType(err))
		c.logger.Error(ctx, "failed to delete object", err, observability.Fields{
			"bucket": bucket,
			"key":    key,
		})
		return fmt.Errorf("failed to delete object: %w", err)
	}

	c.metrics.RecordSuccess("delete")
	c.logger.Debug(ctx, "object deleted successfully", observability.Fields{
		"bucket": bucket,
		"key":    key,
	})

	return nil
}

// Exists checks if an object exists in S3
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	bucket = c.bucket(bucket)

	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		c.metrics.RecordError("exists", errorType(err))
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}

// List returns every object under prefix
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	defer c.track("list")()

	bucket = c.bucket(bucket)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	objects := make([]types.ObjectInfo, 0)
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.metrics.RecordError("list", errorType(err))
			c.logger.Error(ctx, "failed to list objects", err, observability.Fields{
				"bucket": bucket,
				"prefix": prefix,
			})
			if isBucketNotFoundError(err) {
				return nil, fmt.Errorf("failed to list objects: %w: %s", types.ErrBucketNotFound, bucket)
			}
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}
	}

	c.metrics.RecordSuccess("list")
	c.logger.Debug(ctx, "objects listed successfully", observability.Fields{
		"bucket": bucket,
		"prefix": prefix,
		"count":  len(objects),
	})

	return objects, nil
}

// BucketExists checks the bucket with HeadBucket
func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	bucket = c.bucket(bucket)

	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if isNotFoundError(err) || isBucketNotFoundError(err) {
			return false, nil
		}
		c.metrics.RecordError("bucket_exists", errorType(err))
		return false, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	return true, nil
}

// CreateBucket creates a new S3 bucket
func (c *Client) CreateBucket(ctx context.Context, bucket string) error {
	bucket = c.bucket(bucket)

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}

	// us-east-1 rejects an explicit location constraint
	if c.config.Region != "" && c.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(c.config.Region),
		}
	}

	_, err := c.s3Client.CreateBucket(ctx, input)
	if err != nil {
		var bae *s3types.BucketAlreadyExists
		var baoyb *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &bae) || errors.As(err, &baoyb) {
			c.logger.Debug(ctx, "bucket already exists", observability.Fields{
				"bucket": bucket,
			})
			return nil
		}

		c.metrics.RecordError("create_bucket", errorType(err))
		c.logger.Error(ctx, "failed to create bucket", err, observability.Fields{
			"bucket": bucket,
		})
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	c.logger.Info(ctx, "bucket created successfully", observability.Fields{
		"bucket": bucket,
	})

	return nil
}

// DeleteBucket removes an S3 bucket
func (c *Client) DeleteBucket(ctx context.Context, bucket string) error {
	bucket = c.bucket(bucket)

	_, err := c.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		c.metrics.RecordError("delete_bucket", errorType(err))
		c.logger.Error(ctx, "failed to delete bucket", err, observability.Fields{
			"bucket": bucket,
		})
		return fmt.Errorf("failed to delete bucket: %w", err)
	}

	c.logger.Info(ctx, "bucket deleted successfully", observability.Fields{
		"bucket": bucket,
	})

	return nil
}

func (c *Client) bucket(bucket string) string {
	if bucket == "" {
		return c.config.Bucket
	}
	return bucket
}

// track records the in-progress gauge and duration of one operation.
func (c *Client) track(operation string) func() {
	start := time.Now()
	c.metrics.StartOperation(operation)
	return func() {
		c.metrics.EndOperation(operation)
		c.metrics.RecordDuration(operation, time.Since(start).Seconds())
	}
}

// buildAWSConfig builds the AWS configuration from the storage config
func buildAWSConfig(cfg *config.StorageConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}

	// Static credentials win over the default chain when provided
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				cfg.SessionToken,
			),
		))
	}

	if cfg.MaxRetries > 0 {
		optFns = append(optFns, awsconfig.WithRetryMaxAttempts(cfg.MaxRetries))
	}

	optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
	}))

	return awsconfig.LoadDefaultConfig(context.Background(), optFns...)
}

// isNotFoundError reports S3 "no such key" conditions
func isNotFoundError(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return !isBucketNotFoundError(err)
	}

	return false
}

// isBucketNotFoundError reports a missing bucket
func isBucketNotFoundError(err error) bool {
	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}

	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket"
}

// errorType is the metrics label for err
func errorType(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}
