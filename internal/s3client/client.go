// Package s3client defines the narrow object-store RPC surface the
// upload state machine needs, and an aws-sdk-go-v2-backed implementation
// of it.
package s3client

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Client is the set of object-store operations the upload state machine
// is allowed to call (spec §6). It is intentionally narrower than
// *s3.Client, mirroring gurre-s3streamer's S3Client interface, so tests
// can substitute an in-memory fake for the real service.
type Client interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// CompletedPart is re-exported so callers outside this package never need
// to import aws-sdk-go-v2/service/s3/types directly.
type CompletedPart = types.CompletedPart

// New constructs a Client from the default AWS configuration chain
// (environment, shared config/credentials files, EC2 instance metadata),
// optionally pinned to region.
func New(ctx context.Context, region string) (Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg), nil
}

// Static assertion that *s3.Client satisfies Client.
var _ Client = (*s3.Client)(nil)
