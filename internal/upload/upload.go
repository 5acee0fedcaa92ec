// Package upload implements the per-file upload state machine: it
// accepts an ordered byte stream and emits it to the object store as a
// single object, promoting from a buffered PUT to a streaming multipart
// upload once the buffer crosses the S3 multipart minimum part size.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/takkt-ag/s3wofs-go/internal/idalloc"
	"github.com/takkt-ag/s3wofs-go/internal/s3client"
)

// Threshold is the S3 multipart minimum part size (5 MiB). A Regular
// upload promotes to Multipart the moment its buffer reaches this size.
const Threshold = 5 * 1024 * 1024

// ErrInvalidState is returned by Write and Finish when called on an
// Empty upload, which no caller should ever observe outside the brief
// window an in-place transition moves the value out of a Node.
var ErrInvalidState = errors.New("upload: operation not valid in Empty state")

// state tags which variant an Upload currently holds.
type state int

const (
	stateEmpty state = iota
	stateRegular
	stateMultipart
)

// Upload is a tagged union with exactly one live variant at a time:
// Regular (buffering for a single PUT), Multipart (streaming parts), or
// Empty (a transient placeholder used only while a value is in transit
// between a Node and an in-flight RPC).
//
// Every operation takes the receiver by value and returns the next
// state by value — nothing is mutated in place — so a caller that moves
// an Upload out of shared storage, calls a method, and moves the result
// back can never observe half of an old state mixed with half of a new
// one.
type Upload struct {
	st state

	bucket string
	key    string

	buffer bytes.Buffer

	uploadID    string
	partNumbers *idalloc.Allocator
	parts       []types.CompletedPart
}

// New returns the initial Regular state for a file about to be written
// to bucket under key.
func New(bucket, key string) Upload {
	return Upload{st: stateRegular, bucket: bucket, key: key}
}

// IsMultipart reports whether the upload has been promoted to the
// streaming multipart state. Destroy issues an abort RPC only in this
// state.
func (u Upload) IsMultipart() bool {
	return u.st == stateMultipart
}

// UploadID returns the multipart upload ID, or "" if the upload has not
// been promoted.
func (u Upload) UploadID() string {
	return u.uploadID
}

// Write appends data to the current buffer, promoting Regular to
// Multipart and/or flushing a part to the object store as needed, and
// returns the next state. It is synchronous: it does not return until
// any RPC it issues has been acknowledged.
func (u Upload) Write(ctx context.Context, client s3client.Client, data []byte) (Upload, error) {
	switch u.st {
	case stateRegular:
		u.buffer.Write(data)
		if u.buffer.Len() < Threshold {
			return u, nil
		}
		return u.promote(ctx, client)

	case stateMultipart:
		u.buffer.Write(data)
		if u.buffer.Len() < Threshold {
			return u, nil
		}
		if err := u.uploadPart(ctx, client); err != nil {
			return u, err
		}
		return u, nil

	default:
		return u, ErrInvalidState
	}
}

// promote transitions a Regular upload whose buffer has reached
// Threshold into Multipart: it creates the multipart upload, uploads the
// entire accumulated buffer as part 1, and returns the new state with an
// empty buffer.
func (u Upload) promote(ctx context.Context, client s3client.Client) (Upload, error) {
	out, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: &u.bucket,
		Key:    &u.key,
	})
	if err != nil {
		return u, fmt.Errorf("upload: failed to create multipart upload for %s/%s: %w", u.bucket, u.key, err)
	}
	if out.UploadId == nil {
		return u, fmt.Errorf("upload: create-multipart-upload for %s/%s returned no upload id", u.bucket, u.key)
	}

	u.st = stateMultipart
	u.uploadID = *out.UploadId
	u.partNumbers = idalloc.New(1)

	if err := u.uploadPart(ctx, client); err != nil {
		return u, err
	}
	return u, nil
}

// uploadPart uploads the current buffer as the next part and resets the
// buffer. It is only ever called on a Multipart upload with a non-empty
// buffer.
func (u *Upload) uploadPart(ctx context.Context, client s3client.Client) error {
	partNumber := int32(u.partNumbers.Next())
	body := append([]byte(nil), u.buffer.Bytes()...)
	u.buffer.Reset()

	contentLength := int64(len(body))
	out, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        &u.bucket,
		Key:           &u.key,
		UploadId:      &u.uploadID,
		PartNumber:    &partNumber,
		Body:          bytes.NewReader(body),
		ContentLength: &contentLength,
	})
	if err != nil {
		return fmt.Errorf("upload: failed to upload part %d for %s/%s: %w", partNumber, u.bucket, u.key, err)
	}
	if out.ETag == nil {
		return fmt.Errorf("upload: upload-part %d for %s/%s returned no ETag", partNumber, u.bucket, u.key)
	}

	u.parts = append(u.parts, types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: &partNumber,
	})
	return nil
}

// Finish completes the upload: a single PUT for Regular (even with an
// empty buffer — zero-byte files must still produce a zero-byte
// object), or a final part plus complete-multipart-upload for Multipart.
func (u Upload) Finish(ctx context.Context, client s3client.Client) error {
	switch u.st {
	case stateRegular:
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &u.bucket,
			Key:    &u.key,
			Body:   bytes.NewReader(u.buffer.Bytes()),
		})
		if err != nil {
			return fmt.Errorf("upload: failed to put object %s/%s: %w", u.bucket, u.key, err)
		}
		return nil

	case stateMultipart:
		if u.buffer.Len() > 0 {
			if err := u.uploadPart(ctx, client); err != nil {
				return err
			}
		}
		_, err := client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:   &u.bucket,
			Key:      &u.key,
			UploadId: &u.uploadID,
			MultipartUpload: &types.CompletedMultipartUpload{
				Parts: u.parts,
			},
		})
		if err != nil {
			return fmt.Errorf("upload: failed to complete multipart upload for %s/%s: %w", u.bucket, u.key, err)
		}
		return nil

	default:
		return ErrInvalidState
	}
}

// Destroy aborts the upload: issues abort-multipart-upload for
// Multipart, otherwise does nothing. It is the teardown path invoked on
// unmount or panic cleanup, and must never itself return an error that
// a caller would treat as fatal — callers log and swallow it.
func (u Upload) Destroy(ctx context.Context, client s3client.Client) error {
	if u.st != stateMultipart {
		return nil
	}
	_, err := client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   &u.bucket,
		Key:      &u.key,
		UploadId: &u.uploadID,
	})
	if err != nil {
		return fmt.Errorf("upload: failed to abort multipart upload %s for %s/%s: %w", u.uploadID, u.bucket, u.key, err)
	}
	return nil
}
