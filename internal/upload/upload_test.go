package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockClient is a hand-rolled fake of s3client.Client, in the same style
// as gurre-s3streamer's mockS3ClientWriter: it records every call, and
// CreateMultipartUpload/UploadPart fail when their error field is set.
type mockClient struct {
	createCalls   int
	uploadedParts map[int32][]byte
	uploadOrder   []int32
	completed     *s3.CompleteMultipartUploadInput
	aborted       *s3.AbortMultipartUploadInput
	putObject     *s3.PutObjectInput

	uploadPartErr error
	createErr     error
}

func (m *mockClient) CreateMultipartUpload(_ context.Context, _ *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createCalls++
	id := "test-upload-id"
	return &s3.CreateMultipartUploadOutput{UploadId: &id}, nil
}

func (m *mockClient) UploadPart(_ context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if m.uploadPartErr != nil {
		return nil, m.uploadPartErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if m.uploadedParts == nil {
		m.uploadedParts = make(map[int32][]byte)
	}
	m.uploadedParts[*params.PartNumber] = data
	m.uploadOrder = append(m.uploadOrder, *params.PartNumber)

	etag := fmt.Sprintf("etag-%d", *params.PartNumber)
	return &s3.UploadPartOutput{ETag: &etag}, nil
}

func (m *mockClient) CompleteMultipartUpload(_ context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	m.completed = params
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *mockClient) AbortMultipartUpload(_ context.Context, params *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.aborted = params
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (m *mockClient) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.putObject = params
	return &s3.PutObjectOutput{}, nil
}

func TestTinyFile(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}

	u := New("bucket", "hello.txt")
	u, err := u.Write(ctx, client, []byte("hi\n"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if u.IsMultipart() {
		t.Fatal("expected Regular upload to stay Regular below threshold")
	}
	if err := u.Finish(ctx, client); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if client.createCalls != 0 {
		t.Fatalf("expected zero multipart calls, got %d create-multipart-upload calls", client.createCalls)
	}
	if client.putObject == nil {
		t.Fatal("expected exactly one put-object call")
	}
	body, _ := io.ReadAll(client.putObject.Body)
	if !bytes.Equal(body, []byte("hi\n")) {
		t.Fatalf("put-object body = %q, want %q", body, "hi\n")
	}
}

func TestEmptyFile(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}

	u := New("bucket", "empty")
	if err := u.Finish(ctx, client); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if client.putObject == nil {
		t.Fatal("expected a put-object call for a zero-byte file")
	}
	body, _ := io.ReadAll(client.putObject.Body)
	if len(body) != 0 {
		t.Fatalf("expected zero-byte body, got %d bytes", len(body))
	}
}

func TestPromotionAtBoundary(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}

	big := bytes.Repeat([]byte("a"), Threshold)

	u := New("bucket", "big.bin")
	u, err := u.Write(ctx, client, big)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !u.IsMultipart() {
		t.Fatal("expected promotion to Multipart at the threshold")
	}
	if client.createCalls != 1 {
		t.Fatalf("expected exactly one create-multipart-upload, got %d", client.createCalls)
	}
	if len(client.uploadedParts) != 1 || len(client.uploadedParts[1]) != Threshold {
		t.Fatalf("expected part 1 to carry the full %d bytes", Threshold)
	}

	if err := u.Finish(ctx, client); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if client.completed == nil {
		t.Fatal("expected complete-multipart-upload to be called")
	}
	if len(client.completed.MultipartUpload.Parts) != 1 {
		t.Fatalf("expected exactly one completed part, got %d", len(client.completed.MultipartUpload.Parts))
	}
}

func TestPromotionThenTrailingSmallWrite(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}

	u := New("bucket", "mix")
	u, err := u.Write(ctx, client, bytes.Repeat([]byte("a"), Threshold))
	if err != nil {
		t.Fatalf("write 1: %v", err)
	}
	u, err = u.Write(ctx, client, bytes.Repeat([]byte("b"), 100))
	if err != nil {
		t.Fatalf("write 2: %v", err)
	}
	if len(client.uploadedParts) != 1 {
		t.Fatalf("trailing 100-byte write must not flush a part early, saw %d parts", len(client.uploadedParts))
	}

	if err := u.Finish(ctx, client); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(client.uploadedParts) != 2 {
		t.Fatalf("expected the tail to upload as part 2 on finish, got %d parts", len(client.uploadedParts))
	}
	if len(client.uploadedParts[2]) != 100 {
		t.Fatalf("expected part 2 to carry the 100-byte tail, got %d bytes", len(client.uploadedParts[2]))
	}
	wantOrder := []int32{1, 2}
	for i, pn := range wantOrder {
		if client.completed.MultipartUpload.Parts[i].PartNumber == nil || *client.completed.MultipartUpload.Parts[i].PartNumber != pn {
			t.Fatalf("completed parts out of order: %+v", client.completed.MultipartUpload.Parts)
		}
	}
}

func TestDestroyAbortsOnlyWhenMultipart(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}

	// Regular upload that never promoted: destroy issues no RPC.
	u := New("bucket", "abandoned-small")
	if err := u.Destroy(ctx, client); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if client.aborted != nil {
		t.Fatal("expected no abort-multipart-upload for a Regular upload")
	}

	// Promoted upload: destroy issues exactly one abort with the
	// captured upload ID.
	u2 := New("bucket", "abandoned")
	u2, err := u2.Write(ctx, client, bytes.Repeat([]byte("a"), Threshold+1))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := u2.Destroy(ctx, client); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if client.aborted == nil {
		t.Fatal("expected exactly one abort-multipart-upload")
	}
	if *client.aborted.UploadId != u2.UploadID() {
		t.Fatalf("abort used upload id %q, want %q", *client.aborted.UploadId, u2.UploadID())
	}
	if client.completed != nil {
		t.Fatal("destroy must not issue complete-multipart-upload")
	}
}

func TestRoundTripBytesAcrossManyWrites(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}

	var want bytes.Buffer
	u := New("bucket", "roundtrip")
	chunks := [][]byte{
		bytes.Repeat([]byte("x"), 3*1024*1024),
		bytes.Repeat([]byte("y"), 3*1024*1024),
		bytes.Repeat([]byte("z"), 100),
	}
	var err error
	for _, c := range chunks {
		want.Write(c)
		u, err = u.Write(ctx, client, c)
		if err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := u.Finish(ctx, client); err != nil {
		t.Fatalf("finish: %v", err)
	}

	var got bytes.Buffer
	for _, pn := range client.uploadOrder {
		got.Write(client.uploadedParts[pn])
	}
	if !bytes.Equal(got.Bytes(), want.Bytes()) {
		t.Fatal("concatenation of uploaded parts does not equal the bytes written")
	}
}

func TestWriteOnEmptyStateFails(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}

	var empty Upload
	if _, err := empty.Write(ctx, client, []byte("x")); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := empty.Finish(ctx, client); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := empty.Destroy(ctx, client); err != nil {
		t.Fatalf("destroy on Empty must be a no-op, got %v", err)
	}
}
