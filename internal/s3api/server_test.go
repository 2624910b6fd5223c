package s3api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/LoyaltyPointHQ/lamina/internal/authstore"
	"github.com/LoyaltyPointHQ/lamina/internal/bucketregistry"
	"github.com/LoyaltyPointHQ/lamina/internal/cache"
	"github.com/LoyaltyPointHQ/lamina/internal/facade"
	"github.com/LoyaltyPointHQ/lamina/internal/multipart"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore/driver/memstore"
)

// setupTestServer builds a Server over a fresh in-memory backend and
// exposes it via httptest, returning the base URL and a cleanup func, the
// same shape server_test.go's setupTestServer/doRequest helpers provide.
func setupTestServer(t *testing.T, auth *authstore.Store) (string, func()) {
	t.Helper()

	store := memstore.New()
	fac := facade.New(facade.Config{Data: store, Meta: store, Cache: cache.New(1 << 20)})
	mpm := multipart.New(multipart.Config{Multipart: store, Data: store, Meta: store})
	buckets := bucketregistry.New(fac.IsBucketEmpty, fac.PurgeBucket)

	srv := New(Config{Facade: fac, Multipart: mpm, Buckets: buckets, Auth: auth, Region: "us-east-1"})
	ts := httptest.NewServer(srv.Handler())

	return ts.URL, ts.Close
}

func newPathStyleClient(t *testing.T, ctx context.Context, baseURL, accessKey, secret string) *s3.Client {
	t.Helper()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secret, "")),
		awsconfig.WithBaseEndpoint(baseURL),
	)
	if err != nil {
		t.Fatalf("load aws config: %v", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) { o.UsePathStyle = true })
}

func TestBucketLifecycleNoAuth(t *testing.T) {
	baseURL, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()
	client := newPathStyleClient(t, ctx, baseURL, "anonymous", "anonymous")

	bucket := "test-bucket"
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("HeadBucket: %v", err)
	}
	if _, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
}

func TestPutGetObjectRoundTrip(t *testing.T) {
	baseURL, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()
	client := newPathStyleClient(t, ctx, baseURL, "anonymous", "anonymous")

	bucket := "test-bucket"
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	body := []byte("hello lamina")
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String("greeting.txt"),
		Body:   bytes.NewReader(body),
	}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String("greeting.txt")})
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer out.Body.Close()
	got, err := io.ReadAll(out.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("body = %q, want %q", got, body)
	}
}

func TestGetMissingObjectReturnsNoSuchKey(t *testing.T) {
	baseURL, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()
	client := newPathStyleClient(t, ctx, baseURL, "anonymous", "anonymous")

	bucket := "test-bucket"
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	_, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String("missing.txt")})
	var nsk *s3types.NoSuchKey
	if !errors.As(err, &nsk) {
		t.Fatalf("expected NoSuchKey error, got %v", err)
	}
}

func TestSigV4AuthenticationRoundTrip(t *testing.T) {
	store, err := authstore.New([]authstore.UserConfig{
		{
			AccessKeyID:     "TESTKEY",
			SecretAccessKey: "TESTSECRET",
			Permissions: []authstore.Permission{
				{Pattern: "*", Actions: map[authstore.Action]bool{authstore.ActionRead: true, authstore.ActionWrite: true}},
			},
		},
	})
	if err != nil {
		t.Fatalf("authstore.New: %v", err)
	}

	baseURL, cleanup := setupTestServer(t, store)
	defer cleanup()
	ctx := context.Background()

	client := newPathStyleClient(t, ctx, baseURL, "TESTKEY", "TESTSECRET")
	bucket := "test-bucket"
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("CreateBucket with valid signature: %v", err)
	}

	bad := newPathStyleClient(t, ctx, baseURL, "WRONGKEY", "WRONGSECRET")
	if _, err := bad.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("other-bucket")}); err == nil {
		t.Fatal("expected error with bad credentials")
	}
}

func TestMultipartUploadRoundTrip(t *testing.T) {
	baseURL, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()
	client := newPathStyleClient(t, ctx, baseURL, "anonymous", "anonymous")

	bucket := "test-bucket"
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	created, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String("big.bin"),
	})
	if err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}

	partData := bytes.Repeat([]byte("a"), 5*1024*1024)
	uploaded, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String("big.bin"),
		UploadId:   created.UploadId,
		PartNumber: aws.Int32(1),
		Body:       bytes.NewReader(partData),
	})
	if err != nil {
		t.Fatalf("UploadPart: %v", err)
	}

	if _, err := client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String("big.bin"),
		UploadId: created.UploadId,
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: []s3types.CompletedPart{
				{ETag: uploaded.ETag, PartNumber: aws.Int32(1)},
			},
		},
	}); err != nil {
		t.Fatalf("CompleteMultipartUpload: %v", err)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String("big.bin")})
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer out.Body.Close()
	got, err := io.ReadAll(out.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(got) != len(partData) {
		t.Errorf("len(got) = %d, want %d", len(got), len(partData))
	}
}
