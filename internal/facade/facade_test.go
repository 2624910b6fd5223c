package facade

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/LoyaltyPointHQ/lamina/internal/apierr"
	"github.com/LoyaltyPointHQ/lamina/internal/cache"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore/driver/memstore"
)

func newTestFacade() *Facade {
	store := memstore.New()
	return New(Config{Data: store, Meta: store, Cache: cache.New(1 << 20)})
}

func TestPutGetRoundTrip(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()

	_, err := f.PutObject(ctx, "b", "k.txt", strings.NewReader("hello"), PutInput{})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	var buf bytes.Buffer
	obj, err := f.GetObject(ctx, "b", "k.txt", &buf, -1, -1)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if buf.String() != "hello" {
		t.Errorf("body = %q, want %q", buf.String(), "hello")
	}
	if obj.Metadata.ContentType != "text/plain" {
		t.Errorf("ContentType = %q, want text/plain (from extension)", obj.Metadata.ContentType)
	}
}

func TestGetMissingObjectReturnsNoSuchKey(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := f.GetObject(ctx, "b", "missing", &buf, -1, -1)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "NoSuchKey" {
		t.Fatalf("err = %v, want NoSuchKey", err)
	}
}

func TestGetByteRange(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()

	if _, err := f.PutObject(ctx, "b", "k", strings.NewReader("0123456789"), PutInput{}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	var buf bytes.Buffer
	if _, err := f.GetObject(ctx, "b", "k", &buf, 2, 5); err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if buf.String() != "2345" {
		t.Errorf("range body = %q, want %q", buf.String(), "2345")
	}
}

func TestDeleteThenGetIsNoSuchKey(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()

	if _, err := f.PutObject(ctx, "b", "k", strings.NewReader("x"), PutInput{}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := f.DeleteObject(ctx, "b", "k"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}

	var buf bytes.Buffer
	_, err := f.GetObject(ctx, "b", "k", &buf, -1, -1)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "NoSuchKey" {
		t.Fatalf("err = %v, want NoSuchKey after delete", err)
	}
}

func TestCopyObjectDuplicatesMetadataByDefault(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()

	if _, err := f.PutObject(ctx, "b", "src", strings.NewReader("payload"), PutInput{ContentType: "application/custom"}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, err := f.CopyObject(ctx, "b", "src", "b", "dst", CopyInput{}); err != nil {
		t.Fatalf("CopyObject: %v", err)
	}

	var buf bytes.Buffer
	obj, err := f.GetObject(ctx, "b", "dst", &buf, -1, -1)
	if err != nil {
		t.Fatalf("GetObject dst: %v", err)
	}
	if buf.String() != "payload" {
		t.Errorf("copied body = %q, want %q", buf.String(), "payload")
	}
	if obj.Metadata.ContentType != "application/custom" {
		t.Errorf("copied ContentType = %q, want application/custom", obj.Metadata.ContentType)
	}
}

func TestIsBucketEmpty(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()

	empty, err := f.IsBucketEmpty(ctx, "b")
	if err != nil || !empty {
		t.Fatalf("empty bucket check = (%v, %v), want (true, nil)", empty, err)
	}

	if _, err := f.PutObject(ctx, "b", "k", strings.NewReader("x"), PutInput{}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	empty, err = f.IsBucketEmpty(ctx, "b")
	if err != nil || empty {
		t.Fatalf("non-empty bucket check = (%v, %v), want (false, nil)", empty, err)
	}
}
