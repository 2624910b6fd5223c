package multipart

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/LoyaltyPointHQ/lamina/internal/apierr"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore/driver/memstore"
)

func newTestManager(t *testing.T) (*Manager, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	n := 0
	mgr := New(Config{
		Multipart: store,
		Data:      store,
		Meta:      store,
		NewUploadID: func() string {
			n++
			return "upload-id-" + string(rune('0'+n))
		},
	})
	return mgr, store
}

func TestMultipartCompleteHappyPath(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	uploadID, err := mgr.Initiate(ctx, "b", "k", InitiateInput{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	part1 := strings.Repeat("a", MinPartSize)
	part2 := "tail-bytes"

	p1, err := mgr.UploadPart(ctx, "b", "k", uploadID, 1, strings.NewReader(part1), nil, nil)
	if err != nil {
		t.Fatalf("UploadPart 1: %v", err)
	}
	p2, err := mgr.UploadPart(ctx, "b", "k", uploadID, 2, strings.NewReader(part2), nil, nil)
	if err != nil {
		t.Fatalf("UploadPart 2: %v", err)
	}

	res, err := mgr.Complete(ctx, "b", "k", uploadID, []CompletedPart{
		{Number: 1, ETag: p1.ETag},
		{Number: 2, ETag: p2.ETag},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(res.ETag, "-2") {
		t.Errorf("ETag = %q, want multipart suffix -2", res.ETag)
	}

	var buf bytes.Buffer
	ok, err := store.WriteDataToStream(ctx, objectstore.ObjectRef{Bucket: "b", Key: "k"}, &buf, -1, -1)
	if err != nil || !ok {
		t.Fatalf("WriteDataToStream: ok=%v err=%v", ok, err)
	}
	if buf.String() != part1+part2 {
		t.Errorf("materialized object mismatch")
	}
}

func TestMultipartCompleteRejectsOutOfOrderParts(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	uploadID, _ := mgr.Initiate(ctx, "b", "k", InitiateInput{})
	_, err := mgr.Complete(ctx, "b", "k", uploadID, []CompletedPart{
		{Number: 2, ETag: "x"},
		{Number: 1, ETag: "y"},
	})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "InvalidPartOrder" {
		t.Fatalf("err = %v, want InvalidPartOrder", err)
	}
}

func TestMultipartCompleteRejectsUndersizedNonFinalPart(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	uploadID, _ := mgr.Initiate(ctx, "b", "k", InitiateInput{})
	p1, err := mgr.UploadPart(ctx, "b", "k", uploadID, 1, strings.NewReader("short"), nil, nil)
	if err != nil {
		t.Fatalf("UploadPart: %v", err)
	}
	p2, err := mgr.UploadPart(ctx, "b", "k", uploadID, 2, strings.NewReader("short-too"), nil, nil)
	if err != nil {
		t.Fatalf("UploadPart: %v", err)
	}

	_, err = mgr.Complete(ctx, "b", "k", uploadID, []CompletedPart{
		{Number: 1, ETag: p1.ETag},
		{Number: 2, ETag: p2.ETag},
	})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "EntityTooSmall" {
		t.Fatalf("err = %v, want EntityTooSmall", err)
	}
}

func TestAbortDiscardsUpload(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	uploadID, _ := mgr.Initiate(ctx, "b", "k", InitiateInput{})
	if _, err := mgr.UploadPart(ctx, "b", "k", uploadID, 1, strings.NewReader("data"), nil, nil); err != nil {
		t.Fatalf("UploadPart: %v", err)
	}
	if err := mgr.Abort(ctx, "b", "k", uploadID); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := mgr.ListParts(ctx, "b", "k", uploadID); err == nil {
		t.Fatal("expected ListParts to fail after abort")
	}
}
