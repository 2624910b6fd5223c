// Package multipart implements the multipart upload state machine
// (Initiated -> Parts-Accumulating -> Completed|Aborted), orchestrating an
// objectstore.MultipartBackend for part storage and an
// objectstore.DataBackend/MetadataBackend pair to materialize the finished
// object, mirroring lib/storage/driver/local/multipart.go's sidecar-JSON
// and ascending-order-validation shape but generalized across backends.
package multipart

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/LoyaltyPointHQ/lamina/internal/apierr"
	"github.com/LoyaltyPointHQ/lamina/internal/checksum"
	"github.com/LoyaltyPointHQ/lamina/internal/idgen"
	"github.com/LoyaltyPointHQ/lamina/internal/mimetype"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore"
)

// MinPartSize is the smallest size any part but the last may have.
const MinPartSize = 5 * 1024 * 1024

// MaxPartNumber is the largest part number a client may address.
const MaxPartNumber = 10000

// Config wires a Manager's collaborators.
type Config struct {
	Multipart   objectstore.MultipartBackend
	Data        objectstore.DataBackend
	Meta        objectstore.MetadataBackend
	NewUploadID func() string
}

// Manager drives the multipart upload lifecycle.
type Manager struct {
	multi objectstore.MultipartBackend
	data  objectstore.DataBackend
	meta  objectstore.MetadataBackend
	newID func() string
}

// New builds a Manager from cfg. NewUploadID defaults to idgen.UploadID
// when unset.
func New(cfg Config) *Manager {
	newID := cfg.NewUploadID
	if newID == nil {
		newID = idgen.UploadID
	}
	return &Manager{multi: cfg.Multipart, data: cfg.Data, meta: cfg.Meta, newID: newID}
}

// InitiateInput carries the declared object attributes for a new upload.
type InitiateInput struct {
	ContentType string
	UserMeta    map[string]string
	Algorithm   checksum.Algorithm
}

// Initiate starts a new multipart upload and returns its opaque ID.
func (m *Manager) Initiate(ctx context.Context, bucket, key string, in InitiateInput) (string, error) {
	uploadID := m.newID()
	ref := objectstore.UploadRef{Bucket: bucket, Key: key, UploadID: uploadID}
	contentType := in.ContentType
	if contentType == "" {
		contentType = mimetype.FromExtension(key)
	}
	err := m.multi.InitiateUpload(ctx, ref, objectstore.UploadInit{
		ContentType: contentType,
		UserMeta:    in.UserMeta,
		Algorithm:   in.Algorithm,
	})
	if err != nil {
		return "", apierr.ErrInternal.WithInternal(err)
	}
	return uploadID, nil
}

// UploadPart stores one part's bytes under (bucket, key, uploadID, number).
// It never checks initiation metadata: a part store doesn't need it, and an
// upload missing only its init record (e.g. after a crash) can still accept
// parts.
func (m *Manager) UploadPart(ctx context.Context, bucket, key, uploadID string, number int, r io.Reader, algos []checksum.Algorithm, expected map[checksum.Algorithm]string) (objectstore.StoredPart, error) {
	if number < 1 || number > MaxPartNumber {
		return objectstore.StoredPart{}, apierr.ErrInvalidArgument.WithMessage("part number must be between 1 and 10000")
	}
	ref := objectstore.UploadRef{Bucket: bucket, Key: key, UploadID: uploadID}
	part, err := m.multi.StorePart(ctx, ref, number, r, algos, expected)
	if err != nil {
		if errors.Is(err, objectstore.ErrInvalidChecksum) {
			return objectstore.StoredPart{}, apierr.ErrInvalidChecksum.WithInternal(err)
		}
		return objectstore.StoredPart{}, apierr.ErrInternal.WithInternal(err)
	}
	return part, nil
}

// ListParts returns the stored parts for an upload, ascending by number. An
// upload with neither parts nor an initiation record is NoSuchUpload.
func (m *Manager) ListParts(ctx context.Context, bucket, key, uploadID string) ([]objectstore.StoredPart, error) {
	ref := objectstore.UploadRef{Bucket: bucket, Key: key, UploadID: uploadID}
	parts, err := m.multi.ListParts(ctx, ref)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotExist) {
			return nil, apierr.ErrNoSuchUpload
		}
		return nil, apierr.ErrInternal.WithInternal(err)
	}
	if len(parts) == 0 {
		if _, err := m.multi.GetUploadInit(ctx, ref); err != nil {
			if errors.Is(err, objectstore.ErrNotExist) {
				return nil, apierr.ErrNoSuchUpload
			}
			return nil, apierr.ErrInternal.WithInternal(err)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts, nil
}

// CompletedPart is one entry of the client-supplied CompleteMultipartUpload
// part list.
type CompletedPart struct {
	Number int
	ETag   string
}

// Complete validates the client's part manifest against what was actually
// stored, concatenates the parts into the final object, writes its
// metadata, and tears down the upload's part storage. Whether the upload
// exists at all is decided by ListParts, not initiation metadata: an empty
// part list means NoSuchUpload, while a missing init record just falls
// back to application/octet-stream and no user metadata. Rolls back the
// materialized object if the metadata write fails, mirroring the
// single-shot PutObject rollback in internal/facade.
func (m *Manager) Complete(ctx context.Context, bucket, key, uploadID string, manifest []CompletedPart) (objectstore.StoreResult, error) {
	if len(manifest) == 0 {
		return objectstore.StoreResult{}, apierr.ErrInvalidArgument.WithMessage("completed part list must not be empty")
	}
	for i := 1; i < len(manifest); i++ {
		if manifest[i].Number <= manifest[i-1].Number {
			return objectstore.StoreResult{}, apierr.ErrInvalidPartOrder
		}
	}

	ref := objectstore.UploadRef{Bucket: bucket, Key: key, UploadID: uploadID}
	stored, err := m.multi.ListParts(ctx, ref)
	if err != nil {
		return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
	}
	if len(stored) == 0 {
		return objectstore.StoreResult{}, apierr.ErrNoSuchUpload
	}

	init, err := m.multi.GetUploadInit(ctx, ref)
	if err != nil {
		if !errors.Is(err, objectstore.ErrNotExist) {
			return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
		}
		init = &objectstore.UploadInit{ContentType: "application/octet-stream"}
	}

	byNumber := make(map[int]objectstore.StoredPart, len(stored))
	for _, p := range stored {
		byNumber[p.Number] = p
	}

	sources := make([]objectstore.PartSource, 0, len(manifest))
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	for i, cp := range manifest {
		sp, ok := byNumber[cp.Number]
		if !ok || sp.ETag != cp.ETag {
			return objectstore.StoreResult{}, apierr.ErrInvalidPart
		}
		if i < len(manifest)-1 && sp.Size < MinPartSize {
			return objectstore.StoreResult{}, apierr.ErrEntityTooSmall
		}
		rc, size, err := m.multi.GetPartReader(ctx, ref, cp.Number)
		if err != nil {
			return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
		}
		closers = append(closers, rc)
		sources = append(sources, objectstore.PartSource{Reader: rc, ETag: sp.ETag, Size: size})
	}

	objRef := objectstore.ObjectRef{Bucket: bucket, Key: key}
	res, err := m.data.StoreMultipartData(ctx, objRef, sources)
	if err != nil {
		return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
	}

	md := objectstore.ObjectMetadata{ContentType: init.ContentType, UserMeta: init.UserMeta}
	if err := m.meta.PutMetadata(ctx, objRef, md); err != nil {
		_ = m.data.DeleteData(ctx, objRef)
		return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
	}

	if err := m.multi.DeleteUpload(ctx, ref); err != nil {
		return res, apierr.ErrInternal.WithInternal(err)
	}
	return res, nil
}

// Abort discards an upload's stored parts without materializing an object.
// Idempotent: aborting an upload twice, or one whose parts are already
// gone, still succeeds.
func (m *Manager) Abort(ctx context.Context, bucket, key, uploadID string) error {
	ref := objectstore.UploadRef{Bucket: bucket, Key: key, UploadID: uploadID}
	if err := m.multi.DeleteUpload(ctx, ref); err != nil {
		return apierr.ErrInternal.WithInternal(err)
	}
	return nil
}
