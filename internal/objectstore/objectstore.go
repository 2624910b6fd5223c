// Package objectstore defines the backend-polymorphic contracts for object
// byte storage, object metadata storage, and multipart part storage. Three
// concrete backends live under objectstore/driver: an in-memory map, a local
// filesystem tree, and a DuckDB-backed relational store.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/LoyaltyPointHQ/lamina/internal/checksum"
)

// Sentinel errors every backend translates its native failures into at the
// package boundary, mirroring lib/storage/storage.go's ErrNotExist family.
var (
	ErrNotExist = errors.New("objectstore: does not exist")
	ErrExist    = errors.New("objectstore: already exists")
)

// ObjectRef identifies stored bytes.
type ObjectRef struct {
	Bucket string
	Key    string
}

// DataInfo is the authoritative record backing an object: everything that
// can be derived purely from the bytes on disk/in memory.
type DataInfo struct {
	Size         int64
	LastModified time.Time
	ETag         string
	Checksums    map[checksum.Algorithm]string
}

// StoreResult is returned by StoreData/StoreMultipartData.
type StoreResult struct {
	Size      int64
	ETag      string
	Checksums map[checksum.Algorithm]string
}

// PartSource is one ordered input to StoreMultipartData: a reader over a
// part's raw bytes plus its already-known ETag, used to derive the
// concatenated multipart ETag without rehashing content.
type PartSource struct {
	Reader io.Reader
	ETag   string
	Size   int64
}

// DataBackend streams bytes in and out, keyed by (bucket, key). Backends may
// additionally implement ReflinkCopier for optimized same-root copies.
type DataBackend interface {
	// StoreData streams r to storage, computing size/ETag/checksums in one
	// pass. algos lists requested checksum algorithms; expected, if non-nil,
	// are client-declared values checked against the computed ones.
	StoreData(ctx context.Context, ref ObjectRef, r io.Reader, algos []checksum.Algorithm, expected map[checksum.Algorithm]string) (StoreResult, error)

	// StoreMultipartData concatenates parts end-to-end into the final
	// object, streaming without full buffering, and returns its size and
	// the multipart ETag (hash of concatenated part ETags, "-N" suffixed).
	StoreMultipartData(ctx context.Context, ref ObjectRef, parts []PartSource) (StoreResult, error)

	// WriteDataToStream writes the object (or byte range [start,end]
	// inclusive when both are >= 0) to w. Returns false without writing on
	// an invalid range or missing object.
	WriteDataToStream(ctx context.Context, ref ObjectRef, w io.Writer, start, end int64) (bool, error)

	DataExists(ctx context.Context, ref ObjectRef) (bool, error)
	GetDataInfo(ctx context.Context, ref ObjectRef) (*DataInfo, error)
	DeleteData(ctx context.Context, ref ObjectRef) error

	// CopyData copies src to dst, returning an ETag identical to what
	// re-ingesting the bytes would produce.
	CopyData(ctx context.Context, src, dst ObjectRef) (StoreResult, error)

	// ListDataKeys returns every key in bucket with no ordering/filtering
	// applied; internal/listing applies prefix/delimiter/pagination on top.
	ListDataKeys(ctx context.Context, bucket string) ([]string, error)
}

// ObjectMetadata is the optional, user-supplied sidecar to an object's data.
type ObjectMetadata struct {
	ContentType string
	UserMeta    map[string]string
	OwnerID     string
	OwnerName   string
}

// MetadataBackend persists the optional metadata sidecar. Absence is never
// an error condition for readers — GetMetadata returns ErrNotExist and
// callers fall back to synthesis.
type MetadataBackend interface {
	PutMetadata(ctx context.Context, ref ObjectRef, m ObjectMetadata) error
	GetMetadata(ctx context.Context, ref ObjectRef) (*ObjectMetadata, error)
	DeleteMetadata(ctx context.Context, ref ObjectRef) error
}

// UploadRef identifies one multipart upload.
type UploadRef struct {
	Bucket   string
	Key      string
	UploadID string
}

// UploadInit is the initiation metadata for a multipart upload.
type UploadInit struct {
	ContentType string
	UserMeta    map[string]string
	Algorithm   checksum.Algorithm // declared checksum algorithm, may be empty
	InitiatedAt time.Time
}

// StoredPart is a part as persisted by a MultipartBackend.
type StoredPart struct {
	Number       int
	Size         int64
	ETag         string
	Checksums    map[checksum.Algorithm]string
	LastModified time.Time
}

// MultipartBackend stores part bytes and initiation metadata independently
// addressable by (bucket, key, uploadId, partNumber).
type MultipartBackend interface {
	InitiateUpload(ctx context.Context, ref UploadRef, init UploadInit) error
	GetUploadInit(ctx context.Context, ref UploadRef) (*UploadInit, error)

	StorePart(ctx context.Context, ref UploadRef, number int, r io.Reader, algos []checksum.Algorithm, expected map[checksum.Algorithm]string) (StoredPart, error)
	ListParts(ctx context.Context, ref UploadRef) ([]StoredPart, error)
	GetPartReader(ctx context.Context, ref UploadRef, number int) (io.ReadCloser, int64, error)

	// DeleteUpload removes all part data and initiation metadata for ref.
	// Idempotent: missing state is not an error.
	DeleteUpload(ctx context.Context, ref UploadRef) error
}

// ReflinkCopier is an optional capability: backends that can produce a
// byte-identical copy via a filesystem hard link / reflink implement it.
// internal/facade does not check for it; fsstore's own CopyData tries its
// ReflinkCopy before a streamed copy.
type ReflinkCopier interface {
	ReflinkCopy(ctx context.Context, src, dst ObjectRef) (StoreResult, bool, error)
}

// Backend bundles the three contracts a storage driver must implement.
// Every concrete driver (memstore, fsstore, sqlstore) returns one of these
// from its constructor.
type Backend interface {
	DataBackend
	MetadataBackend
	MultipartBackend
	Close() error
}
