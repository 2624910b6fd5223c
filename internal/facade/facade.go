// Package facade orchestrates single-object operations (put, get, head,
// delete, copy) across a data backend and a metadata backend, synthesizing
// metadata when absent and rolling back a data write if its metadata
// companion write fails.
package facade

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/LoyaltyPointHQ/lamina/internal/apierr"
	"github.com/LoyaltyPointHQ/lamina/internal/cache"
	"github.com/LoyaltyPointHQ/lamina/internal/checksum"
	"github.com/LoyaltyPointHQ/lamina/internal/mimetype"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore"
)

// shouldStoreMetadata reports whether md carries anything HeadObject/
// GetObject couldn't already synthesize on its own from the key's
// extension: an explicit content type differing (case-insensitively) from the
// extension-derived default, or any user metadata entries. When false, the
// metadata backend write can be skipped entirely and reads fall back to
// synthesis via metadataFor.
func shouldStoreMetadata(key string, md objectstore.ObjectMetadata) bool {
	if len(md.UserMeta) > 0 {
		return true
	}
	return md.ContentType != "" && !strings.EqualFold(md.ContentType, mimetype.FromExtension(key))
}

// Config wires a Facade's collaborators.
type Config struct {
	Data  objectstore.DataBackend
	Meta  objectstore.MetadataBackend
	Cache *cache.Cache // optional; nil disables metadata caching
}

// Facade is the object-level orchestration layer internal/s3api calls into.
type Facade struct {
	data  objectstore.DataBackend
	meta  objectstore.MetadataBackend
	cache *cache.Cache
	locks *objectstore.KeyLock
}

// New builds a Facade from cfg.
func New(cfg Config) *Facade {
	return &Facade{data: cfg.Data, meta: cfg.Meta, cache: cfg.Cache, locks: objectstore.NewKeyLock(0)}
}

// PutInput carries everything PutObject needs beyond the byte stream.
type PutInput struct {
	ContentType string
	UserMeta    map[string]string
	OwnerID     string
	OwnerName   string
	Algorithms  []checksum.Algorithm
	Expected    map[checksum.Algorithm]string
}

// PutObject stores r's bytes and its metadata sidecar as one logical unit:
// if the metadata write fails after the data write succeeded, the data
// write is rolled back rather than leaving an object with no content type
// or ownership record.
func (f *Facade) PutObject(ctx context.Context, bucket, key string, r io.Reader, in PutInput) (objectstore.StoreResult, error) {
	ref := objectstore.ObjectRef{Bucket: bucket, Key: key}
	f.locks.Lock(bucket, key)
	defer f.locks.Unlock(bucket, key)

	res, err := f.data.StoreData(ctx, ref, r, in.Algorithms, in.Expected)
	if err != nil {
		if errors.Is(err, objectstore.ErrInvalidChecksum) {
			return objectstore.StoreResult{}, apierr.ErrInvalidChecksum.WithInternal(err)
		}
		return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = mimetype.FromExtension(key)
	}
	md := objectstore.ObjectMetadata{
		ContentType: contentType,
		UserMeta:    in.UserMeta,
		OwnerID:     in.OwnerID,
		OwnerName:   in.OwnerName,
	}
	if shouldStoreMetadata(key, md) {
		if err := f.meta.PutMetadata(ctx, ref, md); err != nil {
			_ = f.data.DeleteData(ctx, ref) // rollback: don't leave orphaned data with no metadata
			return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
		}
	}

	if f.cache != nil {
		if info, err := f.data.GetDataInfo(ctx, ref); err == nil {
			f.cache.Put(bucket, key, md, info.LastModified)
		}
	}
	return res, nil
}

// Object bundles a data descriptor with its (possibly synthesized)
// metadata, the shape HeadObject/GetObject hand back to the transport
// layer.
type Object struct {
	Info     objectstore.DataInfo
	Metadata objectstore.ObjectMetadata
}

// HeadObject returns an object's descriptor without touching its bytes.
func (f *Facade) HeadObject(ctx context.Context, bucket, key string) (*Object, error) {
	ref := objectstore.ObjectRef{Bucket: bucket, Key: key}
	info, err := f.data.GetDataInfo(ctx, ref)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotExist) {
			return nil, apierr.ErrNoSuchKey
		}
		return nil, apierr.ErrInternal.WithInternal(err)
	}
	md := f.metadataFor(ctx, bucket, key, *info)
	return &Object{Info: *info, Metadata: md}, nil
}

// metadataFor resolves metadata for (bucket,key) whose data descriptor is
// already known: cache, then the metadata backend, then synthesis from the
// key's extension. Data is authoritative; metadata is best-effort.
func (f *Facade) metadataFor(ctx context.Context, bucket, key string, info objectstore.DataInfo) objectstore.ObjectMetadata {
	if f.cache != nil {
		if md, ok := f.cache.Get(bucket, key, info.LastModified); ok {
			return md
		}
	}

	md, err := f.meta.GetMetadata(ctx, objectstore.ObjectRef{Bucket: bucket, Key: key})
	var result objectstore.ObjectMetadata
	if err != nil || md == nil {
		result = objectstore.ObjectMetadata{ContentType: mimetype.FromExtension(key)}
	} else {
		result = *md
	}
	if f.cache != nil {
		f.cache.Put(bucket, key, result, info.LastModified)
	}
	return result
}

// GetObject writes the object (or the [start,end] inclusive byte range,
// when both are >= 0) to w and returns its descriptor.
func (f *Facade) GetObject(ctx context.Context, bucket, key string, w io.Writer, start, end int64) (*Object, error) {
	ref := objectstore.ObjectRef{Bucket: bucket, Key: key}
	info, err := f.data.GetDataInfo(ctx, ref)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotExist) {
			return nil, apierr.ErrNoSuchKey
		}
		return nil, apierr.ErrInternal.WithInternal(err)
	}

	ok, err := f.data.WriteDataToStream(ctx, ref, w, start, end)
	if err != nil {
		return nil, apierr.ErrInternal.WithInternal(err)
	}
	if !ok {
		return nil, apierr.ErrInvalidRange
	}

	md := f.metadataFor(ctx, bucket, key, *info)
	return &Object{Info: *info, Metadata: md}, nil
}

// DeleteObject removes an object's data and metadata. Missing metadata is
// not an error: data existence is authoritative, so deleting an object
// whose metadata sidecar never existed (or was already gone) still
// succeeds.
func (f *Facade) DeleteObject(ctx context.Context, bucket, key string) error {
	ref := objectstore.ObjectRef{Bucket: bucket, Key: key}
	f.locks.Lock(bucket, key)
	defer f.locks.Unlock(bucket, key)

	if err := f.data.DeleteData(ctx, ref); err != nil && !errors.Is(err, objectstore.ErrNotExist) {
		return apierr.ErrInternal.WithInternal(err)
	}
	if err := f.meta.DeleteMetadata(ctx, ref); err != nil && !errors.Is(err, objectstore.ErrNotExist) {
		return apierr.ErrInternal.WithInternal(err)
	}
	if f.cache != nil {
		f.cache.Invalidate(bucket, key)
	}
	return nil
}

// CopyInput controls how CopyObject treats the destination's metadata.
type CopyInput struct {
	// ReplaceMetadata, when true, writes Metadata to the destination
	// instead of duplicating the source's sidecar.
	ReplaceMetadata bool
	Metadata        objectstore.ObjectMetadata
}

// CopyObject copies srcBucket/srcKey to dstBucket/dstKey, preferring a
// backend's reflink/hard-link fast path when available and falling back to
// a streamed re-ingest otherwise.
func (f *Facade) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string, in CopyInput) (objectstore.StoreResult, error) {
	src := objectstore.ObjectRef{Bucket: srcBucket, Key: srcKey}
	dst := objectstore.ObjectRef{Bucket: dstBucket, Key: dstKey}

	f.locks.Lock(dstBucket, dstKey)
	defer f.locks.Unlock(dstBucket, dstKey)

	srcInfo, err := f.data.GetDataInfo(ctx, src)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotExist) {
			return objectstore.StoreResult{}, apierr.ErrNoSuchKey
		}
		return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
	}

	res, err := f.data.CopyData(ctx, src, dst)
	if err != nil {
		return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
	}

	md := in.Metadata
	if !in.ReplaceMetadata {
		if existing, err := f.meta.GetMetadata(ctx, src); err == nil && existing != nil {
			md = *existing
		} else {
			md = objectstore.ObjectMetadata{ContentType: mimetype.FromExtension(srcKey)}
		}
	}
	if shouldStoreMetadata(dstKey, md) {
		if err := f.meta.PutMetadata(ctx, dst, md); err != nil {
			_ = f.data.DeleteData(ctx, dst)
			return objectstore.StoreResult{}, apierr.ErrInternal.WithInternal(err)
		}
	}

	if f.cache != nil {
		if info, err := f.data.GetDataInfo(ctx, dst); err == nil {
			f.cache.Put(dstBucket, dstKey, md, info.LastModified)
		}
	}
	_ = srcInfo
	return res, nil
}

// CopyObjectPart streams the [start,end] inclusive byte range of
// bucket/key (or the whole object when both are negative) to w, identical
// range validation to GetObject. It carries no metadata of its own: the
// caller pipes w into a destination upload's UploadPart, which is where
// CopyObjectPart's bytes end up attributed.
func (f *Facade) CopyObjectPart(ctx context.Context, bucket, key string, w io.Writer, start, end int64) error {
	ref := objectstore.ObjectRef{Bucket: bucket, Key: key}
	if _, err := f.data.GetDataInfo(ctx, ref); err != nil {
		if errors.Is(err, objectstore.ErrNotExist) {
			return apierr.ErrNoSuchKey
		}
		return apierr.ErrInternal.WithInternal(err)
	}

	ok, err := f.data.WriteDataToStream(ctx, ref, w, start, end)
	if err != nil {
		return apierr.ErrInternal.WithInternal(err)
	}
	if !ok {
		return apierr.ErrInvalidRange
	}
	return nil
}

// ListKeys returns every key in bucket with no filtering, for
// internal/listing to roll up into prefix/delimiter pages.
func (f *Facade) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	keys, err := f.data.ListDataKeys(ctx, bucket)
	if err != nil {
		return nil, apierr.ErrInternal.WithInternal(err)
	}
	return keys, nil
}

// IsBucketEmpty reports whether bucket has no objects, suitable as a
// bucketregistry.EmptyChecker. In-progress multipart uploads are not
// counted.
func (f *Facade) IsBucketEmpty(ctx context.Context, bucket string) (bool, error) {
	keys, err := f.data.ListDataKeys(ctx, bucket)
	if err != nil {
		return false, err
	}
	return len(keys) == 0, nil
}

// PurgeBucket deletes every object (data + metadata) in bucket, suitable as
// a bucketregistry.Purger. In-progress multipart uploads are not removed.
func (f *Facade) PurgeBucket(ctx context.Context, bucket string) error {
	keys, err := f.data.ListDataKeys(ctx, bucket)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := f.DeleteObject(ctx, bucket, key); err != nil {
			return err
		}
	}
	return nil
}
