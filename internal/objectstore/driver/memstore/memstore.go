// Package memstore is the in-memory Backend: plain Go maps from bucket to
// key to bytes, guarded by a single sync.RWMutex (plus a mutex per
// multipart upload). The maps are not lock-free; every access takes the
// store-wide lock.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/LoyaltyPointHQ/lamina/internal/checksum"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore"
)

type object struct {
	data []byte
	info objectstore.DataInfo
}

type upload struct {
	init  objectstore.UploadInit
	parts map[int]*part
	mu    sync.Mutex
}

type part struct {
	data []byte
	info objectstore.StoredPart
}

// Store is the in-memory objectstore.Backend.
type Store struct {
	locks *objectstore.KeyLock

	mu       sync.RWMutex // guards the three top-level maps below
	objects  map[string]map[string]*object
	metadata map[string]map[string]*objectstore.ObjectMetadata
	uploads  map[string]*upload // key: bucket/key/uploadID
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		locks:    objectstore.NewKeyLock(256),
		objects:  make(map[string]map[string]*object),
		metadata: make(map[string]map[string]*objectstore.ObjectMetadata),
		uploads:  make(map[string]*upload),
	}
}

func (s *Store) Close() error { return nil }

func uploadKey(r objectstore.UploadRef) string {
	return r.Bucket + "\x00" + r.Key + "\x00" + r.UploadID
}

func (s *Store) StoreData(ctx context.Context, ref objectstore.ObjectRef, r io.Reader, algos []checksum.Algorithm, expected map[checksum.Algorithm]string) (objectstore.StoreResult, error) {
	s.locks.Lock(ref.Bucket, ref.Key)
	defer s.locks.Unlock(ref.Bucket, ref.Key)

	eng := checksum.New(objectstore.UniqueAlgos(algos, checksum.SHA256), expected)
	var buf bytes.Buffer
	w := io.MultiWriter(&buf, eng)
	n, err := io.Copy(w, r)
	if err != nil {
		return objectstore.StoreResult{}, err
	}
	res := eng.Finish()
	if !res.Valid {
		return objectstore.StoreResult{}, fmt.Errorf("%w: %s", objectstore.ErrInvalidChecksum, res.Mismatch)
	}

	etag := res.Values[checksum.SHA256]
	result := objectstore.StoreResult{Size: n, ETag: objectstore.HexETag(etag), Checksums: objectstore.FilterRequested(res.Values, algos)}

	s.putObject(ref, &object{
		data: buf.Bytes(),
		info: objectstore.DataInfo{Size: n, LastModified: nowUTC(ctx), ETag: result.ETag, Checksums: result.Checksums},
	})
	return result, nil
}

func (s *Store) StoreMultipartData(ctx context.Context, ref objectstore.ObjectRef, parts []objectstore.PartSource) (objectstore.StoreResult, error) {
	s.locks.Lock(ref.Bucket, ref.Key)
	defer s.locks.Unlock(ref.Bucket, ref.Key)

	var buf bytes.Buffer
	var etagBytes bytes.Buffer
	var total int64
	for _, p := range parts {
		n, err := io.Copy(&buf, p.Reader)
		if err != nil {
			return objectstore.StoreResult{}, err
		}
		total += n
		raw, err := objectstore.DecodeHexETag(p.ETag)
		if err != nil {
			return objectstore.StoreResult{}, err
		}
		etagBytes.Write(raw)
	}
	sum := checksum.New([]checksum.Algorithm{checksum.SHA256}, nil)
	sum.Write(etagBytes.Bytes()) //nolint:errcheck
	final := sum.Finish().Values[checksum.SHA256]
	etag := fmt.Sprintf("%s-%d", objectstore.HexETag(final), len(parts))

	s.putObject(ref, &object{
		data: buf.Bytes(),
		info: objectstore.DataInfo{Size: total, LastModified: nowUTC(ctx), ETag: etag},
	})
	return objectstore.StoreResult{Size: total, ETag: etag}, nil
}

func (s *Store) WriteDataToStream(ctx context.Context, ref objectstore.ObjectRef, w io.Writer, start, end int64) (bool, error) {
	obj, ok := s.getObject(ref)
	if !ok {
		return false, nil
	}
	data := obj.data
	if start < 0 && end < 0 {
		_, err := w.Write(data)
		return err == nil, err
	}
	size := int64(len(data))
	if start < 0 || end < 0 || start > end || end >= size {
		return false, nil
	}
	_, err := w.Write(data[start : end+1])
	return err == nil, err
}

func (s *Store) DataExists(ctx context.Context, ref objectstore.ObjectRef) (bool, error) {
	_, ok := s.getObject(ref)
	return ok, nil
}

func (s *Store) GetDataInfo(ctx context.Context, ref objectstore.ObjectRef) (*objectstore.DataInfo, error) {
	obj, ok := s.getObject(ref)
	if !ok {
		return nil, objectstore.ErrNotExist
	}
	info := obj.info
	return &info, nil
}

func (s *Store) DeleteData(ctx context.Context, ref objectstore.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.objects[ref.Bucket]; ok {
		delete(m, ref.Key)
	}
	return nil
}

func (s *Store) CopyData(ctx context.Context, src, dst objectstore.ObjectRef) (objectstore.StoreResult, error) {
	obj, ok := s.getObject(src)
	if !ok {
		return objectstore.StoreResult{}, objectstore.ErrNotExist
	}
	cp := &object{data: append([]byte(nil), obj.data...), info: obj.info}
	cp.info.LastModified = nowUTC(ctx)
	s.putObject(dst, cp)
	return objectstore.StoreResult{Size: cp.info.Size, ETag: cp.info.ETag, Checksums: cp.info.Checksums}, nil
}

func (s *Store) ListDataKeys(ctx context.Context, bucket string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.objects[bucket]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) PutMetadata(ctx context.Context, ref objectstore.ObjectRef, m objectstore.ObjectMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.metadata[ref.Bucket]
	if !ok {
		b = make(map[string]*objectstore.ObjectMetadata)
		s.metadata[ref.Bucket] = b
	}
	mm := m
	b[ref.Key] = &mm
	return nil
}

func (s *Store) GetMetadata(ctx context.Context, ref objectstore.ObjectRef) (*objectstore.ObjectMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.metadata[ref.Bucket]
	if !ok {
		return nil, objectstore.ErrNotExist
	}
	m, ok := b[ref.Key]
	if !ok {
		return nil, objectstore.ErrNotExist
	}
	cp := *m
	return &cp, nil
}

func (s *Store) DeleteMetadata(ctx context.Context, ref objectstore.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.metadata[ref.Bucket]; ok {
		delete(b, ref.Key)
	}
	return nil
}

func (s *Store) InitiateUpload(ctx context.Context, ref objectstore.UploadRef, init objectstore.UploadInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[uploadKey(ref)] = &upload{init: init, parts: make(map[int]*part)}
	return nil
}

func (s *Store) GetUploadInit(ctx context.Context, ref objectstore.UploadRef) (*objectstore.UploadInit, error) {
	s.mu.RLock()
	u, ok := s.uploads[uploadKey(ref)]
	s.mu.RUnlock()
	if !ok {
		return nil, objectstore.ErrNotExist
	}
	init := u.init
	return &init, nil
}

func (s *Store) StorePart(ctx context.Context, ref objectstore.UploadRef, number int, r io.Reader, algos []checksum.Algorithm, expected map[checksum.Algorithm]string) (objectstore.StoredPart, error) {
	u := s.getOrCreateUpload(ref)

	eng := checksum.New(objectstore.UniqueAlgos(algos, checksum.SHA256), expected)
	var buf bytes.Buffer
	n, err := io.Copy(io.MultiWriter(&buf, eng), r)
	if err != nil {
		return objectstore.StoredPart{}, err
	}
	res := eng.Finish()
	if !res.Valid {
		return objectstore.StoredPart{}, fmt.Errorf("%w: %s", objectstore.ErrInvalidChecksum, res.Mismatch)
	}
	sp := objectstore.StoredPart{
		Number:       number,
		Size:         n,
		ETag:         objectstore.HexETag(res.Values[checksum.SHA256]),
		Checksums:    objectstore.FilterRequested(res.Values, algos),
		LastModified: nowUTC(ctx),
	}

	u.mu.Lock()
	u.parts[number] = &part{data: buf.Bytes(), info: sp}
	u.mu.Unlock()
	return sp, nil
}

func (s *Store) ListParts(ctx context.Context, ref objectstore.UploadRef) ([]objectstore.StoredPart, error) {
	s.mu.RLock()
	u, ok := s.uploads[uploadKey(ref)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]objectstore.StoredPart, 0, len(u.parts))
	for _, p := range u.parts {
		out = append(out, p.info)
	}
	return out, nil
}

func (s *Store) GetPartReader(ctx context.Context, ref objectstore.UploadRef, number int) (io.ReadCloser, int64, error) {
	s.mu.RLock()
	u, ok := s.uploads[uploadKey(ref)]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, objectstore.ErrNotExist
	}
	u.mu.Lock()
	p, ok := u.parts[number]
	u.mu.Unlock()
	if !ok {
		return nil, 0, objectstore.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(p.data)), p.info.Size, nil
}

func (s *Store) DeleteUpload(ctx context.Context, ref objectstore.UploadRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, uploadKey(ref))
	return nil
}

func (s *Store) getOrCreateUpload(ref objectstore.UploadRef) *upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadKey(ref)]
	if !ok {
		u = &upload{parts: make(map[int]*part)}
		s.uploads[uploadKey(ref)] = u
	}
	return u
}

func (s *Store) putObject(ref objectstore.ObjectRef, o *object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.objects[ref.Bucket]
	if !ok {
		m = make(map[string]*object)
		s.objects[ref.Bucket] = m
	}
	m[ref.Key] = o
}

func (s *Store) getObject(ref objectstore.ObjectRef) (*object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.objects[ref.Bucket]
	if !ok {
		return nil, false
	}
	o, ok := m[ref.Key]
	return o, ok
}

func nowUTC(ctx context.Context) time.Time {
	if d, ok := ctx.Value(clockKey{}).(time.Time); ok {
		return d
	}
	return timeNow()
}

type clockKey struct{}

// timeNow is a package-level indirection so tests can override wall time by
// injecting ctx values instead of monkey-patching time.Now.
var timeNow = time.Now
