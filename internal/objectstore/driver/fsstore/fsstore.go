// Package fsstore is the local-filesystem Backend. Data files are written
// via a temp-file-then-rename-with-fsync sequence for crash safety, and
// metadata/multipart-initiation state is kept as JSON sidecars — both
// patterns lifted directly from
// lib/storage/driver/local/multipart.go.
package fsstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/LoyaltyPointHQ/lamina/internal/checksum"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore"
)

const (
	dataDir      = "data"
	metaDir      = "meta"
	multipartDir = "multipart"
)

// Store is the filesystem-backed objectstore.Backend, rooted at Root.
type Store struct {
	Root  string
	locks *objectstore.KeyLock
}

// New creates a filesystem store rooted at root, creating the directory
// layout if absent.
func New(root string) (*Store, error) {
	for _, d := range []string{dataDir, metaDir, multipartDir} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("fsstore: init %s: %w", d, err)
		}
	}
	return &Store{Root: root, locks: objectstore.NewKeyLock(256)}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) dataPath(ref objectstore.ObjectRef) string {
	return filepath.Join(s.Root, dataDir, safeBucket(ref.Bucket), safeKey(ref.Key))
}

func (s *Store) metaPath(ref objectstore.ObjectRef) string {
	return filepath.Join(s.Root, metaDir, safeBucket(ref.Bucket), safeKey(ref.Key)+".json")
}

func (s *Store) uploadDir(ref objectstore.UploadRef) string {
	return filepath.Join(s.Root, multipartDir, safeBucket(ref.Bucket), safeKey(ref.Key), ref.UploadID)
}

// safeBucket/safeKey keep keys containing "/" as nested directories (S3 keys
// routinely look like paths) while refusing to escape the root.
func safeBucket(b string) string { return filepath.Clean("/" + b) }
func safeKey(k string) string    { return filepath.Clean("/" + k) }

type sidecarMeta struct {
	ContentType string            `json:"content_type"`
	UserMeta    map[string]string `json:"user_meta"`
	OwnerID     string            `json:"owner_id"`
	OwnerName   string            `json:"owner_name"`
}

// writeFileAtomic writes data to path via a temp file in the same directory,
// fsyncing before rename — crash-safe, matching driver/local/multipart.go.
func writeFileAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op once renamed

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) StoreData(ctx context.Context, ref objectstore.ObjectRef, r io.Reader, algos []checksum.Algorithm, expected map[checksum.Algorithm]string) (objectstore.StoreResult, error) {
	s.locks.Lock(ref.Bucket, ref.Key)
	defer s.locks.Unlock(ref.Bucket, ref.Key)

	eng := checksum.New(objectstore.UniqueAlgos(algos, checksum.SHA256), expected)

	dir := filepath.Dir(s.dataPath(ref))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return objectstore.StoreResult{}, err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return objectstore.StoreResult{}, err
	}
	tmpName := tmp.Name()
	n, copyErr := io.Copy(io.MultiWriter(tmp, eng), r)
	if copyErr != nil {
		tmp.Close() //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return objectstore.StoreResult{}, copyErr
	}
	res := eng.Finish()
	if !res.Valid {
		tmp.Close() //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return objectstore.StoreResult{}, fmt.Errorf("%w: %s", objectstore.ErrInvalidChecksum, res.Mismatch)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return objectstore.StoreResult{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return objectstore.StoreResult{}, err
	}
	if err := os.Rename(tmpName, s.dataPath(ref)); err != nil {
		return objectstore.StoreResult{}, err
	}

	etag := objectstore.HexETag(res.Values[checksum.SHA256])
	return objectstore.StoreResult{Size: n, ETag: etag, Checksums: objectstore.FilterRequested(res.Values, algos)}, nil
}

func (s *Store) StoreMultipartData(ctx context.Context, ref objectstore.ObjectRef, parts []objectstore.PartSource) (objectstore.StoreResult, error) {
	s.locks.Lock(ref.Bucket, ref.Key)
	defer s.locks.Unlock(ref.Bucket, ref.Key)

	dir := filepath.Dir(s.dataPath(ref))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return objectstore.StoreResult{}, err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return objectstore.StoreResult{}, err
	}
	tmpName := tmp.Name()

	var etagBytes bytes.Buffer
	var total int64
	for _, p := range parts {
		n, err := io.Copy(tmp, p.Reader)
		if err != nil {
			tmp.Close() //nolint:errcheck
			os.Remove(tmpName) //nolint:errcheck
			return objectstore.StoreResult{}, err
		}
		total += n
		raw, err := objectstore.DecodeHexETag(p.ETag)
		if err != nil {
			tmp.Close() //nolint:errcheck
			os.Remove(tmpName) //nolint:errcheck
			return objectstore.StoreResult{}, err
		}
		etagBytes.Write(raw)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return objectstore.StoreResult{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return objectstore.StoreResult{}, err
	}
	if err := os.Rename(tmpName, s.dataPath(ref)); err != nil {
		return objectstore.StoreResult{}, err
	}

	sum := checksum.New([]checksum.Algorithm{checksum.SHA256}, nil)
	sum.Write(etagBytes.Bytes()) //nolint:errcheck
	final := sum.Finish().Values[checksum.SHA256]
	etag := fmt.Sprintf("%s-%d", objectstore.HexETag(final), len(parts))
	return objectstore.StoreResult{Size: total, ETag: etag}, nil
}

func (s *Store) WriteDataToStream(ctx context.Context, ref objectstore.ObjectRef, w io.Writer, start, end int64) (bool, error) {
	f, err := os.Open(s.dataPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if start < 0 && end < 0 {
		_, err := io.Copy(w, f)
		return err == nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}
	size := fi.Size()
	if start < 0 || end < 0 || start > end || end >= size {
		return false, nil
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return false, err
	}
	_, err = io.CopyN(w, f, end-start+1)
	return err == nil, err
}

func (s *Store) DataExists(ctx context.Context, ref objectstore.ObjectRef) (bool, error) {
	_, err := os.Stat(s.dataPath(ref))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, nil
}

func (s *Store) GetDataInfo(ctx context.Context, ref objectstore.ObjectRef) (*objectstore.DataInfo, error) {
	fi, err := os.Stat(s.dataPath(ref))
	if os.IsNotExist(err) {
		return nil, objectstore.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return &objectstore.DataInfo{Size: fi.Size(), LastModified: fi.ModTime()}, nil
}

func (s *Store) DeleteData(ctx context.Context, ref objectstore.ObjectRef) error {
	err := os.Remove(s.dataPath(ref))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ReflinkCopy hard-links src to dst when both resolve under this store's
// root, producing a byte-identical copy without copying the data; the ETag
// is recomputed by hashing the linked file. Falls
// back (ok=false) when the link fails (e.g. cross-device), letting the
// caller fall through to a streamed copy.
func (s *Store) ReflinkCopy(ctx context.Context, src, dst objectstore.ObjectRef) (objectstore.StoreResult, bool, error) {
	srcInfo, err := s.GetDataInfo(ctx, src)
	if err != nil {
		return objectstore.StoreResult{}, false, err
	}
	dstPath := s.dataPath(dst)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return objectstore.StoreResult{}, false, err
	}
	os.Remove(dstPath) //nolint:errcheck
	if err := os.Link(s.dataPath(src), dstPath); err != nil {
		return objectstore.StoreResult{}, false, nil
	}
	etag, err := sha256OfFile(dstPath)
	if err != nil {
		return objectstore.StoreResult{}, false, err
	}
	return objectstore.StoreResult{Size: srcInfo.Size, ETag: etag, Checksums: srcInfo.Checksums}, true, nil
}

func (s *Store) CopyData(ctx context.Context, src, dst objectstore.ObjectRef) (objectstore.StoreResult, error) {
	if res, ok, err := s.ReflinkCopy(ctx, src, dst); err == nil && ok {
		return res, nil
	} else if err != nil {
		return objectstore.StoreResult{}, err
	}

	f, err := os.Open(s.dataPath(src))
	if err != nil {
		if os.IsNotExist(err) {
			return objectstore.StoreResult{}, objectstore.ErrNotExist
		}
		return objectstore.StoreResult{}, err
	}
	defer f.Close()
	return s.StoreData(ctx, dst, f, checksum.All(), nil)
}

func (s *Store) ListDataKeys(ctx context.Context, bucket string) ([]string, error) {
	root := filepath.Join(s.Root, dataDir, safeBucket(bucket))
	var keys []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return keys, nil
}

func (s *Store) PutMetadata(ctx context.Context, ref objectstore.ObjectRef, m objectstore.ObjectMetadata) error {
	sc := sidecarMeta{ContentType: m.ContentType, UserMeta: m.UserMeta, OwnerID: m.OwnerID, OwnerName: m.OwnerName}
	buf, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	_, err = writeFileAtomic(s.metaPath(ref), bytes.NewReader(buf))
	return err
}

func (s *Store) GetMetadata(ctx context.Context, ref objectstore.ObjectRef) (*objectstore.ObjectMetadata, error) {
	buf, err := os.ReadFile(s.metaPath(ref))
	if os.IsNotExist(err) {
		return nil, objectstore.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	var sc sidecarMeta
	if err := json.Unmarshal(buf, &sc); err != nil {
		return nil, err
	}
	return &objectstore.ObjectMetadata{ContentType: sc.ContentType, UserMeta: sc.UserMeta, OwnerID: sc.OwnerID, OwnerName: sc.OwnerName}, nil
}

func (s *Store) DeleteMetadata(ctx context.Context, ref objectstore.ObjectRef) error {
	err := os.Remove(s.metaPath(ref))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

type uploadInitFile struct {
	ContentType string            `json:"content_type"`
	UserMeta    map[string]string `json:"user_meta"`
	Algorithm   string            `json:"algorithm"`
	InitiatedAt string            `json:"initiated_at"`
}

func (s *Store) InitiateUpload(ctx context.Context, ref objectstore.UploadRef, init objectstore.UploadInit) error {
	dir := s.uploadDir(ref)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f := uploadInitFile{
		ContentType: init.ContentType,
		UserMeta:    init.UserMeta,
		Algorithm:   string(init.Algorithm),
		InitiatedAt: init.InitiatedAt.Format(rfc3339Nano),
	}
	buf, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = writeFileAtomic(filepath.Join(dir, "init.json"), bytes.NewReader(buf))
	return err
}

func (s *Store) GetUploadInit(ctx context.Context, ref objectstore.UploadRef) (*objectstore.UploadInit, error) {
	buf, err := os.ReadFile(filepath.Join(s.uploadDir(ref), "init.json"))
	if os.IsNotExist(err) {
		return nil, objectstore.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	var f uploadInitFile
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, err
	}
	t, _ := time.Parse(rfc3339Nano, f.InitiatedAt)
	return &objectstore.UploadInit{ContentType: f.ContentType, UserMeta: f.UserMeta, Algorithm: checksum.Algorithm(f.Algorithm), InitiatedAt: t}, nil
}

func (s *Store) partPath(ref objectstore.UploadRef, number int) string {
	return filepath.Join(s.uploadDir(ref), fmt.Sprintf("part-%05d", number))
}

func (s *Store) StorePart(ctx context.Context, ref objectstore.UploadRef, number int, r io.Reader, algos []checksum.Algorithm, expected map[checksum.Algorithm]string) (objectstore.StoredPart, error) {
	eng := checksum.New(objectstore.UniqueAlgos(algos, checksum.SHA256), expected)
	n, err := writeFileAtomic(s.partPath(ref, number), io.TeeReader(r, eng))
	if err != nil {
		return objectstore.StoredPart{}, err
	}
	res := eng.Finish()
	if !res.Valid {
		os.Remove(s.partPath(ref, number)) //nolint:errcheck
		return objectstore.StoredPart{}, fmt.Errorf("%w: %s", objectstore.ErrInvalidChecksum, res.Mismatch)
	}
	fi, err := os.Stat(s.partPath(ref, number))
	if err != nil {
		return objectstore.StoredPart{}, err
	}
	return objectstore.StoredPart{
		Number:       number,
		Size:         n,
		ETag:         objectstore.HexETag(res.Values[checksum.SHA256]),
		Checksums:    objectstore.FilterRequested(res.Values, algos),
		LastModified: fi.ModTime(),
	}, nil
}

func (s *Store) ListParts(ctx context.Context, ref objectstore.UploadRef) ([]objectstore.StoredPart, error) {
	entries, err := os.ReadDir(s.uploadDir(ref))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var parts []objectstore.StoredPart
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "part-") {
			continue
		}
		numStr := strings.TrimPrefix(e.Name(), "part-")
		num, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		sum, err := sha256OfFile(filepath.Join(s.uploadDir(ref), e.Name()))
		if err != nil {
			continue
		}
		parts = append(parts, objectstore.StoredPart{Number: num, Size: fi.Size(), ETag: sum, LastModified: fi.ModTime()})
	}
	return parts, nil
}

func sha256OfFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	eng := checksum.New([]checksum.Algorithm{checksum.SHA256}, nil)
	if _, err := io.Copy(eng, f); err != nil {
		return "", err
	}
	return objectstore.HexETag(eng.Finish().Values[checksum.SHA256]), nil
}

func (s *Store) GetPartReader(ctx context.Context, ref objectstore.UploadRef, number int) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.partPath(ref, number))
	if os.IsNotExist(err) {
		return nil, 0, objectstore.ErrNotExist
	}
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

func (s *Store) DeleteUpload(ctx context.Context, ref objectstore.UploadRef) error {
	err := os.RemoveAll(s.uploadDir(ref))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

const rfc3339Nano = time.RFC3339Nano

// randomSuffix gives callers an extra random disambiguator for temp file
// names beyond what os.CreateTemp provides on its own; upload IDs themselves
// come from internal/idgen.
func randomSuffix() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
