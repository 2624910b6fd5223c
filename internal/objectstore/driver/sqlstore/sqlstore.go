// Package sqlstore is the relational Backend, backed by DuckDB via
// database/sql. Grounded directly on store/duckdb/store.go (embedded
// schema, sql.Open("duckdb", ...), connection pool sizing) and
// store/duckdb/files.go (raw SQL with ? placeholders, sql.NullString
// translation of nullable columns).
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/LoyaltyPointHQ/lamina/internal/checksum"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore"
)

//go:embed schema.sql
var schema string

// Store is the DuckDB-backed objectstore.Backend.
type Store struct {
	db    *sql.DB
	locks *objectstore.KeyLock
}

// Open opens (creating if absent) a DuckDB database at dsn, which may be a
// plain file path or ":memory:".
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("sqlstore: ensure schema: %w", err)
	}
	return &Store{db: db, locks: objectstore.NewKeyLock(256)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle. The bucket registry does not use it:
// registry state is held in memory by internal/bucketregistry.
func (s *Store) DB() *sql.DB { return s.db }

func encodeChecksums(m map[checksum.Algorithm]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeChecksums(s string) map[checksum.Algorithm]string {
	if s == "" {
		return nil
	}
	var m map[checksum.Algorithm]string
	_ = json.Unmarshal([]byte(s), &m)
	return m
}

func (s *Store) StoreData(ctx context.Context, ref objectstore.ObjectRef, r io.Reader, algos []checksum.Algorithm, expected map[checksum.Algorithm]string) (objectstore.StoreResult, error) {
	s.locks.Lock(ref.Bucket, ref.Key)
	defer s.locks.Unlock(ref.Bucket, ref.Key)

	eng := checksum.New(objectstore.UniqueAlgos(algos, checksum.SHA256), expected)
	var buf bytes.Buffer
	n, err := io.Copy(io.MultiWriter(&buf, eng), r)
	if err != nil {
		return objectstore.StoreResult{}, err
	}
	res := eng.Finish()
	if !res.Valid {
		return objectstore.StoreResult{}, fmt.Errorf("%w: %s", objectstore.ErrInvalidChecksum, res.Mismatch)
	}

	etag := objectstore.HexETag(res.Values[checksum.SHA256])
	checksums := objectstore.FilterRequested(res.Values, algos)
	enc, err := encodeChecksums(checksums)
	if err != nil {
		return objectstore.StoreResult{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO objects (bucket, key, size, etag, checksums, data, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.Bucket, ref.Key, n, etag, enc, buf.Bytes(), time.Now().UTC())
	if err != nil {
		return objectstore.StoreResult{}, err
	}
	return objectstore.StoreResult{Size: n, ETag: etag, Checksums: checksums}, nil
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

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO objects (bucket, key, size, etag, checksums, data, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.Bucket, ref.Key, total, etag, "", buf.Bytes(), time.Now().UTC())
	if err != nil {
		return objectstore.StoreResult{}, err
	}
	return objectstore.StoreResult{Size: total, ETag: etag}, nil
}

func (s *Store) WriteDataToStream(ctx context.Context, ref objectstore.ObjectRef, w io.Writer, start, end int64) (bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM objects WHERE bucket = ? AND key = ?`, ref.Bucket, ref.Key).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if start < 0 && end < 0 {
		_, err := w.Write(data)
		return err == nil, err
	}
	size := int64(len(data))
	if start < 0 || end < 0 || start > end || end >= size {
		return false, nil
	}
	_, err = w.Write(data[start : end+1])
	return err == nil, err
}

func (s *Store) DataExists(ctx context.Context, ref objectstore.ObjectRef) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE bucket = ? AND key = ?`, ref.Bucket, ref.Key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) GetDataInfo(ctx context.Context, ref objectstore.ObjectRef) (*objectstore.DataInfo, error) {
	var info objectstore.DataInfo
	var checksums string
	err := s.db.QueryRowContext(ctx, `SELECT size, etag, checksums, last_modified FROM objects WHERE bucket = ? AND key = ?`,
		ref.Bucket, ref.Key).Scan(&info.Size, &info.ETag, &checksums, &info.LastModified)
	if err == sql.ErrNoRows {
		return nil, objectstore.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	info.Checksums = decodeChecksums(checksums)
	return &info, nil
}

func (s *Store) DeleteData(ctx context.Context, ref objectstore.ObjectRef) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE bucket = ? AND key = ?`, ref.Bucket, ref.Key)
	return err
}

func (s *Store) CopyData(ctx context.Context, src, dst objectstore.ObjectRef) (objectstore.StoreResult, error) {
	var data []byte
	var etag, checksums string
	var size int64
	err := s.db.QueryRowContext(ctx, `SELECT size, etag, checksums, data FROM objects WHERE bucket = ? AND key = ?`,
		src.Bucket, src.Key).Scan(&size, &etag, &checksums, &data)
	if err == sql.ErrNoRows {
		return objectstore.StoreResult{}, objectstore.ErrNotExist
	}
	if err != nil {
		return objectstore.StoreResult{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO objects (bucket, key, size, etag, checksums, data, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, dst.Bucket, dst.Key, size, etag, checksums, data, time.Now().UTC())
	if err != nil {
		return objectstore.StoreResult{}, err
	}
	return objectstore.StoreResult{Size: size, ETag: etag, Checksums: decodeChecksums(checksums)}, nil
}

func (s *Store) ListDataKeys(ctx context.Context, bucket string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM objects WHERE bucket = ?`, bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) PutMetadata(ctx context.Context, ref objectstore.ObjectRef, m objectstore.ObjectMetadata) error {
	userMeta, err := json.Marshal(m.UserMeta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO object_metadata (bucket, key, content_type, user_meta, owner_id, owner_name)
		VALUES (?, ?, ?, ?, ?, ?)`, ref.Bucket, ref.Key, m.ContentType, string(userMeta), m.OwnerID, m.OwnerName)
	return err
}

func (s *Store) GetMetadata(ctx context.Context, ref objectstore.ObjectRef) (*objectstore.ObjectMetadata, error) {
	var m objectstore.ObjectMetadata
	var userMeta sql.NullString
	var ownerID, ownerName sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT content_type, user_meta, owner_id, owner_name FROM object_metadata WHERE bucket = ? AND key = ?`,
		ref.Bucket, ref.Key).Scan(&m.ContentType, &userMeta, &ownerID, &ownerName)
	if err == sql.ErrNoRows {
		return nil, objectstore.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	m.OwnerID = ownerID.String
	m.OwnerName = ownerName.String
	if userMeta.Valid && userMeta.String != "" {
		_ = json.Unmarshal([]byte(userMeta.String), &m.UserMeta)
	}
	return &m, nil
}

func (s *Store) DeleteMetadata(ctx context.Context, ref objectstore.ObjectRef) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM object_metadata WHERE bucket = ? AND key = ?`, ref.Bucket, ref.Key)
	return err
}

func (s *Store) InitiateUpload(ctx context.Context, ref objectstore.UploadRef, init objectstore.UploadInit) error {
	userMeta, err := json.Marshal(init.UserMeta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO multipart_uploads (bucket, key, upload_id, content_type, user_meta, algorithm, initiated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.Bucket, ref.Key, ref.UploadID, init.ContentType, string(userMeta), string(init.Algorithm), init.InitiatedAt)
	return err
}

func (s *Store) GetUploadInit(ctx context.Context, ref objectstore.UploadRef) (*objectstore.UploadInit, error) {
	var init objectstore.UploadInit
	var userMeta sql.NullString
	var algo string
	err := s.db.QueryRowContext(ctx, `SELECT content_type, user_meta, algorithm, initiated_at FROM multipart_uploads WHERE bucket = ? AND key = ? AND upload_id = ?`,
		ref.Bucket, ref.Key, ref.UploadID).Scan(&init.ContentType, &userMeta, &algo, &init.InitiatedAt)
	if err == sql.ErrNoRows {
		return nil, objectstore.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	init.Algorithm = checksum.Algorithm(algo)
	if userMeta.Valid && userMeta.String != "" {
		_ = json.Unmarshal([]byte(userMeta.String), &init.UserMeta)
	}
	return &init, nil
}

func (s *Store) StorePart(ctx context.Context, ref objectstore.UploadRef, number int, r io.Reader, algos []checksum.Algorithm, expected map[checksum.Algorithm]string) (objectstore.StoredPart, error) {
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
	etag := objectstore.HexETag(res.Values[checksum.SHA256])
	checksums := objectstore.FilterRequested(res.Values, algos)
	enc, err := encodeChecksums(checksums)
	if err != nil {
		return objectstore.StoredPart{}, err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO multipart_parts (bucket, key, upload_id, part_number, size, etag, checksums, data, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.Bucket, ref.Key, ref.UploadID, number, n, etag, enc, buf.Bytes(), now)
	if err != nil {
		return objectstore.StoredPart{}, err
	}
	return objectstore.StoredPart{Number: number, Size: n, ETag: etag, Checksums: checksums, LastModified: now}, nil
}

func (s *Store) ListParts(ctx context.Context, ref objectstore.UploadRef) ([]objectstore.StoredPart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT part_number, size, etag, checksums, last_modified FROM multipart_parts
		WHERE bucket = ? AND key = ? AND upload_id = ?`, ref.Bucket, ref.Key, ref.UploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var parts []objectstore.StoredPart
	for rows.Next() {
		var p objectstore.StoredPart
		var checksums string
		if err := rows.Scan(&p.Number, &p.Size, &p.ETag, &checksums, &p.LastModified); err != nil {
			return nil, err
		}
		p.Checksums = decodeChecksums(checksums)
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (s *Store) GetPartReader(ctx context.Context, ref objectstore.UploadRef, number int) (io.ReadCloser, int64, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM multipart_parts WHERE bucket = ? AND key = ? AND upload_id = ? AND part_number = ?`,
		ref.Bucket, ref.Key, ref.UploadID, number).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, 0, objectstore.ErrNotExist
	}
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (s *Store) DeleteUpload(ctx context.Context, ref objectstore.UploadRef) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM multipart_parts WHERE bucket = ? AND key = ? AND upload_id = ?`,
		ref.Bucket, ref.Key, ref.UploadID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE bucket = ? AND key = ? AND upload_id = ?`,
		ref.Bucket, ref.Key, ref.UploadID)
	return err
}
