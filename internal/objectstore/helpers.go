package objectstore

import (
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/LoyaltyPointHQ/lamina/internal/checksum"
)

// ErrInvalidChecksum is wrapped with the mismatching algorithm name whenever
// a backend's StoreData/StorePart finds a client-declared checksum disagrees
// with the computed one.
var ErrInvalidChecksum = errors.New("objectstore: checksum mismatch")

// HexETag turns a base64 SHA256 digest (as produced by the checksum engine)
// into the lowercase hex ETag format the wire protocol expects.
func HexETag(base64SHA256 string) string {
	raw, err := base64.StdEncoding.DecodeString(base64SHA256)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(raw)
}

// DecodeHexETag parses a plain hex ETag (as stored for a single part) back
// into raw bytes, for multipart ETag-of-ETags aggregation.
func DecodeHexETag(etag string) ([]byte, error) {
	return hex.DecodeString(etag)
}

// UniqueAlgos returns requested with must appended if not already present.
// Backends always need a content hash (SHA256) to compute the ETag even if
// the caller only asked for, say, CRC32.
func UniqueAlgos(requested []checksum.Algorithm, must checksum.Algorithm) []checksum.Algorithm {
	for _, a := range requested {
		if a == must {
			return requested
		}
	}
	out := make([]checksum.Algorithm, 0, len(requested)+1)
	out = append(out, requested...)
	return append(out, must)
}

// FilterRequested returns the subset of values whose keys were in requested;
// used so the ETag-driving SHA256 computed internally doesn't leak into the
// client-facing checksum map unless the client actually asked for SHA256.
func FilterRequested(values map[checksum.Algorithm]string, requested []checksum.Algorithm) map[checksum.Algorithm]string {
	if len(requested) == 0 {
		return nil
	}
	out := make(map[checksum.Algorithm]string, len(requested))
	for _, a := range requested {
		if v, ok := values[a]; ok {
			out[a] = v
		}
	}
	return out
}
