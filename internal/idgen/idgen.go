// Package idgen generates opaque identifiers for multipart upload IDs and
// S3 request IDs. Adapted from pkg/ulid/ulid.go's shape (a small package of
// pure functions around a generator), but wired to the module's own direct
// dependency github.com/oklog/ulid/v2 rather than a hand-rolled ULID
// implementation.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new ULID string, monotonic within the same millisecond.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// UploadID returns a new opaque multipart upload identifier.
func UploadID() string { return New() }

// RequestID returns a new opaque S3 request identifier (x-amz-request-id).
func RequestID() string { return New() }
