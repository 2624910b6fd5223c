// Package bucketregistry implements bucket create/list/delete. Grounded on
// lib/storage/storage.go's Storage.CreateBucket/Buckets/DeleteBucket
// contract, generalized to carry a GeneralPurpose/Directory bucket type
// enum.
package bucketregistry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Type is the bucket-type enum; immutable after creation, drives listing
// semantics in internal/listing.
type Type string

const (
	GeneralPurpose Type = "GeneralPurpose"
	Directory      Type = "Directory"
)

var (
	ErrAlreadyExists = errors.New("bucketregistry: bucket already exists")
	ErrNotFound      = errors.New("bucketregistry: bucket not found")
	ErrNotEmpty      = errors.New("bucketregistry: bucket not empty")
)

// Bucket is the registry's record for a bucket.
type Bucket struct {
	Name         string
	Type         Type
	StorageClass string
	Tags         map[string]string
	CreatedAt    time.Time
}

// EmptyChecker reports whether a bucket has no remaining contents,
// consulted by Delete in non-force mode. The facade layer supplies the
// concrete implementation (which looks at objects only) so this package
// stays independent of the object/multipart backends.
type EmptyChecker func(ctx context.Context, bucket string) (empty bool, err error)

// Purger deletes a bucket's contents, consulted by Delete in force mode.
// The facade's implementation removes objects only.
type Purger func(ctx context.Context, bucket string) error

// Registry is the in-memory bucket registry. Bucket names are unique
// process-wide regardless of which object-store backend is configured, so
// a single in-memory map is the right shape here.
type Registry struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket

	isEmpty EmptyChecker
	purge   Purger
}

// New creates an empty registry. isEmpty/purge may be nil during
// construction and set later via SetCollaborators once the facade wiring
// that needs the registry also exists (they're mutually dependent at
// startup).
func New(isEmpty EmptyChecker, purge Purger) *Registry {
	return &Registry{buckets: make(map[string]*Bucket), isEmpty: isEmpty, purge: purge}
}

// SetCollaborators wires the empty-check/purge callbacks after construction.
func (r *Registry) SetCollaborators(isEmpty EmptyChecker, purge Purger) {
	r.isEmpty = isEmpty
	r.purge = purge
}

func (r *Registry) Create(ctx context.Context, name string, typ Type, storageClass string, tags map[string]string) (*Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.buckets[name]; ok {
		return nil, ErrAlreadyExists
	}
	b := &Bucket{Name: name, Type: typ, StorageClass: storageClass, Tags: tags, CreatedAt: time.Now().UTC()}
	r.buckets[name] = b
	return b, nil
}

func (r *Registry) Get(ctx context.Context, name string) (*Bucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buckets[name]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (r *Registry) List(ctx context.Context) ([]*Bucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Bucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Registry) Delete(ctx context.Context, name string, force bool) error {
	r.mu.Lock()
	_, ok := r.buckets[name]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if !force && r.isEmpty != nil {
		empty, err := r.isEmpty(ctx, name)
		if err != nil {
			return err
		}
		if !empty {
			return ErrNotEmpty
		}
	}
	if force && r.purge != nil {
		if err := r.purge(ctx, name); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.buckets, name)
	r.mu.Unlock()
	return nil
}
