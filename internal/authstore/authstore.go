// Package authstore implements an embedded credential store: a
// CredentialProvider for sigv4.Authenticator, plus per-bucket read/write
// permission checks applied by the transport layer after authentication
// succeeds. Secrets come from configuration at startup and live in memory
// only; the Argon2id hash kept alongside each one is for at-rest hygiene,
// not the primary verification path (SigV4 verification needs the
// plaintext secret to derive the signing key, not its hash).
package authstore

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/LoyaltyPointHQ/lamina/internal/sigv4"
)

// Action is a coarse permission an authenticated principal may hold
// against a bucket-name pattern.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Permission grants Actions against bucket names matching Pattern (a
// path.Match glob; "*" or "" matches every bucket).
type Permission struct {
	Pattern string
	Actions map[Action]bool
}

// UserConfig is the configuration-supplied shape of one embedded user.
type UserConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Name            string
	Permissions     []Permission
}

// User is the in-memory record for one embedded credential.
type User struct {
	AccessKeyID     string
	SecretAccessKey string
	SecretHash      string
	Name            string
	Permissions     []Permission
}

var ErrUnknownUser = errors.New("authstore: unknown access key")

// HashParams tunes the Argon2id cost parameters a Store hashes secrets
// with. The zero value is not valid; start from DefaultHashParams.
type HashParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams returns the cost parameters New uses unless overridden
// via WithHashParams.
func DefaultHashParams() HashParams {
	return HashParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithHashParams overrides the Argon2id cost parameters used to hash new
// secrets. Hashes already encoded under different parameters (e.g. loaded
// from a config that's been edited over time) remain verifiable regardless,
// since decodeHash reads its own parameters back out of the encoding.
func WithHashParams(p HashParams) Option {
	return func(s *Store) { s.hashParams = p }
}

var (
	errInvalidHash         = errors.New("authstore: invalid hash encoding")
	errIncompatibleVersion = errors.New("authstore: incompatible argon2 version")
)

// Store is a static, in-memory CredentialProvider plus permission checker,
// built once at startup from configuration.
type Store struct {
	mu         sync.RWMutex
	users      map[string]*User
	hashParams HashParams
}

// New builds a Store from the configured user list, hashing each secret
// with Argon2id for at-rest storage alongside the plaintext.
func New(configs []UserConfig, opts ...Option) (*Store, error) {
	s := &Store{hashParams: DefaultHashParams()}
	for _, opt := range opts {
		opt(s)
	}

	users := make(map[string]*User, len(configs))
	for _, c := range configs {
		hash, err := s.hashSecret(c.SecretAccessKey)
		if err != nil {
			return nil, err
		}
		users[c.AccessKeyID] = &User{
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			SecretHash:      hash,
			Name:            c.Name,
			Permissions:     c.Permissions,
		}
	}
	s.users = users
	return s, nil
}

// Lookup implements sigv4.CredentialProvider.
func (s *Store) Lookup(ctx context.Context, accessKeyID string) (*sigv4.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[accessKeyID]
	if !ok {
		return nil, ErrUnknownUser
	}
	return &sigv4.Credential{AccessKeyID: u.AccessKeyID, SecretAccessKey: u.SecretAccessKey}, nil
}

// VerifySecret checks a plaintext secret against the stored Argon2id hash,
// for any bootstrap flow (e.g. an admin console) that authenticates by
// secret comparison rather than SigV4.
func (s *Store) VerifySecret(accessKeyID, secret string) bool {
	s.mu.RLock()
	u, ok := s.users[accessKeyID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	ok, err := verifyHash(secret, u.SecretHash)
	return ok && err == nil
}

// Authorize reports whether accessKeyID holds action against bucket. When
// the store has no registered user for accessKeyID, access is denied.
func (s *Store) Authorize(accessKeyID, bucket string, action Action) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[accessKeyID]
	if !ok {
		return false
	}
	for _, p := range u.Permissions {
		if matchPattern(p.Pattern, bucket) && p.Actions[action] {
			return true
		}
	}
	return false
}

func matchPattern(pattern, bucket string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, _ := path.Match(pattern, bucket)
	return ok
}

// User returns the record registered for accessKeyID, if any.
func (s *Store) User(accessKeyID string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[accessKeyID]
	return u, ok
}

// hashSecret encodes secret as `$argon2id$v=..$m=..,t=..,p=..$salt$hash`
// under s's configured cost parameters.
func (s *Store) hashSecret(secret string) (string, error) {
	p := s.hashParams
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(secret), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism, b64Salt, b64Hash), nil
}

// verifyHash recomputes secret's Argon2id digest under encodedHash's own
// embedded parameters and compares it in constant time.
func verifyHash(secret, encodedHash string) (bool, error) {
	p, salt, hash, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	otherHash := argon2.IDKey([]byte(secret), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(hash, otherHash) == 1, nil
}

func decodeHash(encodedHash string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return HashParams{}, nil, nil, errInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return HashParams{}, nil, nil, errInvalidHash
	}
	if version != argon2.Version {
		return HashParams{}, nil, nil, errIncompatibleVersion
	}

	var p HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return HashParams{}, nil, nil, errInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return HashParams{}, nil, nil, errInvalidHash
	}
	p.SaltLength = uint32(len(salt))

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return HashParams{}, nil, nil, errInvalidHash
	}
	p.KeyLength = uint32(len(hash))

	return p, salt, hash, nil
}
