package sigv4

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Credential is a single access-key/secret-key pair, looked up by access
// key ID during authentication.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
}

// CredentialProvider resolves an access key ID to its secret, so this
// package stays independent of however credentials are actually stored
// (internal/authstore supplies the concrete implementation).
type CredentialProvider interface {
	Lookup(ctx context.Context, accessKeyID string) (*Credential, error)
}

// Principal identifies the caller a request authenticated as.
type Principal struct {
	AccessKeyID string
}

var (
	ErrMissingAuthorization = errors.New("sigv4: missing Authorization header")
	ErrMalformedAuthHeader  = errors.New("sigv4: malformed Authorization header")
	ErrUnknownAccessKey     = errors.New("sigv4: unknown access key")
	ErrExpired              = errors.New("sigv4: request timestamp outside the acceptable skew window")
	ErrSignatureMismatch    = errors.New("sigv4: computed signature does not match")
)

// MaxClockSkew bounds how far a request's x-amz-date may drift from the
// server's clock before it's rejected.
const MaxClockSkew = 15 * time.Minute

// Config configures an Authenticator.
type Config struct {
	Credentials CredentialProvider
	Region      string

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Authenticator verifies AWS SigV4 Authorization headers against a
// CredentialProvider.
type Authenticator struct {
	cfg Config
}

// New builds an Authenticator from cfg.
func New(cfg Config) *Authenticator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Authenticator{cfg: cfg}
}

type parsedAuth struct {
	accessKeyID   string
	date          string
	region        string
	signedHeaders []string
	signature     string
}

// parseAuthorization parses "AWS4-HMAC-SHA256 Credential=.../.../.../s3/aws4_request, SignedHeaders=..., Signature=...".
func parseAuthorization(h string) (*parsedAuth, error) {
	h = strings.TrimSpace(h)
	prefix := algorithm + " "
	if !strings.HasPrefix(h, prefix) {
		return nil, ErrMalformedAuthHeader
	}
	rest := strings.TrimPrefix(h, prefix)

	fields := map[string]string{}
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, ErrMalformedAuthHeader
		}
		fields[kv[0]] = kv[1]
	}

	cred, ok := fields["Credential"]
	if !ok {
		return nil, ErrMalformedAuthHeader
	}
	credParts := strings.Split(cred, "/")
	if len(credParts) != 5 || credParts[3] != service || credParts[4] != terminator {
		return nil, ErrMalformedAuthHeader
	}

	signed, ok := fields["SignedHeaders"]
	if !ok {
		return nil, ErrMalformedAuthHeader
	}
	sig, ok := fields["Signature"]
	if !ok {
		return nil, ErrMalformedAuthHeader
	}

	return &parsedAuth{
		accessKeyID:   credParts[0],
		date:          credParts[1],
		region:        credParts[2],
		signedHeaders: strings.Split(signed, ";"),
		signature:     sig,
	}, nil
}

func amzDate(r *http.Request) string {
	if v := r.Header.Get("X-Amz-Date"); v != "" {
		return v
	}
	return r.Header.Get("Date")
}

// Authenticate verifies r's Authorization header and returns the resolved
// Principal plus a ChunkValidator seeded for the request's declared payload
// style (non-nil only when x-amz-content-sha256 names a streaming flavor).
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, *ChunkValidator, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, nil, ErrMissingAuthorization
	}
	pa, err := parseAuthorization(authHeader)
	if err != nil {
		return nil, nil, err
	}

	dateTime := amzDate(r)
	ts, err := time.Parse("20060102T150405Z", dateTime)
	if err != nil {
		return nil, nil, fmt.Errorf("sigv4: invalid x-amz-date: %w", err)
	}
	now := a.cfg.Now()
	if ts.Before(now.Add(-MaxClockSkew)) || ts.After(now.Add(MaxClockSkew)) {
		return nil, nil, ErrExpired
	}

	cred, err := a.cfg.Credentials.Lookup(ctx, pa.accessKeyID)
	if err != nil || cred == nil {
		return nil, nil, ErrUnknownAccessKey
	}

	payloadHash := r.Header.Get("X-Amz-Content-Sha256")
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}

	canonicalURI := CanonicalURI(r.URL.Path)
	canonicalQuery := CanonicalQuery(r.URL.Query())
	headersBlock, signedNames := CanonicalHeaders(r.Header, r.Host, pa.signedHeaders)
	cr := CanonicalRequest(r.Method, canonicalURI, canonicalQuery, headersBlock, signedNames, payloadHash)

	scope := CredentialScope(pa.date, pa.region)
	sts := StringToSign(dateTime, scope, HashCanonicalRequest(cr))
	signingKey := DeriveSigningKey(cred.SecretAccessKey, pa.date, pa.region)
	expected := Sign(signingKey, sts)

	if !strings.EqualFold(expected, pa.signature) {
		return nil, nil, ErrSignatureMismatch
	}

	principal := &Principal{AccessKeyID: pa.accessKeyID}

	var validator *ChunkValidator
	if strings.HasPrefix(payloadHash, "STREAMING-") {
		validator = &ChunkValidator{
			SigningKey:    signingKey,
			DateTime:      ts,
			AmzDate:       dateTime,
			Scope:         scope,
			SeedSignature: pa.signature,
			WithTrailer:   strings.HasSuffix(payloadHash, "-TRAILER"),
		}
	}

	return principal, validator, nil
}
