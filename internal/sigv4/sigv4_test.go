package sigv4

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"
)

type staticProvider struct{ cred Credential }

func (p staticProvider) Lookup(ctx context.Context, accessKeyID string) (*Credential, error) {
	if accessKeyID != p.cred.AccessKeyID {
		return nil, ErrUnknownAccessKey
	}
	c := p.cred
	return &c, nil
}

func sign(t *testing.T, secret, date, region, amzDate, scope, canonicalRequest string) string {
	t.Helper()
	key := DeriveSigningKey(secret, date, region)
	sts := StringToSign(amzDate, scope, HashCanonicalRequest(canonicalRequest))
	return Sign(key, sts)
}

func TestAuthenticateRoundTrip(t *testing.T) {
	const (
		accessKey = "AKIAEXAMPLE"
		secret    = "secretkeyexample"
		region    = "us-east-1"
	)
	fixedNow := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	amzDateStr := fixedNow.Format("20060102T150405Z")
	date := amzDateStr[:8]
	scope := CredentialScope(date, region)

	req, err := http.NewRequest(http.MethodGet, "http://example.com/bucket/key", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Host = "example.com"
	req.Header.Set("X-Amz-Date", amzDateStr)
	req.Header.Set("X-Amz-Content-Sha256", EmptyPayloadHash)

	signedHeaders := []string{"host", "x-amz-content-sha256", "x-amz-date"}
	headersBlock, names := CanonicalHeaders(req.Header, req.Host, signedHeaders)
	cr := CanonicalRequest(req.Method, CanonicalURI(req.URL.Path), CanonicalQuery(url.Values{}), headersBlock, names, EmptyPayloadHash)
	signature := sign(t, secret, date, region, amzDateStr, scope, cr)

	req.Header.Set("Authorization", algorithm+" Credential="+accessKey+"/"+date+"/"+region+"/s3/aws4_request, SignedHeaders="+names+", Signature="+signature)

	auth := New(Config{
		Credentials: staticProvider{cred: Credential{AccessKeyID: accessKey, SecretAccessKey: secret}},
		Region:      region,
		Now:         func() time.Time { return fixedNow },
	})

	principal, validator, err := auth.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.AccessKeyID != accessKey {
		t.Errorf("AccessKeyID = %q, want %q", principal.AccessKeyID, accessKey)
	}
	if validator != nil {
		t.Errorf("expected nil ChunkValidator for non-streaming payload")
	}
}

func TestAuthenticateRejectsBadSignature(t *testing.T) {
	fixedNow := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	amzDateStr := fixedNow.Format("20060102T150405Z")

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/bucket/key", nil)
	req.Host = "example.com"
	req.Header.Set("X-Amz-Date", amzDateStr)
	req.Header.Set("X-Amz-Content-Sha256", EmptyPayloadHash)
	req.Header.Set("Authorization", algorithm+" Credential=AKIAEXAMPLE/20240115/us-east-1/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=deadbeef")

	auth := New(Config{
		Credentials: staticProvider{cred: Credential{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secretkeyexample"}},
		Region:      "us-east-1",
		Now:         func() time.Time { return fixedNow },
	})

	if _, _, err := auth.Authenticate(context.Background(), req); err != ErrSignatureMismatch {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}
}

func TestAuthenticateRejectsExpiredTimestamp(t *testing.T) {
	fixedNow := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	stale := fixedNow.Add(-time.Hour).Format("20060102T150405Z")

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/bucket/key", nil)
	req.Host = "example.com"
	req.Header.Set("X-Amz-Date", stale)
	req.Header.Set("X-Amz-Content-Sha256", EmptyPayloadHash)
	req.Header.Set("Authorization", algorithm+" Credential=AKIAEXAMPLE/20240115/us-east-1/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=deadbeef")

	auth := New(Config{
		Credentials: staticProvider{cred: Credential{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secretkeyexample"}},
		Region:      "us-east-1",
		Now:         func() time.Time { return fixedNow },
	})

	if _, _, err := auth.Authenticate(context.Background(), req); err != ErrExpired {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestChunkValidatorChainsSignatures(t *testing.T) {
	v := &ChunkValidator{
		SigningKey:    DeriveSigningKey("secretkeyexample", "20240115", "us-east-1"),
		AmzDate:       "20240115T120000Z",
		Scope:         CredentialScope("20240115", "us-east-1"),
		SeedSignature: "seedsig0000000000000000000000000000000000000000000000000000000",
	}

	chunk1 := []byte("hello world")
	sig1 := v.ExpectChunkSignature(chunk1)
	if !v.ValidateChunk(chunk1, sig1) {
		t.Fatal("expected first chunk to validate")
	}

	chunk2 := []byte("second chunk")
	sig2 := v.ExpectChunkSignature(chunk2)
	if sig2 == sig1 {
		t.Fatal("second chunk signature must differ from the first (chained on previous signature)")
	}
	if !v.ValidateChunk(chunk2, sig2) {
		t.Fatal("expected second chunk to validate")
	}

	if v.ValidateChunk(chunk2, sig1) {
		t.Fatal("stale signature must not validate once the chain has advanced")
	}
}
