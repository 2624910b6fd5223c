// Package sigv4 implements AWS Signature Version 4 request authentication:
// canonical request construction, signing-key derivation, and verification
// of the Authorization header against a credential store.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const (
	terminator = "aws4_request"
	service    = "s3"
	algorithm  = "AWS4-HMAC-SHA256"

	// EmptyPayloadHash is the SHA-256 hash of a zero-length payload, used
	// whenever a request carries no body (or a streaming body whose hash
	// is deferred to chunk signatures instead).
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// UnsignedPayload marks requests (and the chunked-upload flavors) that
	// do not hash the body into the canonical request at all.
	UnsignedPayload = "UNSIGNED-PAYLOAD"
)

func unreserved(c byte) bool {
	return c >= 'A' && c <= 'Z' ||
		c >= 'a' && c <= 'z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// escape percent-encodes s per RFC 3986, leaving '/' alone when keepSlash is
// set (used for URI-path encoding, where segments are already delimited).
func escape(s string, keepSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) || (keepSlash && c == '/') {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return b.String()
}

// CanonicalURI returns the canonical URI-encoded request path: each segment
// percent-encoded per unreserved-character rules, slashes preserved, with
// dot-segments left exactly as given (callers pass an already-cleaned path).
func CanonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = escape(s, false)
	}
	return strings.Join(segments, "/")
}

// CanonicalQuery returns the canonical query string: parameters sorted by
// encoded key (then encoded value), each percent-encoded, joined with '&'.
func CanonicalQuery(values url.Values) string {
	type kv struct{ k, v string }
	var pairs []kv
	for k, vs := range values {
		if k == "X-Amz-Signature" {
			continue
		}
		ek := escape(k, false)
		for _, v := range vs {
			pairs = append(pairs, kv{ek, escape(v, false)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(p.v)
	}
	return b.String()
}

func trimHeaderValue(v string) string {
	fields := strings.Fields(v)
	return strings.Join(fields, " ")
}

// CanonicalHeaders returns the canonical headers block (each signed header
// lower-cased, trimmed, sorted, one "name:value\n" per line) and the
// semicolon-joined signed-header list, in the order SigV4 requires.
func CanonicalHeaders(header http.Header, host string, signedHeaders []string) (block string, names string) {
	names2 := make([]string, len(signedHeaders))
	copy(names2, signedHeaders)
	sort.Strings(names2)

	var b strings.Builder
	for _, n := range names2 {
		lower := strings.ToLower(n)
		var v string
		if lower == "host" {
			v = host
		} else {
			vs := header.Values(n)
			parts := make([]string, len(vs))
			for i, vv := range vs {
				parts[i] = trimHeaderValue(vv)
			}
			v = strings.Join(parts, ",")
		}
		b.WriteString(lower)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names2, ";")
}

// CanonicalRequest assembles the full canonical request string.
func CanonicalRequest(method, canonicalURI, canonicalQuery, canonicalHeadersBlock, signedHeaderNames, payloadHash string) string {
	return strings.Join([]string{
		method,
		canonicalURI,
		canonicalQuery,
		canonicalHeadersBlock,
		signedHeaderNames,
		payloadHash,
	}, "\n")
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CredentialScope builds the "date/region/service/aws4_request" scope.
func CredentialScope(date, region string) string {
	return strings.Join([]string{date, region, service, terminator}, "/")
}

// StringToSign builds the SigV4 string-to-sign from the request timestamp
// (full amz-date, e.g. 20060102T150405Z), the credential scope, and the
// hex-encoded hash of the canonical request.
func StringToSign(amzDate, scope, canonicalRequestHash string) string {
	return strings.Join([]string{algorithm, amzDate, scope, canonicalRequestHash}, "\n")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// DeriveSigningKey walks the AWS4 key-derivation chain:
// HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date), region), "s3"), "aws4_request").
func DeriveSigningKey(secret, date, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), date)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, terminator)
}

// Sign returns the hex-encoded HMAC-SHA256 signature of stringToSign under
// signingKey.
func Sign(signingKey []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(signingKey, stringToSign))
}

// HashCanonicalRequest hashes a canonical request string for use in
// StringToSign.
func HashCanonicalRequest(canonicalRequest string) string { return hashHex(canonicalRequest) }
