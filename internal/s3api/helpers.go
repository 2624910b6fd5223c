package s3api

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/LoyaltyPointHQ/lamina/internal/apierr"
	"github.com/LoyaltyPointHQ/lamina/internal/authstore"
	"github.com/LoyaltyPointHQ/lamina/internal/checksum"
	"github.com/LoyaltyPointHQ/lamina/internal/chunked"
	"github.com/LoyaltyPointHQ/lamina/internal/idgen"
	"github.com/go-mizu/mizu"
)

// stampRequestID sets x-amz-request-id on responses that bypass writeXML
// (plain status-code writes with no XML body), keeping the header present
// on every response the same way handle_multipart.go's handlers do.
func stampRequestID(w http.ResponseWriter) {
	if w.Header().Get("x-amz-request-id") == "" {
		w.Header().Set("x-amz-request-id", idgen.RequestID())
	}
}

// bodyWithClose pairs a decoding io.Reader (the chunked.Reader, which has
// no Close of its own) with the underlying request body's Closer, so
// swapping r.Body still satisfies io.ReadCloser.
type bodyWithClose struct {
	io.Reader
	io.Closer
}

// amzTimeFormat is the ISO8601 millisecond timestamp
// handle_multipart.go's XML responses use throughout.
const amzTimeFormat = "2006-01-02T15:04:05.000Z"

// quoteRawETag wraps a raw hex/compound ETag in double quotes, the form
// every S3 ETag header and XML element carries on the wire.
func quoteRawETag(raw string) string {
	if strings.HasPrefix(raw, `"`) {
		return raw
	}
	return `"` + raw + `"`
}

// unquoteETag strips the wire quoting clients send back in If-Match /
// CompleteMultipartUpload manifests.
func unquoteETag(s string) string {
	return strings.Trim(s, `"`)
}

// authenticateAndAuthorize runs SigV4 verification (when configured) and
// then the per-bucket ACL check, returning the request body wrapped for
// chunked decoding when the client signed a streaming payload.
func (s *Server) authenticateAndAuthorize(c *mizu.Ctx, bucket string, action authstore.Action) (*http.Request, error) {
	r := c.Request()

	auth := s.authenticator()
	if auth == nil {
		return r, nil
	}

	principal, validator, err := auth.Authenticate(r.Context(), r)
	if err != nil {
		return nil, apierr.ErrSignatureDoesNotMatch.WithInternal(err)
	}

	if bucket != "" && s.cfg.Auth != nil {
		if !s.cfg.Auth.Authorize(principal.AccessKeyID, bucket, action) {
			return nil, apierr.ErrAccessDenied
		}
	}

	if validator != nil {
		r.Body = bodyWithClose{Reader: chunked.NewReader(r.Body, validator), Closer: r.Body}
	}
	return r, nil
}

// parsedRange is a validated, inclusive byte range.
type parsedRange struct {
	start, end int64
	set        bool
}

// parseRange parses a "bytes=start-end" header value. An empty header
// yields an unset range (start and end -1) covering the whole object.
func parseRange(header string) (parsedRange, error) {
	if header == "" {
		return parsedRange{start: -1, end: -1}, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return parsedRange{}, apierr.ErrInvalidRange
	}
	spec := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return parsedRange{}, apierr.ErrInvalidRange
	}
	start, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	end, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err1 != nil || err2 != nil || start < 0 || end < start {
		return parsedRange{}, apierr.ErrInvalidRange
	}
	return parsedRange{start: start, end: end, set: true}, nil
}

// requestedChecksumAlgorithms inspects x-amz-checksum-* request headers,
// returning which algorithms to compute and the client-declared values to
// validate against.
func requestedChecksumAlgorithms(h http.Header) ([]checksum.Algorithm, map[checksum.Algorithm]string) {
	var algos []checksum.Algorithm
	expected := make(map[checksum.Algorithm]string)
	for _, a := range checksum.All() {
		if v := h.Get(checksum.HeaderName(a)); v != "" {
			algos = append(algos, a)
			expected[a] = v
		}
	}
	return algos, expected
}

// userMetaFromHeaders extracts x-amz-meta-* headers into a bare map, the
// same convention storage.Options' map-based header extraction in
// handle_multipart.go uses for user metadata.
func userMetaFromHeaders(h http.Header) map[string]string {
	const prefix = "X-Amz-Meta-"
	out := map[string]string{}
	for k, v := range h {
		if strings.HasPrefix(k, prefix) && len(v) > 0 {
			out[strings.ToLower(strings.TrimPrefix(k, prefix))] = v[0]
		}
	}
	return out
}

// copySource describes a parsed x-amz-copy-source header, optionally
// carrying a copy-source range for UploadPartCopy-style requests.
type copySource struct {
	Bucket string
	Key    string
	Range  parsedRange
}

// parseCopySource parses "bucket/key" or "/bucket/key", URL-decoded,
// optionally prefixed with a leading slash per the S3 header convention.
func parseCopySource(header, rangeHeader string) (*copySource, error) {
	if header == "" {
		return nil, nil
	}
	v, err := url.PathUnescape(strings.TrimPrefix(header, "/"))
	if err != nil {
		return nil, apierr.ErrInvalidArgument.WithMessage("x-amz-copy-source is not valid URL encoding")
	}
	idx := strings.Index(v, "/")
	if idx <= 0 {
		return nil, apierr.ErrInvalidArgument.WithMessage("x-amz-copy-source must be of the form bucket/key")
	}
	cs := &copySource{Bucket: v[:idx], Key: v[idx+1:]}
	if rangeHeader != "" {
		r, err := parseRange(rangeHeader)
		if err != nil {
			return nil, err
		}
		cs.Range = r
	}
	return cs, nil
}

// pathParam reads a mizu route wildcard/param by name from the request.
func pathParam(c *mizu.Ctx, name string) string {
	return c.Request().PathValue(name)
}

func boolQuery(r *http.Request, name string) bool {
	_, ok := r.URL.Query()[name]
	return ok
}

func intQueryDefault(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
