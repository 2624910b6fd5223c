package s3api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/LoyaltyPointHQ/lamina/internal/apierr"
	"github.com/LoyaltyPointHQ/lamina/internal/authstore"
	"github.com/LoyaltyPointHQ/lamina/internal/checksum"
	"github.com/LoyaltyPointHQ/lamina/internal/facade"
	"github.com/go-mizu/mizu"
)

// handleObjectPut dispatches PUT /{bucket}/{key} between PutObject,
// UploadPart, and CopyObject, keyed on query parameters and the
// x-amz-copy-source header the same way handle_multipart.go's sibling
// handlers key off Request fields extracted from storage.Options.
func (s *Server) handleObjectPut(c *mizu.Ctx) error {
	bucket, key := pathParam(c, "bucket"), bucketKey(pathParam(c, "key"))
	r, err := s.authenticateAndAuthorize(c, bucket, authstore.ActionWrite)
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	q := r.URL.Query()
	if uploadID := q.Get("uploadId"); uploadID != "" {
		partNumber := intQueryDefault(r, "partNumber", 0)
		if partNumber < 1 {
			return writeError(c, buildBucketLocation(bucket, key), apierr.ErrInvalidArgument.WithMessage("partNumber is required"))
		}
		if src := r.Header.Get("x-amz-copy-source"); src != "" {
			return s.handleUploadPartCopy(c, bucket, key, partNumber, uploadID, src)
		}
		return s.handleUploadPart(c, bucket, key, partNumber, uploadID)
	}

	if src := r.Header.Get("x-amz-copy-source"); src != "" {
		return s.handleCopyObject(c, bucket, key, src)
	}

	return s.handlePutObject(c, bucket, key)
}

func (s *Server) handlePutObject(c *mizu.Ctx, bucket, key string) error {
	r := c.Request()
	algos, expected := requestedChecksumAlgorithms(r.Header)

	result, err := s.cfg.Facade.PutObject(r.Context(), bucket, key, r.Body, facade.PutInput{
		ContentType: r.Header.Get("Content-Type"),
		UserMeta:    userMetaFromHeaders(r.Header),
		Algorithms:  algos,
		Expected:    expected,
	})
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	c.Writer().Header().Set("ETag", quoteRawETag(result.ETag))
	for algo, val := range result.Checksums {
		c.Writer().Header().Set(checksum.HeaderName(algo), val)
	}
	stampRequestID(c.Writer())
	c.Writer().WriteHeader(http.StatusOK)
	return nil
}

func (s *Server) handleCopyObject(c *mizu.Ctx, dstBucket, dstKey, srcHeader string) error {
	r := c.Request()
	src, err := parseCopySource(srcHeader, "")
	if err != nil {
		return writeError(c, buildBucketLocation(dstBucket, dstKey), err)
	}

	replace := r.Header.Get("x-amz-metadata-directive") == "REPLACE"
	in := facade.CopyInput{ReplaceMetadata: replace}
	if replace {
		in.Metadata.ContentType = r.Header.Get("Content-Type")
		in.Metadata.UserMeta = userMetaFromHeaders(r.Header)
	}

	result, err := s.cfg.Facade.CopyObject(r.Context(), src.Bucket, src.Key, dstBucket, dstKey, in)
	if err != nil {
		return writeError(c, buildBucketLocation(dstBucket, dstKey), err)
	}

	return writeXML(c, http.StatusOK, CopyObjectResult{
		Xmlns: s3XMLNS,
		ETag:  quoteRawETag(result.ETag),
	})
}

// handleUploadPartCopy serves PUT /{bucket}/{key}?partNumber=&uploadId= with
// an x-amz-copy-source header: it streams a (sub-range of a) source object
// through a pipe into the destination upload's part storage, the same
// pattern CompleteMultipartUpload uses to stream stored parts into
// StoreMultipartData without buffering the whole object in memory.
func (s *Server) handleUploadPartCopy(c *mizu.Ctx, bucket, key string, partNumber int, uploadID, srcHeader string) error {
	r := c.Request()
	cs, err := parseCopySource(srcHeader, r.Header.Get("x-amz-copy-source-range"))
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	start, end := int64(-1), int64(-1)
	if cs.Range.set {
		start, end = cs.Range.start, cs.Range.end
	}

	pr, pw := io.Pipe()
	go func() {
		err := s.cfg.Facade.CopyObjectPart(r.Context(), cs.Bucket, cs.Key, pw, start, end)
		pw.CloseWithError(err)
	}()

	part, err := s.cfg.Multipart.UploadPart(r.Context(), bucket, key, uploadID, partNumber, pr, nil, nil)
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	return writeXML(c, http.StatusOK, CopyPartResult{
		Xmlns:        s3XMLNS,
		ETag:         quoteRawETag(part.ETag),
		LastModified: part.LastModified.UTC().Format(amzTimeFormat),
	})
}

// handleObjectPost dispatches POST /{bucket}/{key} between
// CreateMultipartUpload and CompleteMultipartUpload.
func (s *Server) handleObjectPost(c *mizu.Ctx) error {
	bucket, key := pathParam(c, "bucket"), bucketKey(pathParam(c, "key"))
	r, err := s.authenticateAndAuthorize(c, bucket, authstore.ActionWrite)
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	q := r.URL.Query()
	if boolQuery(r, "uploads") {
		return s.handleCreateMultipartUpload(c, bucket, key)
	}
	if uploadID := q.Get("uploadId"); uploadID != "" {
		return s.handleCompleteMultipartUpload(c, bucket, key, uploadID)
	}
	return writeError(c, buildBucketLocation(bucket, key), apierr.ErrInvalidArgument.WithMessage("unsupported POST request"))
}

// handleObjectGet dispatches GET /{bucket}/{key} between GetObject and
// ListParts.
func (s *Server) handleObjectGet(c *mizu.Ctx) error {
	bucket, key := pathParam(c, "bucket"), bucketKey(pathParam(c, "key"))
	r, err := s.authenticateAndAuthorize(c, bucket, authstore.ActionRead)
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	if uploadID := r.URL.Query().Get("uploadId"); uploadID != "" {
		return s.handleListParts(c, bucket, key, uploadID)
	}

	rng, err := parseRange(r.Header.Get("Range"))
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	// Resolve metadata first: Facade.GetObject streams the body straight to
	// w, so headers must be written before that call or they arrive too
	// late to take effect on the ResponseWriter.
	obj, err := s.cfg.Facade.HeadObject(r.Context(), bucket, key)
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}
	if rng.set && (rng.start >= obj.Info.Size || rng.end >= obj.Info.Size) {
		return writeError(c, buildBucketLocation(bucket, key), apierr.ErrInvalidRange)
	}

	w := c.Writer()
	writeObjectHeaders(w, obj, rng)
	stampRequestID(w)
	if _, err := s.cfg.Facade.GetObject(r.Context(), bucket, key, w, rng.start, rng.end); err != nil {
		return err
	}
	return nil
}

// handleHeadObject serves HEAD /{bucket}/{key}.
func (s *Server) handleHeadObject(c *mizu.Ctx) error {
	bucket, key := pathParam(c, "bucket"), bucketKey(pathParam(c, "key"))
	r, err := s.authenticateAndAuthorize(c, bucket, authstore.ActionRead)
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	obj, err := s.cfg.Facade.HeadObject(r.Context(), bucket, key)
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	writeObjectHeaders(c.Writer(), obj, parsedRange{start: -1, end: -1})
	stampRequestID(c.Writer())
	c.Writer().WriteHeader(http.StatusOK)
	return nil
}

// handleObjectDelete dispatches DELETE /{bucket}/{key} between
// DeleteObject and AbortMultipartUpload.
func (s *Server) handleObjectDelete(c *mizu.Ctx) error {
	bucket, key := pathParam(c, "bucket"), bucketKey(pathParam(c, "key"))
	r, err := s.authenticateAndAuthorize(c, bucket, authstore.ActionWrite)
	if err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}

	if uploadID := r.URL.Query().Get("uploadId"); uploadID != "" {
		return s.handleAbortMultipartUpload(c, bucket, key, uploadID)
	}

	if err := s.cfg.Facade.DeleteObject(r.Context(), bucket, key); err != nil {
		return writeError(c, buildBucketLocation(bucket, key), err)
	}
	stampRequestID(c.Writer())
	c.Writer().WriteHeader(http.StatusNoContent)
	return nil
}

func writeObjectHeaders(w http.ResponseWriter, obj *facade.Object, rng parsedRange) {
	h := w.Header()
	h.Set("ETag", quoteRawETag(obj.Info.ETag))
	h.Set("Content-Type", obj.Metadata.ContentType)
	h.Set("Last-Modified", obj.Info.LastModified.UTC().Format(http.TimeFormat))
	for k, v := range obj.Metadata.UserMeta {
		h.Set("x-amz-meta-"+k, v)
	}
	for algo, val := range obj.Info.Checksums {
		h.Set(checksum.HeaderName(algo), val)
	}
	if rng.set {
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, obj.Info.Size))
		w.WriteHeader(http.StatusPartialContent)
	}
}
