package s3api

import (
	"net/http"

	"github.com/LoyaltyPointHQ/lamina/internal/authstore"
	"github.com/LoyaltyPointHQ/lamina/internal/bucketregistry"
	"github.com/LoyaltyPointHQ/lamina/internal/listing"
	"github.com/go-mizu/mizu"
)

// handleListBuckets serves GET / (ListBuckets).
func (s *Server) handleListBuckets(c *mizu.Ctx) error {
	if _, err := s.authenticateAndAuthorize(c, "", authstore.ActionRead); err != nil {
		return writeError(c, "/", err)
	}

	buckets, err := s.cfg.Buckets.List(c.Request().Context())
	if err != nil {
		return writeError(c, "/", err)
	}

	out := ListAllMyBucketsResult{Xmlns: s3XMLNS}
	for _, b := range buckets {
		out.Buckets = append(out.Buckets, Bucket{Name: b.Name, CreationDate: b.CreatedAt.UTC().Format(amzTimeFormat)})
	}
	return writeXML(c, http.StatusOK, out)
}

// handleCreateBucket serves PUT /{bucket}.
func (s *Server) handleCreateBucket(c *mizu.Ctx) error {
	bucket := pathParam(c, "bucket")
	if _, err := s.authenticateAndAuthorize(c, bucket, authstore.ActionWrite); err != nil {
		return writeError(c, bucket, err)
	}

	r := c.Request()
	typ := bucketregistry.GeneralPurpose
	storageClass := r.Header.Get("X-Amz-Storage-Class")
	if _, err := s.cfg.Buckets.Create(r.Context(), bucket, typ, storageClass, nil); err != nil {
		return writeError(c, bucket, err)
	}
	c.Writer().Header().Set("Location", "/"+bucket)
	stampRequestID(c.Writer())
	c.Writer().WriteHeader(http.StatusOK)
	return nil
}

// handleHeadBucket serves HEAD /{bucket}.
func (s *Server) handleHeadBucket(c *mizu.Ctx) error {
	bucket := pathParam(c, "bucket")
	if _, err := s.authenticateAndAuthorize(c, bucket, authstore.ActionRead); err != nil {
		return writeError(c, bucket, err)
	}
	if _, err := s.cfg.Buckets.Get(c.Request().Context(), bucket); err != nil {
		return writeError(c, bucket, err)
	}
	stampRequestID(c.Writer())
	c.Writer().WriteHeader(http.StatusOK)
	return nil
}

// handleDeleteBucket serves DELETE /{bucket}.
func (s *Server) handleDeleteBucket(c *mizu.Ctx) error {
	bucket := pathParam(c, "bucket")
	if _, err := s.authenticateAndAuthorize(c, bucket, authstore.ActionWrite); err != nil {
		return writeError(c, bucket, err)
	}
	if err := s.cfg.Buckets.Delete(c.Request().Context(), bucket, false); err != nil {
		return writeError(c, bucket, err)
	}
	stampRequestID(c.Writer())
	c.Writer().WriteHeader(http.StatusNoContent)
	return nil
}

// handleBucketGet dispatches GET /{bucket} between ListObjectsV2 and
// ListMultipartUploads, keyed on the ?uploads query marker.
func (s *Server) handleBucketGet(c *mizu.Ctx) error {
	bucket := pathParam(c, "bucket")
	if _, err := s.authenticateAndAuthorize(c, bucket, authstore.ActionRead); err != nil {
		return writeError(c, bucket, err)
	}
	r := c.Request()
	if boolQuery(r, "uploads") {
		return s.handleListMultipartUploads(c, bucket)
	}
	return s.handleListObjectsV2(c, bucket)
}

// handleListObjectsV2 implements GET /{bucket} (ListObjectsV2 only; the
// legacy V1 listing API with Marker/NextMarker is not implemented).
func (s *Server) handleListObjectsV2(c *mizu.Ctx, bucket string) error {
	r := c.Request()
	q := r.URL.Query()

	b, err := s.cfg.Buckets.Get(r.Context(), bucket)
	if err != nil {
		return writeError(c, bucket, err)
	}

	keys, err := s.cfg.Facade.ListKeys(r.Context(), bucket)
	if err != nil {
		return writeError(c, bucket, err)
	}

	req := listing.Request{
		BucketType: b.Type,
		Prefix:     q.Get("prefix"),
		Delimiter:  q.Get("delimiter"),
		StartAfter: q.Get("start-after"),
		MaxKeys:    intQueryDefault(r, "max-keys", 0),
		Keys:       keys,
	}
	if tok := q.Get("continuation-token"); tok != "" && req.StartAfter == "" {
		req.StartAfter = tok
	}

	res, err := listing.List(req)
	if err != nil {
		return writeError(c, bucket, err)
	}

	out := ListBucketResult{
		Xmlns:       s3XMLNS,
		Name:        bucket,
		Prefix:      req.Prefix,
		Delimiter:   req.Delimiter,
		StartAfter:  req.StartAfter,
		MaxKeys:     req.MaxKeys,
		IsTruncated: res.IsTruncated,
	}
	if out.MaxKeys == 0 {
		out.MaxKeys = 1000
	}
	if res.NextToken != "" {
		out.NextContinuationToken = res.NextToken
	}
	out.KeyCount = len(res.Keys) + len(res.CommonPrefixes)

	for _, k := range res.Keys {
		info, err := s.cfg.Facade.HeadObject(r.Context(), bucket, k)
		if err != nil {
			continue
		}
		out.Contents = append(out.Contents, Contents{
			Key:          k,
			LastModified: info.Info.LastModified.UTC().Format(amzTimeFormat),
			ETag:         quoteRawETag(info.Info.ETag),
			Size:         info.Info.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, p := range res.CommonPrefixes {
		out.CommonPrefixes = append(out.CommonPrefixes, CommonPrefix{Prefix: p})
	}

	return writeXML(c, http.StatusOK, out)
}

// buildBucketLocation formats the Location header value CreateBucket and
// CompleteMultipartUpload echo back, the style buildBucketLocation in
// handle_multipart.go produces.
func buildBucketLocation(bucket, key string) string {
	if key == "" {
		return "/" + bucket
	}
	return "/" + bucket + "/" + key
}
