package s3api

import (
	"encoding/xml"
	"net/http"

	"github.com/LoyaltyPointHQ/lamina/internal/apierr"
	"github.com/LoyaltyPointHQ/lamina/internal/bucketregistry"
	"github.com/LoyaltyPointHQ/lamina/internal/idgen"
	"github.com/LoyaltyPointHQ/lamina/internal/objectstore"
	"github.com/go-mizu/mizu"
)

// writeXML marshals v as an XML document with the standard header and the
// status code given, the response shape every handler in
// lib/storage/transport/s3/handle_multipart.go produces. Every response,
// success or error, carries a fresh x-amz-request-id the same way
// handle_multipart.go stamps one on each write.
func writeXML(c *mizu.Ctx, status int, v any) error {
	w := c.Writer()
	w.Header().Set("Content-Type", "application/xml")
	if w.Header().Get("x-amz-request-id") == "" {
		w.Header().Set("x-amz-request-id", idgen.RequestID())
	}
	w.WriteHeader(status)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	return enc.Encode(v)
}

// writeError maps err to an *apierr.Error and writes its XML body, echoing
// the same request ID into both the header and the body's RequestId element.
func writeError(c *mizu.Ctx, resource string, err error) error {
	apiErr := mapError(err)
	if apiErr.Resource == "" {
		apiErr = apiErr.WithResource(resource)
	}
	reqID := idgen.RequestID()
	c.Writer().Header().Set("x-amz-request-id", reqID)
	return writeXML(c, apiErr.HTTPStatus, apiError{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Resource:  apiErr.Resource,
		RequestID: reqID,
	})
}

// mapError translates internal sentinel/typed errors into the S3 error
// vocabulary. Anything unrecognized becomes ErrInternal.
func mapError(err error) *apierr.Error {
	if apiErr, ok := apierr.As(err); ok {
		return apiErr
	}

	switch err {
	case bucketregistry.ErrAlreadyExists:
		return apierr.ErrBucketAlreadyExists
	case bucketregistry.ErrNotFound:
		return apierr.ErrNoSuchBucket
	case bucketregistry.ErrNotEmpty:
		return &apierr.Error{Code: "BucketNotEmpty", Message: "The bucket you tried to delete is not empty.", HTTPStatus: http.StatusConflict}
	case objectstore.ErrNotExist:
		return apierr.ErrNoSuchKey
	case objectstore.ErrExist:
		return apierr.ErrInvalidArgument
	}

	return apierr.ErrInternal.WithInternal(err)
}
