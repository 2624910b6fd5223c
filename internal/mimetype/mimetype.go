// Package mimetype infers content types from object keys and from sniffed
// bytes. Adapted from pkg/mime/mime.go, trimmed to the extensions object
// storage clients commonly upload, plus a byte-sniffing helper (FromBytes).
// Facade metadata synthesis uses FromExtension only.
package mimetype

import (
	"net/http"
	"path"
	"strings"
)

// byExtension covers the common web and archive extensions explicitly,
// plus a handful of adjacent ones in the same idiom.
var byExtension = map[string]string{
	".txt":  "text/plain",
	".log":  "text/plain",
	".json": "application/json",
	".yaml": "text/yaml",
	".yml":  "text/yaml",
	".xml":  "application/xml",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".gz":   "application/gzip",
	".zip":  "application/zip",
	".tar":  "application/x-tar",
}

const defaultContentType = "application/octet-stream"

// FromExtension returns the content type for key's extension, deterministic
// in key, defaulting to application/octet-stream for unknown extensions.
func FromExtension(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ct, ok := byExtension[ext]; ok {
		return ct
	}
	return defaultContentType
}

// FromBytes sniffs a content type from the first bytes of an object, for use
// when neither a caller-declared type nor a key extension is informative.
func FromBytes(b []byte) string {
	ct := http.DetectContentType(b)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// Default is the fallback content type used whenever no other signal
// applies.
func Default() string { return defaultContentType }
