// Package listing implements the prefix/delimiter/common-prefix rollup
// algorithm, independent of any particular storage backend: callers supply
// the raw key set (and, for directory buckets, the in-progress multipart
// upload key set) and get back one page of the listing.
package listing

import (
	"sort"
	"strings"

	"github.com/LoyaltyPointHQ/lamina/internal/apierr"
	"github.com/LoyaltyPointHQ/lamina/internal/bucketregistry"
)

// Request describes one ListObjects page request.
type Request struct {
	BucketType              bucketregistry.Type
	Prefix                  string
	Delimiter               string
	StartAfter              string
	MaxKeys                 int
	Keys                    []string // every key in the bucket, unsorted
	InProgressMultipartKeys []string // directory-bucket in-progress upload keys
}

// Result is one page of a listing.
type Result struct {
	Keys           []string
	CommonPrefixes []string
	IsTruncated    bool
	NextToken      string
}

// List runs the §4.7 algorithm over req.
func List(req Request) (Result, error) {
	if req.BucketType == bucketregistry.Directory {
		if req.Delimiter != "" && req.Delimiter != "/" {
			return Result{}, apierr.ErrInvalidArgument.WithMessage("directory buckets require delimiter \"/\"")
		}
		if req.Delimiter != "" && req.Prefix != "" && !strings.HasSuffix(req.Prefix, req.Delimiter) {
			return Result{}, apierr.ErrInvalidArgument.WithMessage("directory bucket prefix must end with the delimiter")
		}
	}

	maxKeys := req.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	candidates := make([]string, 0, len(req.Keys))
	for _, k := range req.Keys {
		if !strings.HasPrefix(k, req.Prefix) {
			continue
		}
		if req.StartAfter != "" && k <= req.StartAfter {
			continue
		}
		candidates = append(candidates, k)
	}
	sort.Strings(candidates) // code-point-ordinal order; directory buckets tolerate any order

	var (
		keys        []string
		prefixOrder []string
		prefixSeen  = make(map[string]bool)
		truncated   bool
		nextToken   string
		count       int
	)

	for _, k := range candidates {
		if count >= maxKeys {
			truncated = true
			break
		}

		if req.Delimiter != "" {
			if cp, ok := commonPrefix(k, req.Prefix, req.Delimiter); ok {
				if !prefixSeen[cp] {
					prefixSeen[cp] = true
					prefixOrder = append(prefixOrder, cp)
					count++
				}
				nextToken = k
				continue
			}
		}

		keys = append(keys, k)
		count++
		nextToken = k
	}

	if !truncated {
		nextToken = ""
	}

	if req.BucketType == bucketregistry.Directory && req.Delimiter != "" {
		for _, k := range req.InProgressMultipartKeys {
			if !strings.HasPrefix(k, req.Prefix) {
				continue
			}
			if cp, ok := commonPrefix(k, req.Prefix, req.Delimiter); ok {
				if !prefixSeen[cp] {
					prefixSeen[cp] = true
					prefixOrder = append(prefixOrder, cp)
				}
			}
		}
	}

	return Result{Keys: keys, CommonPrefixes: prefixOrder, IsTruncated: truncated, NextToken: nextToken}, nil
}

// commonPrefix extracts the delimiter-bounded rollup prefix for k: the
// substring after prefix up to and including the delimiter's first
// occurrence in it.
func commonPrefix(k, prefix, delimiter string) (string, bool) {
	rest := strings.TrimPrefix(k, prefix)
	d := strings.Index(rest, delimiter)
	if d < 0 {
		return "", false
	}
	return prefix + rest[:d+len(delimiter)], true
}
