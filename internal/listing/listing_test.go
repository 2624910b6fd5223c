package listing

import (
	"reflect"
	"sort"
	"testing"

	"github.com/LoyaltyPointHQ/lamina/internal/apierr"
	"github.com/LoyaltyPointHQ/lamina/internal/bucketregistry"
)

func TestListNoDelimiterReturnsAllUpToMaxKeys(t *testing.T) {
	res, err := List(Request{
		BucketType: bucketregistry.GeneralPurpose,
		Keys:       []string{"c", "a", "b"},
		MaxKeys:    2,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(res.Keys, []string{"a", "b"}) {
		t.Errorf("Keys = %v, want [a b]", res.Keys)
	}
	if !res.IsTruncated {
		t.Error("expected IsTruncated = true")
	}
	if res.NextToken != "b" {
		t.Errorf("NextToken = %q, want %q", res.NextToken, "b")
	}
}

func TestListWithDelimiterRollsUpCommonPrefixes(t *testing.T) {
	res, err := List(Request{
		BucketType: bucketregistry.GeneralPurpose,
		Keys:       []string{"photos/2021/a.jpg", "photos/2022/b.jpg", "readme.txt"},
		Delimiter:  "/",
		MaxKeys:    1000,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(res.CommonPrefixes)
	if !reflect.DeepEqual(res.CommonPrefixes, []string{"photos/"}) {
		t.Errorf("CommonPrefixes = %v, want [photos/]", res.CommonPrefixes)
	}
	if !reflect.DeepEqual(res.Keys, []string{"readme.txt"}) {
		t.Errorf("Keys = %v, want [readme.txt]", res.Keys)
	}
	if res.IsTruncated {
		t.Error("expected IsTruncated = false")
	}
}

func TestListDirectoryBucketMergesInProgressMultipart(t *testing.T) {
	res, err := List(Request{
		BucketType:              bucketregistry.Directory,
		Prefix:                  "uploads/",
		Delimiter:                "/",
		Keys:                    []string{"uploads/completed/file.txt"},
		InProgressMultipartKeys: []string{"uploads/inprogress/file1.txt"},
		MaxKeys:                 1000,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(res.CommonPrefixes)
	want := []string{"uploads/completed/", "uploads/inprogress/"}
	if !reflect.DeepEqual(res.CommonPrefixes, want) {
		t.Errorf("CommonPrefixes = %v, want %v", res.CommonPrefixes, want)
	}
}

func TestListDirectoryBucketRejectsBadDelimiter(t *testing.T) {
	_, err := List(Request{
		BucketType: bucketregistry.Directory,
		Delimiter:  ",",
		Keys:       []string{"a"},
	})
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != "InvalidArgument" {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestListStartAfterExcludesUpToAndIncluding(t *testing.T) {
	res, err := List(Request{
		BucketType: bucketregistry.GeneralPurpose,
		Keys:       []string{"a", "b", "c", "d"},
		StartAfter: "b",
		MaxKeys:    10,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(res.Keys, []string{"c", "d"}) {
		t.Errorf("Keys = %v, want [c d]", res.Keys)
	}
}
