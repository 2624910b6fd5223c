package authstore

import (
	"context"
	"testing"
)

func TestLookupAndAuthorize(t *testing.T) {
	store, err := New([]UserConfig{
		{
			AccessKeyID:     "AKIAEXAMPLE",
			SecretAccessKey: "topsecret",
			Name:            "alice",
			Permissions: []Permission{
				{Pattern: "prod-*", Actions: map[Action]bool{ActionRead: true, ActionWrite: true}},
				{Pattern: "archive", Actions: map[Action]bool{ActionRead: true}},
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cred, err := store.Lookup(context.Background(), "AKIAEXAMPLE")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if cred.SecretAccessKey != "topsecret" {
		t.Errorf("SecretAccessKey = %q, want topsecret", cred.SecretAccessKey)
	}

	if _, err := store.Lookup(context.Background(), "unknown"); err != ErrUnknownUser {
		t.Errorf("err = %v, want ErrUnknownUser", err)
	}

	if !store.Authorize("AKIAEXAMPLE", "prod-data", ActionWrite) {
		t.Error("expected write authorized on prod-data")
	}
	if !store.Authorize("AKIAEXAMPLE", "archive", ActionRead) {
		t.Error("expected read authorized on archive")
	}
	if store.Authorize("AKIAEXAMPLE", "archive", ActionWrite) {
		t.Error("expected write NOT authorized on archive")
	}
	if store.Authorize("AKIAEXAMPLE", "other-bucket", ActionRead) {
		t.Error("expected read NOT authorized on unmatched bucket")
	}
}

func TestVerifySecret(t *testing.T) {
	store, err := New([]UserConfig{{AccessKeyID: "AKIA", SecretAccessKey: "correct-horse"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !store.VerifySecret("AKIA", "correct-horse") {
		t.Error("expected VerifySecret to accept the correct secret")
	}
	if store.VerifySecret("AKIA", "wrong") {
		t.Error("expected VerifySecret to reject an incorrect secret")
	}
}

func TestVerifySecretWithCustomHashParams(t *testing.T) {
	params := DefaultHashParams()
	params.Iterations = 1
	params.Memory = 8 * 1024

	store, err := New([]UserConfig{{AccessKeyID: "AKIA", SecretAccessKey: "correct-horse"}}, WithHashParams(params))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !store.VerifySecret("AKIA", "correct-horse") {
		t.Error("expected VerifySecret to accept the correct secret under custom hash params")
	}
	if store.VerifySecret("AKIA", "wrong") {
		t.Error("expected VerifySecret to reject an incorrect secret under custom hash params")
	}
}
