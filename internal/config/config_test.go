package config

import "testing"

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"64MiB": 64 * 1024 * 1024,
		"1GiB":  1 << 30,
		"500KB": 500 * 1000,
		"1024":  1024,
		"10B":   10,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		if err != nil {
			t.Errorf("ParseSize(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestValidateRequiresDataDirForFS(t *testing.T) {
	c := Default()
	c.Backend = BackendFS
	c.DataDir = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for fs backend with empty DataDir")
	}
}

func TestValidateRequiresDSNForDB(t *testing.T) {
	c := Default()
	c.Backend = BackendDB
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for db backend with empty DSN")
	}
}

func TestValidateRequiresUsersFileWhenAuthEnabled(t *testing.T) {
	c := Default()
	c.AuthEnabled = true
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when auth enabled without users file")
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default(): %v", err)
	}
}
