package checksum

import "testing"

func TestEngineComputesAllAlgorithms(t *testing.T) {
	e := New(All(), nil)
	e.Append([]byte("hello "))
	e.Append([]byte("world"))
	r := e.Finish()

	if !r.Valid {
		t.Fatalf("expected valid result with no expectations, got mismatch on %s", r.Mismatch)
	}
	for _, a := range All() {
		if r.Values[a] == "" {
			t.Fatalf("missing computed value for %s", a)
		}
	}
}

func TestEngineDetectsMismatch(t *testing.T) {
	e := New([]Algorithm{SHA256}, map[Algorithm]string{SHA256: "not-the-real-value"})
	e.Append([]byte("data"))
	r := e.Finish()

	if r.Valid {
		t.Fatalf("expected mismatch")
	}
	if r.Mismatch != SHA256 {
		t.Fatalf("expected mismatch algorithm sha256, got %s", r.Mismatch)
	}
}

func TestAggregateOrderSensitive(t *testing.T) {
	e1 := New([]Algorithm{CRC32}, nil)
	e1.Append([]byte("part one"))
	c1 := e1.Finish().Values[CRC32]

	e2 := New([]Algorithm{CRC32}, nil)
	e2.Append([]byte("part two, longer"))
	c2 := e2.Finish().Values[CRC32]

	forward, ok, err := Aggregate(CRC32, []string{c1, c2})
	if err != nil || !ok {
		t.Fatalf("aggregate forward: ok=%v err=%v", ok, err)
	}
	backward, ok, err := Aggregate(CRC32, []string{c2, c1})
	if err != nil || !ok {
		t.Fatalf("aggregate backward: ok=%v err=%v", ok, err)
	}

	if forward == backward {
		t.Fatalf("expected order-sensitive aggregate, got equal values")
	}
}

func TestAggregateEmptyYieldsNoAggregate(t *testing.T) {
	_, ok, err := Aggregate(CRC32, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for empty part list")
	}
}

func TestAggregateRepeatedIdenticalChecksumsStable(t *testing.T) {
	// Two identical CRC32 checksums.
	const c = "ShexVg=="
	v1, ok, err := Aggregate(CRC32, []string{c, c})
	if err != nil || !ok {
		t.Fatalf("aggregate: ok=%v err=%v", ok, err)
	}
	v2, ok, err := Aggregate(CRC32, []string{c, c})
	if err != nil || !ok {
		t.Fatalf("aggregate: ok=%v err=%v", ok, err)
	}
	if v1 != v2 {
		t.Fatalf("expected reproducible aggregate, got %q vs %q", v1, v2)
	}
}
