package chunked

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/LoyaltyPointHQ/lamina/internal/sigv4"
)

func newTestValidator() *sigv4.ChunkValidator {
	return &sigv4.ChunkValidator{
		SigningKey:    sigv4.DeriveSigningKey("secretkeyexample", "20240115", "us-east-1"),
		AmzDate:       "20240115T120000Z",
		Scope:         sigv4.CredentialScope("20240115", "us-east-1"),
		SeedSignature: "0000000000000000000000000000000000000000000000000000000000000000",
	}
}

func encodeChunk(v *sigv4.ChunkValidator, data []byte) []byte {
	sig := v.ExpectChunkSignature(data)
	v.ValidateChunk(data, sig)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%x;chunk-signature=%s\r\n", len(data), sig)
	buf.Write(data)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func TestReaderDecodesChunkStream(t *testing.T) {
	writerV := newTestValidator()
	var stream bytes.Buffer
	stream.Write(encodeChunk(writerV, []byte("hello ")))
	stream.Write(encodeChunk(writerV, []byte("world")))
	stream.Write(encodeChunk(writerV, nil))

	readerV := newTestValidator()
	r := NewReader(&stream, readerV)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestReaderRejectsTamperedChunk(t *testing.T) {
	writerV := newTestValidator()
	var stream bytes.Buffer
	stream.Write(encodeChunk(writerV, []byte("hello ")))
	tampered := encodeChunk(writerV, []byte("world"))
	tampered[len(tampered)-7] = 'X' // corrupt the first data byte ('w') of the chunk payload
	stream.Write(tampered)
	stream.Write(encodeChunk(writerV, nil))

	readerV := newTestValidator()
	r := NewReader(&stream, readerV)
	if _, err := io.ReadAll(r); err != ErrChunkSignatureBad {
		t.Fatalf("err = %v, want ErrChunkSignatureBad", err)
	}
}

func TestReaderWithoutValidatorSkipsVerification(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("6\r\nhello \r\n")
	stream.WriteString("5\r\nworld\r\n")
	stream.WriteString("0\r\n\r\n")

	r := NewReader(&stream, nil)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}
