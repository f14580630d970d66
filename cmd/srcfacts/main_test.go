package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"github.com/srcfacts/srcfacts"
)

const doc = `<unit url="a.cpp"><expr>1</expr></unit>`

func TestMaybeGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := maybeGzip(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != doc {
		t.Fatalf("expected decompressed %q, got: %q", doc, got)
	}

	r, err = maybeGzip(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if got, err = io.ReadAll(r); err != nil || string(got) != doc {
		t.Fatalf("expected passthrough %q, got: %q (err: %v)", doc, got, err)
	}

	r, err = maybeGzip(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if got, err = io.ReadAll(r); err != nil || len(got) != 0 {
		t.Fatalf("expected empty passthrough, got: %q (err: %v)", got, err)
	}
}

// Gzip-compressed input yields the same measures as the plain bytes.
func TestGzipFactsMatch(t *testing.T) {
	plain, err := srcfacts.New(strings.NewReader(doc)).Scan()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(doc))
	zw.Close()

	r, err := maybeGzip(&buf)
	if err != nil {
		t.Fatal(err)
	}
	unzipped, err := srcfacts.New(r).Scan()
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(*unzipped, *plain); diff != "" {
		t.Fatal(diff)
	}
}
