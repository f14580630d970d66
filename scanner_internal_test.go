package srcfacts

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOptions(t *testing.T) {
	tt := []struct {
		name            string
		options         []Option
		expectedOptions options
	}{
		{
			name:            "defaultOptions",
			expectedOptions: defaultOptions(),
		},
		{
			name:            "zero selects default",
			options:         []Option{WithBufferSize(0)},
			expectedOptions: options{bufferSize: defaultBufferSize},
		},
		{
			name:            "negative selects default",
			options:         []Option{WithBufferSize(-1)},
			expectedOptions: options{bufferSize: defaultBufferSize},
		},
		{
			name:            "below minimum raised",
			options:         []Option{WithBufferSize(1)},
			expectedOptions: options{bufferSize: minBufferSize},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			s := New(nil, tc.options...)
			if diff := cmp.Diff(s.options, tc.expectedOptions,
				cmp.AllowUnexported(options{}),
			); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestWithTraceLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(nil, WithTraceLogger(logger))
	if s.options.logger != logger {
		t.Fatalf("expected logger to be set")
	}
	if s = New(nil); s.options.logger != nil {
		t.Fatalf("expected tracing disabled by default")
	}
}

type chunkedReader struct {
	data []byte
	size int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	n = copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// A refill must compact the unconsumed bytes to the window start and
// then fill the remaining capacity, so later fixed-offset lookahead
// always sees contiguous valid data.
func TestRefillCompaction(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte('a' + i%26)
	}

	s := New(&chunkedReader{data: append([]byte(nil), data...), size: 7}, WithBufferSize(64))
	if err := s.refill(); err != nil {
		t.Fatal(err)
	}
	if len(s.window) != 64 {
		t.Fatalf("expected full window of 64, got: %d", len(s.window))
	}
	if !bytes.Equal(s.window, data[:64]) {
		t.Fatalf("window does not match input prefix")
	}

	s.advance(60)
	if err := s.refill(); err != nil {
		t.Fatal(err)
	}
	if len(s.window) != 64 {
		t.Fatalf("expected full window of 64 after compaction, got: %d", len(s.window))
	}
	if !bytes.Equal(s.window, data[60:124]) {
		t.Fatalf("compaction lost or reordered unconsumed bytes")
	}
	if s.n != 124 {
		t.Fatalf("expected 124 bytes read, got: %d", s.n)
	}
}

func TestRefillAtEOF(t *testing.T) {
	s := New(strings.NewReader("abc"), WithBufferSize(64))
	if err := s.refill(); err != nil {
		t.Fatal(err)
	}
	if !s.eof {
		t.Fatalf("expected eof after short input")
	}
	if string(s.window) != "abc" {
		t.Fatalf("expected window %q, got: %q", "abc", s.window)
	}

	// refill after EOF must not touch the reader
	s.r = nil
	if err := s.refill(); err != nil {
		t.Fatal(err)
	}
	if string(s.window) != "abc" {
		t.Fatalf("expected window unchanged at EOF, got: %q", s.window)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestRefillReadError(t *testing.T) {
	readErr := errors.New("boom")
	s := New(errReader{err: readErr}, WithBufferSize(64))
	_, err := s.Scan()
	if !errors.Is(err, readErr) {
		t.Fatalf("expected read error to propagate, got: %v", err)
	}
}

func TestScanErrorSticky(t *testing.T) {
	s := New(strings.NewReader("<unit><!-- nope"))
	_, first := s.Scan()
	if first == nil {
		t.Fatal("expected error")
	}
	_, second := s.Scan()
	if second != first {
		t.Fatalf("expected sticky error %v, got: %v", first, second)
	}
}

func TestResetReusesWindow(t *testing.T) {
	s := New(strings.NewReader("<unit/>"), WithBufferSize(128))
	if _, err := s.Scan(); err != nil {
		t.Fatal(err)
	}

	s.Reset(strings.NewReader("<unit/>"), WithBufferSize(64))
	if expected := 128; cap(s.buf) != expected {
		t.Fatalf("expected cap(s.buf): %d, got: %d", expected, cap(s.buf))
	}
	if expected := 64; len(s.buf) != expected {
		t.Fatalf("expected len(s.buf): %d, got: %d", expected, len(s.buf))
	}

	facts, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if facts.UnitCount != 1 {
		t.Fatalf("expected 1 unit after Reset, got: %d", facts.UnitCount)
	}
}

func TestNameLen(t *testing.T) {
	tt := []struct {
		in    string
		name  int
		qname int
	}{
		{in: "unit>", name: 4, qname: 4},
		{in: "cpp:unit ", name: 3, qname: 8},
		{in: ":unit", name: 0, qname: 0},
		{in: "a: ", name: 1, qname: 1},
		{in: "a-b_c.d=", name: 7, qname: 7},
		{in: "", name: 0, qname: 0},
	}
	for _, tc := range tt {
		if got := nameLen([]byte(tc.in)); got != tc.name {
			t.Errorf("nameLen(%q): expected %d, got: %d", tc.in, tc.name, got)
		}
		if got := qnameLen([]byte(tc.in)); got != tc.qname {
			t.Errorf("qnameLen(%q): expected %d, got: %d", tc.in, tc.qname, got)
		}
	}
}
