// Command srcfacts produces a report with various measures of source
// code from a srcML document read from a file argument or stdin.
// Gzip-compressed input is decompressed transparently. The report goes
// to stdout and timing statistics to stderr; the exit code is 1 on any
// read or markup error.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/klauspost/compress/gzip"

	"github.com/srcfacts/srcfacts"
	"github.com/srcfacts/srcfacts/internal/report"
)

var (
	bufferSize = flag.Int("buffer", 0, "byte window capacity in bytes (0 selects the default)")
	trace      = flag.Bool("trace", false, "log every recognized construct to stderr")
)

func main() {
	flag.Parse()
	if err := run(flag.Arg(0)); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "parser error: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	in := io.Reader(os.Stdin)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	r, err := maybeGzip(in)
	if err != nil {
		return err
	}

	var opts []srcfacts.Option
	if *bufferSize > 0 {
		opts = append(opts, srcfacts.WithBufferSize(*bufferSize))
	}
	if *trace {
		opts = append(opts, srcfacts.WithTraceLogger(slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	start := time.Now()
	facts, err := srcfacts.New(r, opts...).Scan()
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := report.Write(os.Stdout, facts); err != nil {
		return err
	}
	report.WriteStats(os.Stderr, facts, elapsed)
	return nil
}

// maybeGzip sniffs the gzip magic and wraps r in a decompressor when
// present.
func maybeGzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil || len(magic) < 2 || magic[0] != 0x1f || magic[1] != 0x8b {
		return br, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("gzip input: %w", err)
	}
	return zr, nil
}
