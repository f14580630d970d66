// Package report renders finalized srcfacts measures: a markdown
// table of the measures on the primary writer and timing statistics on
// a diagnostic writer.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/srcfacts/srcfacts"
)

// Write renders the measure table for f.
func Write(w io.Writer, f *srcfacts.Facts) error {
	rows := []struct {
		measure string
		value   string
	}{
		{"srcML bytes", humanize.Comma(f.TotalBytes)},
		{"Characters", humanize.Comma(int64(f.TextSize))},
		{"Files", humanize.Comma(int64(f.Files()))},
		{"LOC", humanize.Comma(int64(f.LOC))},
		{"Classes", humanize.Comma(int64(f.ClassCount))},
		{"Functions", humanize.Comma(int64(f.FunctionCount))},
		{"Declarations", humanize.Comma(int64(f.DeclCount))},
		{"Expressions", humanize.Comma(int64(f.ExprCount))},
		{"Comments", humanize.Comma(int64(f.CommentCount))},
	}

	width := len("Value")
	for _, r := range rows {
		if len(r.value) > width {
			width = len(r.value)
		}
	}

	if _, err := fmt.Fprintf(w, "# srcFacts: %s\n", f.URL); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "| Measure      | %*s |\n", width, "Value"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "|:-------------|-%s:|\n", strings.Repeat("-", width)); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "| %-12s | %*s |\n", r.measure, width, r.value); err != nil {
			return err
		}
	}
	return nil
}

// WriteStats writes elapsed time and throughput to the diagnostic
// writer.
func WriteStats(w io.Writer, f *srcfacts.Facts, elapsed time.Duration) {
	secs := elapsed.Seconds()
	var mloc, rate float64
	if secs > 0 {
		mloc = float64(f.LOC) / secs / 1e6
		rate = float64(f.TotalBytes) / secs
	}
	stat := color.New(color.FgCyan)
	fmt.Fprintln(w)
	stat.Fprintf(w, "%.3g sec\n", secs)
	stat.Fprintf(w, "%.3g MLOC/sec\n", mloc)
	stat.Fprintf(w, "%s/sec\n", humanize.Bytes(uint64(rate)))
}
