// Package stats computes accuracy metrics and renders run reports.
package stats

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/verte-zerg/imebench/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Compare scores an output against the expected text. The distance counts
// rune edits.
func Compare(output, expected string) (exact bool, distance int) {
	if output == expected {
		return true, 0
	}
	return false, levenshtein.Distance(output, expected, nil)
}

// Accumulate adds one record to the run totals. The expected text is only
// scored when compare is set.
func Accumulate(st *model.RunStats, rec model.Record, compare bool) {
	st.Processed++
	switch {
	case rec.Has(model.WarnFailed):
		st.Failed++
	case rec.Has(model.WarnNoConversion):
		st.Unchanged++
	default:
		st.Converted++
	}
	if rec.Has(model.WarnUnexpectedSpaces) {
		st.Spaced++
	}
	if rec.Has(model.WarnTimeout) {
		st.TimedOut++
	}
	if !compare {
		return
	}
	exact, distance := Compare(rec.Output, rec.Expected)
	st.Compared++
	if exact {
		st.ExactMatches++
	}
	st.EditDistance += distance
	st.ExpectedLen += utf8.RuneCountInString(rec.Expected)
}

// ExactRate returns the share of compared phrases that matched exactly.
func ExactRate(st model.RunStats) float64 {
	if st.Compared == 0 {
		return 0
	}
	return float64(st.ExactMatches) / float64(st.Compared)
}

// Similarity returns one minus the edit distance per expected character,
// floored at zero.
func Similarity(st model.RunStats) float64 {
	if st.ExpectedLen == 0 {
		return 0
	}
	sim := 1 - float64(st.EditDistance)/float64(st.ExpectedLen)
	if sim < 0 {
		return 0
	}
	return sim
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		den := float64(i + 1)
		if i >= window {
			sum -= values[i-window]
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints the totals of one run.
func RenderSummary(w io.Writer, st model.RunStats, phrases int, elapsed time.Duration) error {
	lines := []string{
		"Summary",
		fmt.Sprintf("Status: %s", st.Status),
		fmt.Sprintf("Phrases: %d/%d", st.Processed, phrases),
		fmt.Sprintf("Converted: %d", st.Converted),
		fmt.Sprintf("Unchanged: %d", st.Unchanged),
		fmt.Sprintf("Unexpected spaces: %d", st.Spaced),
		fmt.Sprintf("Failed: %d (timeouts: %d)", st.Failed, st.TimedOut),
	}
	if st.Compared > 0 {
		lines = append(lines,
			fmt.Sprintf("Exact matches: %d/%d (%s)", st.ExactMatches, st.Compared, percent(ExactRate(st))),
			fmt.Sprintf("Character similarity: %s", percent(Similarity(st))),
		)
	}
	lines = append(lines, fmt.Sprintf("Elapsed: %s", elapsed.Round(time.Second)))
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderRuns prints stored runs as a table followed by a similarity trend.
func RenderRuns(w io.Writer, runs []model.RunAggregate) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	tbl := newTextTable(
		column{Title: "ID", Right: true},
		column{Title: "Started"},
		column{Title: "Driver"},
		column{Title: "Mode"},
		column{Title: "Status"},
		column{Title: "Phrases", Right: true},
		column{Title: "Failed", Right: true},
		column{Title: "Exact", Right: true},
		column{Title: "Similarity", Right: true},
	)
	var trend []float64
	for _, r := range runs {
		exact, sim := "-", "-"
		if r.Compared > 0 {
			exact = percent(ExactRate(r.RunStats))
			sim = percent(Similarity(r.RunStats))
			trend = append(trend, Similarity(r.RunStats)*100)
		}
		tbl.add(
			strconv.FormatInt(r.RunID, 10),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Driver,
			r.Mode,
			r.Status,
			fmt.Sprintf("%d/%d", r.Processed, r.Phrases),
			strconv.Itoa(r.Failed),
			exact,
			sim,
		)
	}
	if err := tbl.write(w); err != nil {
		return err
	}
	if len(trend) > 1 {
		if _, err := fmt.Fprintf(w, "\nSimilarity trend: %s\n", Sparkline(MovingAverage(trend, 3))); err != nil {
			return err
		}
	}
	return nil
}

const recordCellWidth = 32

// RenderRecords prints records as a table. With problemsOnly, records that
// matched and carry no warning are left out.
func RenderRecords(w io.Writer, records []model.Record, problemsOnly bool) error {
	tbl := newTextTable(
		column{Title: "#", Right: true},
		column{Title: "Input", Max: recordCellWidth},
		column{Title: "Keys", Max: recordCellWidth},
		column{Title: "Output", Max: recordCellWidth},
		column{Title: "Expected", Max: recordCellWidth},
		column{Title: "Warnings"},
	)
	for _, rec := range records {
		if problemsOnly && len(rec.Warnings) == 0 && (rec.Expected == "" || rec.Output == rec.Expected) {
			continue
		}
		tbl.add(
			strconv.Itoa(rec.Index + 1),
			rec.Hiragana,
			rec.Romaji,
			rec.Output,
			rec.Expected,
			WarningList(rec.Warnings),
		)
	}
	if tbl.len() == 0 {
		_, err := fmt.Fprintln(w, "No records to show.")
		return err
	}
	return tbl.write(w)
}

// WarningList joins warnings for display.
func WarningList(warnings []model.Warning) string {
	parts := make([]string, len(warnings))
	for i, w := range warnings {
		parts[i] = string(w)
	}
	return strings.Join(parts, ",")
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}
