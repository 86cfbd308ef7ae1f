package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/imebench/internal/model"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		output, expected string
		exact            bool
		distance         int
	}{
		{"今日は", "今日は", true, 0},
		{"今日わ", "今日は", false, 1},
		{"", "今日", false, 2},
		{"京は", "今日は", false, 2},
	}
	for _, tt := range tests {
		exact, distance := Compare(tt.output, tt.expected)
		if exact != tt.exact || distance != tt.distance {
			t.Fatalf("Compare(%q, %q) = %v, %d, want %v, %d",
				tt.output, tt.expected, exact, distance, tt.exact, tt.distance)
		}
	}
}

func TestAccumulate(t *testing.T) {
	records := []model.Record{
		{Output: "今日", Expected: "今日"},
		{Output: "あした", Expected: "明日", Warnings: []model.Warning{model.WarnNoConversion}},
		{Output: "雨 です", Expected: "雨です", Warnings: []model.Warning{model.WarnUnexpectedSpaces}},
		{Output: "", Expected: "晴れ", Warnings: []model.Warning{model.WarnFailed, model.WarnTimeout}},
	}
	var st model.RunStats
	for _, rec := range records {
		Accumulate(&st, rec, true)
	}
	want := model.RunStats{
		Processed:    4,
		Converted:    2,
		Unchanged:    1,
		Spaced:       1,
		Failed:       1,
		TimedOut:     1,
		Compared:     4,
		ExactMatches: 1,
		EditDistance: 0 + 3 + 1 + 2,
		ExpectedLen:  2 + 2 + 3 + 2,
	}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
	if got := ExactRate(st); got != 0.25 {
		t.Fatalf("ExactRate = %v", got)
	}
	if got := Similarity(st); math.Abs(got-(1-6.0/9.0)) > 1e-9 {
		t.Fatalf("Similarity = %v", got)
	}
}

func TestAccumulateWithoutExpected(t *testing.T) {
	var st model.RunStats
	Accumulate(&st, model.Record{Output: "今日"}, false)
	if st.Compared != 0 || st.Converted != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if Similarity(st) != 0 || ExactRate(st) != 0 {
		t.Fatal("rates must be zero without comparisons")
	}
}

func TestSimilarityFloor(t *testing.T) {
	st := model.RunStats{EditDistance: 10, ExpectedLen: 2}
	if got := Similarity(st); got != 0 {
		t.Fatalf("Similarity = %v, want 0", got)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4}, 2)
	want := []float64{1, 1.5, 2.5, 3.5}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("MovingAverage = %v, want %v", got, want)
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 50, 100}); got != " +@" {
		t.Fatalf("Sparkline = %q", got)
	}
	if got := Sparkline([]float64{3, 3}); got != "++" {
		t.Fatalf("flat Sparkline = %q", got)
	}
}

func TestRenderSummary(t *testing.T) {
	st := model.RunStats{
		Status:       model.RunCompleted,
		Processed:    5,
		Converted:    4,
		Unchanged:    1,
		Compared:     5,
		ExactMatches: 4,
		EditDistance: 1,
		ExpectedLen:  20,
	}
	var buf bytes.Buffer
	if err := RenderSummary(&buf, st, 5, 61*time.Second); err != nil {
		t.Fatalf("RenderSummary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Phrases: 5/5",
		"Unchanged: 1",
		"Exact matches: 4/5 (80.00%)",
		"Character similarity: 95.00%",
		"Elapsed: 1m1s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRecordsProblemsOnly(t *testing.T) {
	records := []model.Record{
		{Index: 0, Hiragana: "きょう", Output: "今日", Expected: "今日"},
		{Index: 1, Hiragana: "あめ", Output: "飴", Expected: "雨"},
		{Index: 2, Hiragana: "ほん", Output: "ほん", Warnings: []model.Warning{model.WarnNoConversion}},
	}
	var buf bytes.Buffer
	if err := RenderRecords(&buf, records, true); err != nil {
		t.Fatalf("RenderRecords: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "きょう") {
		t.Fatalf("matched record listed:\n%s", out)
	}
	if !strings.Contains(out, "飴") || !strings.Contains(out, "no_conversion") {
		t.Fatalf("problem records missing:\n%s", out)
	}
}

func TestRenderRunsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderRuns(&buf, nil); err != nil {
		t.Fatalf("RenderRuns: %v", err)
	}
	if buf.String() != "No runs found.\n" {
		t.Fatalf("output = %q", buf.String())
	}
}
