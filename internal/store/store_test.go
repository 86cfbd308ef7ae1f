package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/verte-zerg/imebench/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "imebench.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func startRun(t *testing.T, s *Store, at time.Time) int64 {
	t.Helper()
	id, err := s.StartRun(context.Background(), model.RunInfo{
		StartedAt: at,
		InputPath: "in.txt",
		Driver:    model.DriverAgent,
		Mode:      model.ModeHiragana,
		Phrases:   2,
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	return id
}

func TestRunLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id := startRun(t, s, started)

	recs := []model.Record{
		{Index: 0, Hiragana: "きょう", Romaji: "kyou", Output: "今日", Expected: "今日", Attempts: 1, Elapsed: 1500 * time.Millisecond},
		{Index: 1, Hiragana: "あ", Romaji: "a", Output: "あ", Warnings: []model.Warning{model.WarnNoConversion}, Attempts: 2},
	}
	for _, rec := range recs {
		if err := s.InsertRecord(ctx, id, rec); err != nil {
			t.Fatalf("InsertRecord: %v", err)
		}
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != model.RunRunning || !run.EndedAt.IsZero() || !run.StartedAt.Equal(started) {
		t.Fatalf("running run = %+v", run)
	}

	stats := model.RunStats{
		EndedAt:      started.Add(time.Minute),
		Status:       model.RunCompleted,
		Processed:    2,
		Converted:    1,
		Unchanged:    1,
		Compared:     1,
		ExactMatches: 1,
		ExpectedLen:  2,
	}
	if err := s.FinishRun(ctx, id, stats); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, err = s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !reflect.DeepEqual(run.RunStats, stats) {
		t.Fatalf("stats = %+v, want %+v", run.RunStats, stats)
	}

	got, err := s.ListRecords(ctx, id)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if !reflect.DeepEqual(got, recs) {
		t.Fatalf("records = %+v, want %+v", got, recs)
	}
}

func TestListRunsLast(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, startRun(t, s, base.Add(time.Duration(i)*time.Hour)))
	}
	runs, err := s.ListRuns(context.Background(), model.StatsConfig{Last: 2})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != ids[2] || runs[1].RunID != ids[3] {
		t.Fatalf("runs = %+v", runs)
	}
	all, err := s.ListRuns(context.Background(), model.StatsConfig{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 4 || all[0].RunID != ids[0] {
		t.Fatalf("all runs = %+v", all)
	}
}

func TestMissingRun(t *testing.T) {
	s := openStore(t)
	if _, err := s.GetRun(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRun err = %v", err)
	}
	err := s.FinishRun(context.Background(), 42, model.RunStats{Status: model.RunAborted})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FinishRun err = %v", err)
	}
}
