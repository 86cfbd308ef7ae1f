package stats

import (
	"context"

	"github.com/verte-zerg/imebench/internal/model"
	"github.com/verte-zerg/imebench/internal/store"
)

// Report contains precomputed data for stats rendering.
type Report struct {
	Runs     []model.RunAggregate
	Selected model.RunAggregate
	Records  []model.Record
}

// HasSelection reports whether a run was selected.
func (r Report) HasSelection() bool {
	return r.Selected.RunID != 0
}

// BuildReport loads the run history and the records of the selected run,
// which defaults to the most recent one.
func BuildReport(ctx context.Context, st *store.Store, cfg model.StatsConfig) (Report, error) {
	runs, err := st.ListRuns(ctx, model.StatsConfig{Last: cfg.Last})
	if err != nil {
		return Report{}, err
	}
	report := Report{Runs: runs}
	switch {
	case cfg.RunID > 0:
		report.Selected, err = st.GetRun(ctx, cfg.RunID)
		if err != nil {
			return Report{}, err
		}
	case len(runs) > 0:
		report.Selected = runs[len(runs)-1]
	default:
		return report, nil
	}
	report.Records, err = st.ListRecords(ctx, report.Selected.RunID)
	if err != nil {
		return Report{}, err
	}
	return report, nil
}
