package smoke

import (
	"github.com/last-emo-boy/market-smoke/pkg/database"
)

// Recorder persists smoke runs and their steps
type Recorder interface {
	StartRun(run *database.SmokeRun) error
	RecordStep(step *database.SmokeStep) error
	FinishRun(run *database.SmokeRun) error
}

// DBRecorder stores history in the SQLite database
type DBRecorder struct {
	db *database.DB
}

// NewDBRecorder creates a recorder backed by db
func NewDBRecorder(db *database.DB) *DBRecorder {
	return &DBRecorder{db: db}
}

func (r *DBRecorder) StartRun(run *database.SmokeRun) error {
	return r.db.RunRepository().Create(run)
}

func (r *DBRecorder) RecordStep(step *database.SmokeStep) error {
	return r.db.StepRepository().Record(step)
}

func (r *DBRecorder) FinishRun(run *database.SmokeRun) error {
	return r.db.RunRepository().Finish(run)
}
