package restserver

import (
	"time"

	"github.com/chrissnell/wxgapfill/internal/weather"
)

// RunRequest is the body of POST /api/v1/runs.
type RunRequest struct {
	Station           string `json:"station,omitempty"`
	All               bool   `json:"all,omitempty"`
	FullErrorAnalysis bool   `json:"full_error_analysis,omitempty"`
}

// JobState is the lifecycle state of a submitted run.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobStopped   JobState = "stopped"
	JobFailed    JobState = "failed"
)

// Finished reports whether the job will not change state again.
func (s JobState) Finished() bool {
	return s == JobCompleted || s == JobStopped || s == JobFailed
}

// SubmitResponse is returned when a run is accepted.
type SubmitResponse struct {
	ID string `json:"id"`
}

// MessageView is one info or warning notification of a run.
type MessageView struct {
	Kind    string    `json:"kind"`
	Station string    `json:"station"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ResultSummary condenses one station result of a job.
type ResultSummary struct {
	Station  string `json:"station"`
	Status   string `json:"status"`
	Missing  int    `json:"missing"`
	Filled   int    `json:"filled"`
	Unfilled int    `json:"unfilled"`
}

// JobView is the JSON form of a job.
type JobView struct {
	ID          string          `json:"id"`
	Request     RunRequest      `json:"request"`
	State       JobState        `json:"state"`
	Progress    float64         `json:"progress"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Messages    []MessageView   `json:"messages,omitempty"`
	Results     []ResultSummary `json:"results,omitempty"`
}

// VariableSummaryView mirrors gapfill.VariableSummary with nullable averages.
type VariableSummaryView struct {
	Variable     string         `json:"variable"`
	Skipped      bool           `json:"skipped"`
	Rows         int            `json:"rows"`
	Missing      int            `json:"missing"`
	Filled       int            `json:"filled"`
	Unfilled     int            `json:"unfilled"`
	FilledPct    *float64       `json:"filled_pct"`
	AvgNeighbors *float64       `json:"avg_neighbors"`
	AvgRMSE      *float64       `json:"avg_rmse"`
	Usage        map[string]int `json:"usage,omitempty"`
}

// DetailView mirrors gapfill.DetailRow.
type DetailView struct {
	Variable  string              `json:"variable"`
	Date      string              `json:"date"`
	Neighbors int                 `json:"neighbors"`
	RMSE      *float64            `json:"rmse"`
	Estimate  *float64            `json:"estimate"`
	Filled    bool                `json:"filled"`
	Values    map[string]*float64 `json:"values,omitempty"`
}

// ErrorStatsView mirrors gapfill.ErrorStats.
type ErrorStatsView struct {
	Variable    string   `json:"variable"`
	Count       int      `json:"count"`
	RMSE        *float64 `json:"rmse"`
	MaxAbsError *float64 `json:"max_abs_error"`
	ErrorSum    *float64 `json:"error_sum"`
}

// ReportView is the fill report with nullable statistics.
type ReportView struct {
	Mode       string                `json:"mode,omitempty"`
	Start      string                `json:"start,omitempty"`
	End        string                `json:"end,omitempty"`
	Neighbors  []string              `json:"neighbors,omitempty"`
	Summaries  []VariableSummaryView `json:"summaries,omitempty"`
	Unfillable bool                  `json:"unfillable"`
	Details    []DetailView          `json:"details,omitempty"`
}

// ResultView is the full outcome of one station, as served by the report endpoint.
type ResultView struct {
	Station weather.Station `json:"station"`
	Status  string          `json:"status"`
	ReportView
	Errors    []ErrorStatsView      `json:"errors,omitempty"`
	Variables []string              `json:"variables,omitempty"`
	Dates     []string              `json:"dates,omitempty"`
	Filled    [][]*float64          `json:"filled,omitempty"`
	Predicted [][]*float64          `json:"predicted,omitempty"`
	Derived   map[string][]*float64 `json:"derived,omitempty"`
}

// RunRecordView is a persisted run as served by GET /api/v1/history/{id}.
type RunRecordView struct {
	ID                string      `json:"id"`
	Station           string      `json:"station"`
	Status            string      `json:"status"`
	Mode              string      `json:"mode"`
	FullErrorAnalysis bool        `json:"full_error_analysis"`
	StartedAt         time.Time   `json:"started_at"`
	FinishedAt        time.Time   `json:"finished_at"`
	Missing           int         `json:"missing"`
	Filled            int         `json:"filled"`
	Unfilled          int         `json:"unfilled"`
	Fingerprint       string      `json:"fingerprint"`
	Error             string      `json:"error,omitempty"`
	Report            *ReportView `json:"report,omitempty"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
