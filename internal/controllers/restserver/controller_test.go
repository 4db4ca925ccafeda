package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/runstore"
	"github.com/chrissnell/wxgapfill/internal/weather"
	"github.com/chrissnell/wxgapfill/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	block     bool
	healthErr error

	mu       sync.Mutex
	requests []RunRequest
}

func (f *fakeBackend) Stations(context.Context) ([]weather.Station, error) {
	return []weather.Station{{Name: "Oka", Province: "QC"}, {Name: "Mirabel", Province: "QC"}}, nil
}

func (f *fakeBackend) Fill(ctx context.Context, req RunRequest, n gapfill.Notifier) ([]*gapfill.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	station := weather.Station{Name: req.Station}
	if f.block {
		<-ctx.Done()
		return []*gapfill.Result{{Status: gapfill.StatusStopped, Station: station}}, nil
	}
	if req.Station == "broken" {
		return nil, errors.New("dataset unavailable")
	}

	n.Notify(gapfill.Event{Kind: gapfill.EventProgress, Station: req.Station, Progress: 50})
	n.Notify(gapfill.Event{Kind: gapfill.EventWarning, Station: req.Station, Message: "not enough stations for Total Precip (mm)"})

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return []*gapfill.Result{{
		Status:    gapfill.StatusCompleted,
		Station:   station,
		Variables: []string{"Max Temp (deg C)"},
		Dates:     []time.Time{day, day.AddDate(0, 0, 1)},
		Filled:    [][]float64{{1.5}, {math.NaN()}},
		Report: &gapfill.Report{
			Header: gapfill.Header{Station: station, Mode: "OLS", Start: day, End: day.AddDate(0, 0, 1)},
			Summaries: []gapfill.VariableSummary{{
				Variable: "Max Temp (deg C)", Rows: 2, Missing: 2, Filled: 1, Unfilled: 1,
				AvgNeighbors: 1, AvgRMSE: 0.4,
				Usage: []gapfill.StationUse{{Station: "Mirabel", Count: 1}},
			}},
			Total: gapfill.Total{Rows: 2, Missing: 2, Filled: 1, Unfilled: 1},
			Details: []gapfill.DetailRow{
				{Variable: "Max Temp (deg C)", Date: day, Neighbors: 1, RMSE: 0.4, Estimate: 1.5, Filled: true, Values: map[string]float64{"Mirabel": 1.2}},
				{Variable: "Max Temp (deg C)", Date: day.AddDate(0, 0, 1), RMSE: math.NaN(), Estimate: math.NaN()},
			},
		},
	}}, nil
}

func (f *fakeBackend) History(_ context.Context, station string, limit int) ([]runstore.Record, error) {
	return []runstore.Record{{ID: "r1", Station: station, Status: "completed", Filled: limit}}, nil
}

func (f *fakeBackend) Run(_ context.Context, id string) (*runstore.Record, error) {
	if id != "r1" {
		return nil, runstore.ErrNotFound
	}
	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return &runstore.Record{
		ID:      "r1",
		Station: "Oka",
		Status:  "completed",
		Mode:    "OLS",
		Report: &gapfill.Report{
			Header: gapfill.Header{Mode: "OLS", Start: day, End: day},
			Summaries: []gapfill.VariableSummary{{
				Variable: "Max Temp (deg C)", Rows: 1, Missing: 1, Unfilled: 1,
				AvgNeighbors: math.NaN(), AvgRMSE: math.NaN(),
			}},
			Unfillable: true,
			Details:    []gapfill.DetailRow{{Variable: "Max Temp (deg C)", Date: day, RMSE: math.NaN(), Estimate: math.NaN()}},
		},
	}, nil
}

func (f *fakeBackend) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

func newTestServer(t *testing.T, backend Backend) (*httptest.Server, *Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	ctrl := NewController(ctx, &wg, backend, config.ServerData{}, zap.NewNop().Sugar())
	ctrl.runner.Start(ctx, &wg)
	srv := httptest.NewServer(ctrl.Router())
	t.Cleanup(srv.Close)
	return srv, ctrl
}

func submit(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func waitState(t *testing.T, ctrl *Controller, id string, want JobState) {
	t.Helper()
	assert.Eventually(t, func() bool {
		job, ok := ctrl.runner.Get(id)
		return ok && job.View().State == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitAndReport(t *testing.T) {
	srv, ctrl := newTestServer(t, &fakeBackend{})

	resp := submit(t, srv, `{"station":"Oka"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var sub SubmitResponse
	decode(t, resp, &sub)
	require.NotEmpty(t, sub.ID)

	waitState(t, ctrl, sub.ID, JobCompleted)

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + sub.ID)
	require.NoError(t, err)
	var view JobView
	decode(t, resp, &view)
	assert.Equal(t, 100.0, view.Progress)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "warning", view.Messages[0].Kind)
	require.Len(t, view.Results, 1)
	assert.Equal(t, ResultSummary{Station: "Oka", Status: "completed", Missing: 2, Filled: 1, Unfilled: 1}, view.Results[0])
	assert.NotNil(t, view.FinishedAt)

	resp, err = http.Get(srv.URL + "/api/v1/runs/" + sub.ID + "/report")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw []map[string]any
	decode(t, resp, &raw)
	require.Len(t, raw, 1)
	filled := raw[0]["filled"].([]any)
	assert.Equal(t, []any{1.5}, filled[0])
	assert.Equal(t, []any{nil}, filled[1])
	assert.Equal(t, []any{"2020-01-01", "2020-01-02"}, raw[0]["dates"])
}

func TestSubmitValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{})

	for _, body := range []string{`{}`, `{"station":"Oka","all":true}`, `not json`} {
		resp := submit(t, srv, body)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestFailedRun(t *testing.T) {
	srv, ctrl := newTestServer(t, &fakeBackend{})

	var sub SubmitResponse
	decode(t, submit(t, srv, `{"station":"broken"}`), &sub)
	waitState(t, ctrl, sub.ID, JobFailed)

	job, _ := ctrl.runner.Get(sub.ID)
	assert.Equal(t, "dataset unavailable", job.View().Error)
}

func TestCancelRunningJob(t *testing.T) {
	srv, ctrl := newTestServer(t, &fakeBackend{block: true})

	var sub SubmitResponse
	decode(t, submit(t, srv, `{"all":true}`), &sub)
	waitState(t, ctrl, sub.ID, JobRunning)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/runs/"+sub.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitState(t, ctrl, sub.ID, JobStopped)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelQueuedJob(t *testing.T) {
	backend := &fakeBackend{}
	runner := NewRunner(backend, 2, zap.NewNop().Sugar())

	job, err := runner.Submit(RunRequest{Station: "Oka"})
	require.NoError(t, err)
	require.NoError(t, runner.Cancel(job.id))

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx, &wg)
	assert.Eventually(t, func() bool { return job.View().State == JobStopped }, 2*time.Second, 10*time.Millisecond)
	cancel()
	wg.Wait()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.requests)
}

func TestQueueFull(t *testing.T) {
	runner := NewRunner(&fakeBackend{}, 1, zap.NewNop().Sugar())
	_, err := runner.Submit(RunRequest{Station: "Oka"})
	require.NoError(t, err)
	_, err = runner.Submit(RunRequest{Station: "Oka"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, runner.List(), 1)
}

func TestRunnerForgetsOldFinishedJobs(t *testing.T) {
	runner := NewRunner(&fakeBackend{}, 8, zap.NewNop().Sugar())
	runner.retain = 2

	var ids []string
	for i := 0; i < 4; i++ {
		job, err := runner.Submit(RunRequest{Station: "Oka"})
		require.NoError(t, err)
		ids = append(ids, job.id)
	}

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx, &wg)
	defer func() {
		cancel()
		wg.Wait()
	}()

	assert.Eventually(t, func() bool {
		_, first := runner.Get(ids[0])
		_, second := runner.Get(ids[1])
		last, ok := runner.Get(ids[3])
		return !first && !second && ok && last.View().State == JobCompleted
	}, 2*time.Second, 10*time.Millisecond)

	views := runner.List()
	require.Len(t, views, 2)
	assert.Equal(t, ids[2], views[0].ID)
	assert.Equal(t, ids[3], views[1].ID)
}

func TestUnknownRun(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{})

	for _, path := range []string{"/api/v1/runs/nope", "/api/v1/runs/nope/report"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestStationsHistoryHealth(t *testing.T) {
	backend := &fakeBackend{}
	srv, _ := newTestServer(t, backend)

	resp, err := http.Get(srv.URL + "/api/v1/stations")
	require.NoError(t, err)
	var stations []weather.Station
	decode(t, resp, &stations)
	assert.Len(t, stations, 2)

	resp, err = http.Get(srv.URL + "/api/v1/history?station=Oka&limit=5")
	require.NoError(t, err)
	var records []runstore.Record
	decode(t, resp, &records)
	require.Len(t, records, 1)
	assert.Equal(t, "Oka", records[0].Station)
	assert.Equal(t, 5, records[0].Filled)

	resp, err = http.Get(srv.URL + "/api/v1/history?limit=zero")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	backend.mu.Lock()
	backend.healthErr = errors.New("database unreachable")
	backend.mu.Unlock()
	resp, err = http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	var health HealthResponse
	decode(t, resp, &health)
	assert.Equal(t, "unhealthy", health.Status)
}

func TestHistoryRunReport(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{})

	resp, err := http.Get(srv.URL + "/api/v1/history/r1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec RunRecordView
	decode(t, resp, &rec)

	assert.Equal(t, "Oka", rec.Station)
	require.NotNil(t, rec.Report)
	assert.True(t, rec.Report.Unfillable)
	require.Len(t, rec.Report.Summaries, 1)
	assert.Nil(t, rec.Report.Summaries[0].AvgRMSE)
	require.Len(t, rec.Report.Details, 1)
	assert.Nil(t, rec.Report.Details[0].Estimate)

	resp, err = http.Get(srv.URL + "/api/v1/history/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransformResultNulls(t *testing.T) {
	res, err := (&fakeBackend{}).Fill(context.Background(), RunRequest{Station: "Oka"}, gapfill.NotifierFunc(func(gapfill.Event) {}))
	require.NoError(t, err)

	view := transformResult(res[0])
	require.Len(t, view.Details, 2)
	assert.Nil(t, view.Details[1].Estimate)
	assert.InDelta(t, 1.5, *view.Details[0].Estimate, 1e-9)
	assert.InDelta(t, 1.2, *view.Details[0].Values["Mirabel"], 1e-9)
	require.Len(t, view.Summaries, 1)
	assert.InDelta(t, 50.0, *view.Summaries[0].FilledPct, 1e-9)
	assert.Equal(t, map[string]int{"Mirabel": 1}, view.Summaries[0].Usage)
	assert.Equal(t, "2020-01-01", view.Start)

	_, err = json.Marshal(view)
	assert.NoError(t, err)
}
