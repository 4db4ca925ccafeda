package restserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/chrissnell/wxgapfill/internal/runstore"
	"github.com/gorilla/mux"
)

const defaultHistoryLimit = 50

func (c *Controller) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := c.formatter.WriteStatus(w, req, status, data, nil); err != nil {
		c.logger.Errorw("failed to write response", "path", req.URL.Path, "error", err)
	}
}

func (c *Controller) fail(w http.ResponseWriter, status int, msg string) {
	if err := c.formatter.WriteError(w, status, msg); err != nil {
		c.logger.Errorw("failed to write error response", "error", err)
	}
}

func (c *Controller) submitRun(w http.ResponseWriter, req *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		c.fail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.All == (body.Station != "") {
		c.fail(w, http.StatusBadRequest, "exactly one of station or all must be set")
		return
	}

	job, err := c.runner.Submit(body)
	if errors.Is(err, ErrQueueFull) {
		c.fail(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		c.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+job.id)
	c.write(w, req, http.StatusAccepted, SubmitResponse{ID: job.id})
}

func (c *Controller) listRuns(w http.ResponseWriter, req *http.Request) {
	c.write(w, req, http.StatusOK, c.runner.List())
}

func (c *Controller) getRun(w http.ResponseWriter, req *http.Request) {
	job, ok := c.runner.Get(mux.Vars(req)["id"])
	if !ok {
		c.fail(w, http.StatusNotFound, ErrJobNotFound.Error())
		return
	}
	c.write(w, req, http.StatusOK, job.View())
}

func (c *Controller) cancelRun(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	switch err := c.runner.Cancel(id); {
	case errors.Is(err, ErrJobNotFound):
		c.fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrJobFinished):
		c.fail(w, http.StatusConflict, err.Error())
	case err != nil:
		c.fail(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

func (c *Controller) getReport(w http.ResponseWriter, req *http.Request) {
	job, ok := c.runner.Get(mux.Vars(req)["id"])
	if !ok {
		c.fail(w, http.StatusNotFound, ErrJobNotFound.Error())
		return
	}

	state, results := job.Results()
	if !state.Finished() {
		c.fail(w, http.StatusConflict, "run has not finished")
		return
	}

	views := make([]ResultView, 0, len(results))
	for _, res := range results {
		views = append(views, transformResult(res))
	}
	c.write(w, req, http.StatusOK, views)
}

func (c *Controller) listStations(w http.ResponseWriter, req *http.Request) {
	stations, err := c.backend.Stations(req.Context())
	if err != nil {
		c.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.write(w, req, http.StatusOK, stations)
}

func (c *Controller) listHistory(w http.ResponseWriter, req *http.Request) {
	limit := defaultHistoryLimit
	if l := req.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			c.fail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := c.backend.History(req.Context(), req.URL.Query().Get("station"), limit)
	if err != nil {
		c.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.write(w, req, http.StatusOK, records)
}

func (c *Controller) getHistoryRun(w http.ResponseWriter, req *http.Request) {
	rec, err := c.backend.Run(req.Context(), mux.Vars(req)["id"])
	switch {
	case errors.Is(err, runstore.ErrNotFound):
		c.fail(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		c.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.write(w, req, http.StatusOK, transformRecord(rec))
}

func (c *Controller) health(w http.ResponseWriter, req *http.Request) {
	if err := c.backend.Health(req.Context()); err != nil {
		c.write(w, req, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	c.write(w, req, http.StatusOK, HealthResponse{Status: "ok"})
}
