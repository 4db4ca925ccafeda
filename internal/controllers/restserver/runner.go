package restserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/metrics"
	"github.com/chrissnell/wxgapfill/internal/runstore"
	"github.com/chrissnell/wxgapfill/internal/weather"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxJobMessages = 500
	// maxFinishedJobs bounds how many finished jobs, and their filled series,
	// stay in memory. Persisted runs remain readable through the history routes.
	maxFinishedJobs = 32
)

var (
	ErrQueueFull   = errors.New("run queue is full")
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

// Backend performs the fill runs and answers the read-only queries of the API.
type Backend interface {
	Stations(ctx context.Context) ([]weather.Station, error)
	Fill(ctx context.Context, req RunRequest, notifier gapfill.Notifier) ([]*gapfill.Result, error)
	History(ctx context.Context, station string, limit int) ([]runstore.Record, error)
	Run(ctx context.Context, id string) (*runstore.Record, error)
	Health(ctx context.Context) error
}

// Job is one submitted run request.
type Job struct {
	mu sync.Mutex

	id          string
	req         RunRequest
	state       JobState
	progress    float64
	err         string
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
	messages    []MessageView
	results     []*gapfill.Result

	cancel   context.CancelFunc
	canceled bool
}

// Notify records engine events against the job.
func (j *Job) Notify(ev gapfill.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if ev.Kind == gapfill.EventProgress {
		j.progress = ev.Progress
		return
	}
	if len(j.messages) >= maxJobMessages {
		j.messages = j.messages[1:]
	}
	j.messages = append(j.messages, MessageView{
		Kind:    string(ev.Kind),
		Station: ev.Station,
		Message: ev.Message,
		Time:    ev.Time,
	})
}

// View returns a snapshot of the job.
func (j *Job) View() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()

	v := JobView{
		ID:          j.id,
		Request:     j.req,
		State:       j.state,
		Progress:    j.progress,
		Error:       j.err,
		SubmittedAt: j.submittedAt,
		Messages:    append([]MessageView(nil), j.messages...),
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		v.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		v.FinishedAt = &t
	}
	for _, res := range j.results {
		v.Results = append(v.Results, transformSummary(res))
	}
	return v
}

// Results returns the station results of a finished job.
func (j *Job) Results() (JobState, []*gapfill.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state, j.results
}

// Runner executes submitted jobs one at a time, in submission order.
type Runner struct {
	backend Backend
	logger  *zap.SugaredLogger
	now     func() time.Time

	mu     sync.Mutex
	jobs   map[string]*Job
	order  []string
	queue  chan *Job
	retain int
}

// NewRunner creates a runner whose queue holds at most depth pending jobs.
func NewRunner(backend Backend, depth int, logger *zap.SugaredLogger) *Runner {
	if depth <= 0 {
		depth = 16
	}
	return &Runner{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		jobs:    make(map[string]*Job),
		queue:   make(chan *Job, depth),
		retain:  maxFinishedJobs,
	}
}

// Start processes the queue until ctx is done.
func (r *Runner) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-r.queue:
				metrics.QueuedRuns.Dec()
				r.execute(ctx, job)
				r.prune()
			}
		}
	}()
}

// Submit queues a run request.
func (r *Runner) Submit(req RunRequest) (*Job, error) {
	job := &Job{
		id:          uuid.NewString(),
		req:         req,
		state:       JobQueued,
		submittedAt: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case r.queue <- job:
	default:
		return nil, ErrQueueFull
	}
	metrics.QueuedRuns.Inc()
	r.jobs[job.id] = job
	r.order = append(r.order, job.id)
	return job, nil
}

// Get returns the job with the given id.
func (r *Runner) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// List returns a snapshot of every job in submission order.
func (r *Runner) List() []JobView {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.order))
	for _, id := range r.order {
		jobs = append(jobs, r.jobs[id])
	}
	r.mu.Unlock()

	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.View())
	}
	return views
}

// Cancel stops a queued or running job. A running job stops at the engine's next row.
func (r *Runner) Cancel(id string) error {
	job, ok := r.Get(id)
	if !ok {
		return ErrJobNotFound
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.state.Finished() {
		return ErrJobFinished
	}
	job.canceled = true
	if job.cancel != nil {
		job.cancel()
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, job *Job) {
	job.mu.Lock()
	if job.canceled {
		job.state = JobStopped
		job.finishedAt = r.now()
		job.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	job.cancel = cancel
	job.state = JobRunning
	job.startedAt = r.now()
	job.mu.Unlock()

	r.logger.Infow("starting fill job", "id", job.id, "station", job.req.Station, "all", job.req.All)
	results, err := r.backend.Fill(jobCtx, job.req, job)

	job.mu.Lock()
	defer job.mu.Unlock()

	job.cancel = nil
	job.finishedAt = r.now()
	job.results = results

	switch {
	case err != nil:
		job.state = JobFailed
		job.err = err.Error()
		r.logger.Errorw("fill job failed", "id", job.id, "error", err)
	case job.canceled || anyStopped(results):
		job.state = JobStopped
	default:
		job.state = JobCompleted
		job.progress = 100
	}
}

// prune forgets the oldest finished jobs beyond the retention limit. Queued and
// running jobs are never dropped.
func (r *Runner) prune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	finished := 0
	for _, id := range r.order {
		if r.jobs[id].View().State.Finished() {
			finished++
		}
	}
	if finished <= r.retain {
		return
	}

	drop := finished - r.retain
	kept := r.order[:0]
	for _, id := range r.order {
		if drop > 0 && r.jobs[id].View().State.Finished() {
			delete(r.jobs, id)
			drop--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

func anyStopped(results []*gapfill.Result) bool {
	for _, res := range results {
		if res.Status == gapfill.StatusStopped {
			return true
		}
	}
	return false
}
