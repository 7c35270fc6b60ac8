package dispatch

import (
	"container/list"
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
	"github.com/ironsheep/plotting-mcp/internal/logger"
	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/render"
)

// Renderer draws one job at a time. Reset rebuilds its backend after an
// overrun or a failure that may have left it inconsistent.
type Renderer interface {
	Render(ctx context.Context, jobID string, spec *plot.Spec) (*render.Result, error)
	Reset()
}

// dirtier is implemented by renderers that can report a pending reset.
type dirtier interface {
	Dirty() bool
}

// Config bounds the queue.
type Config struct {
	MaxQueueDepth int
	QueueTimeout  time.Duration
	ExecTimeout   time.Duration
}

// Stats is a snapshot of the dispatcher counters.
type Stats struct {
	Workers     int   `json:"workers"`
	Queued      int   `json:"queued"`
	Running     int   `json:"running"`
	Outstanding int   `json:"outstanding"`
	MaxDepth    int   `json:"max_queue_depth"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Rejected    int64 `json:"rejected"`
	TimedOut    int64 `json:"timed_out"`
	Canceled    int64 `json:"canceled"`
	Resets      int64 `json:"resets"`
}

// Dispatcher owns the job queue and the renderer pool.
type Dispatcher struct {
	cfg     Config
	log     *logger.Logger
	workers int

	mu          sync.Mutex
	cond        *sync.Cond
	queue       *list.List
	outstanding int
	running     int
	closed      bool
	stats       Stats

	wg sync.WaitGroup
}

// New starts one goroutine per renderer.
func New(cfg Config, renderers []Renderer, log *logger.Logger) (*Dispatcher, error) {
	switch {
	case len(renderers) == 0:
		return nil, fmt.Errorf("dispatch: at least one renderer is required")
	case cfg.MaxQueueDepth < 1:
		return nil, fmt.Errorf("dispatch: max queue depth must be at least 1, got %d", cfg.MaxQueueDepth)
	case cfg.QueueTimeout <= 0 || cfg.ExecTimeout <= 0:
		return nil, fmt.Errorf("dispatch: queue and exec timeouts must be positive")
	}
	if log == nil {
		log = logger.Nop()
	}

	d := &Dispatcher{
		cfg:     cfg,
		log:     log.WithComponent("dispatch"),
		workers: len(renderers),
		queue:   list.New(),
	}
	d.cond = sync.NewCond(&d.mu)

	for i, r := range renderers {
		d.wg.Add(1)
		go d.run(i, r)
	}
	return d, nil
}

// Submit queues spec and blocks until the job finishes, fails, or ctx ends.
// It returns immediately with an overloaded error when the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, spec *plot.Spec) (*render.Result, error) {
	const op = "dispatch.submit"

	if err := ctx.Err(); err != nil {
		return nil, perrors.Wrap(err, op, "request abandoned before queueing")
	}

	job := newJob(uuid.NewString(), spec)
	log := d.log.FromContext(ctx).WithJobID(job.ID)

	d.mu.Lock()
	if d.closed {
		d.stats.Rejected++
		d.mu.Unlock()
		return nil, perrors.New(perrors.KindOverloaded, op, "server is shutting down")
	}
	if d.outstanding >= d.cfg.MaxQueueDepth {
		d.stats.Rejected++
		n := d.outstanding
		d.mu.Unlock()
		log.Warn("job rejected", "outstanding", n)
		return nil, perrors.Newf(perrors.KindOverloaded, op,
			"%d render jobs already outstanding (limit %d); retry later", n, d.cfg.MaxQueueDepth)
	}
	d.outstanding++
	job.elem = d.queue.PushBack(job)
	job.timer = time.AfterFunc(d.cfg.QueueTimeout, func() { d.expire(job) })
	depth := d.queue.Len()
	d.cond.Signal()
	d.mu.Unlock()

	log.Debug("job queued", "chart_kind", string(spec.Kind()), "queue_depth", depth)

	select {
	case out := <-job.done:
		return out.res, out.err
	case <-ctx.Done():
		d.abandon(job, perrors.Wrap(ctx.Err(), op, "caller went away"))
		out := <-job.done
		return out.res, out.err
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Workers = d.workers
	s.Queued = d.queue.Len()
	s.Running = d.running
	s.Outstanding = d.outstanding
	s.MaxDepth = d.cfg.MaxQueueDepth
	return s
}

// Shutdown stops admitting jobs, fails everything still queued and waits for
// running jobs to finish or ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for e := d.queue.Front(); e != nil; e = d.queue.Front() {
			job := d.queue.Remove(e).(*Job)
			job.elem = nil
			job.timer.Stop()
			d.finish(job, nil, perrors.New(perrors.KindOverloaded, "dispatch.shutdown", "server is shutting down"))
		}
		d.cond.Broadcast()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running renders: %w", ctx.Err())
	}
}

// expire withdraws a job that is still queued when its deadline passes.
func (d *Dispatcher) expire(job *Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if job.state != StateQueued || job.elem == nil {
		return
	}
	d.queue.Remove(job.elem)
	job.elem = nil
	d.stats.TimedOut++
	d.finish(job, nil, perrors.Newf(perrors.KindTimeout, "dispatch.queue",
		"job did not start within %s", d.cfg.QueueTimeout))
	d.log.WithJobID(job.ID).Warn("job expired in queue", "waited_ms", time.Since(job.Submitted).Milliseconds())
}

// abandon answers a job whose caller went away. A queued job leaves the
// queue; a running job keeps its renderer until the render returns.
func (d *Dispatcher) abandon(job *Job, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch job.state {
	case StateQueued:
		if job.elem != nil {
			d.queue.Remove(job.elem)
			job.elem = nil
		}
		job.timer.Stop()
	case StateRunning:
		job.cancel()
	default:
		return
	}
	if d.finish(job, nil, err) {
		d.stats.Canceled++
	}
}

// finish moves job to its terminal state and answers the caller. It reports
// false when the job was already answered. The caller holds d.mu.
func (d *Dispatcher) finish(job *Job, res *render.Result, err error) bool {
	if job.state.Terminal() {
		return false
	}
	job.state = StateSucceeded
	if err != nil {
		job.state = StateFailed
	}
	job.Finished = time.Now()
	d.outstanding--
	job.done <- outcome{res: res, err: err}
	return true
}

// next blocks until a job is queued and marks it running. It returns nil
// once the dispatcher is closed and the queue is empty.
func (d *Dispatcher) next() *Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.queue.Len() == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.queue.Len() == 0 {
		return nil
	}
	job := d.queue.Remove(d.queue.Front()).(*Job)
	job.elem = nil
	job.timer.Stop()
	job.state = StateRunning
	job.Started = time.Now()
	job.ctx, job.cancel = context.WithCancel(logger.ContextWithJobID(context.Background(), job.ID))
	d.running++
	return job
}

func (d *Dispatcher) run(id int, r Renderer) {
	defer d.wg.Done()
	for {
		job := d.next()
		if job == nil {
			return
		}
		d.execute(id, r, job)
	}
}

// execute runs job under the exec watchdog and resets the renderer when the
// job overran, panicked or left it dirty.
func (d *Dispatcher) execute(id int, r Renderer, job *Job) {
	log := &logger.Logger{Logger: d.log.FromContext(job.ctx).With("worker", id)}
	log.Debug("job started", "waited_ms", job.Started.Sub(job.Submitted).Milliseconds())

	watchdog := time.AfterFunc(d.cfg.ExecTimeout, func() {
		job.cancel()
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.finish(job, nil, perrors.Newf(perrors.KindTimeout, "dispatch.exec",
			"render did not finish within %s", d.cfg.ExecTimeout)) {
			d.stats.TimedOut++
		}
	})

	res, panicked, err := d.safeRender(job.ctx, r, job)
	overran := !watchdog.Stop()
	job.cancel()

	d.mu.Lock()
	d.running--
	delivered := d.finish(job, res, err)
	if delivered {
		if err != nil {
			d.stats.Failed++
		} else {
			d.stats.Completed++
		}
	}
	d.mu.Unlock()

	elapsed := time.Since(job.Started)
	switch {
	case !delivered:
		log.Debug("discarding result of an answered job", "duration_ms", elapsed.Milliseconds())
	case err != nil:
		log.WithError(err).Warn("job failed", "kind", string(perrors.KindOf(err)), "duration_ms", elapsed.Milliseconds())
	default:
		log.Debug("job finished", "duration_ms", elapsed.Milliseconds())
	}

	dirty := false
	if dr, ok := r.(dirtier); ok {
		dirty = dr.Dirty()
	}
	if overran || panicked || dirty {
		r.Reset()
		d.mu.Lock()
		d.stats.Resets++
		d.mu.Unlock()
		log.Warn("render worker reset", "overran", overran, "panicked", panicked)
	}
}

// safeRender converts a panic escaping the renderer into a render error.
func (d *Dispatcher) safeRender(ctx context.Context, r Renderer, job *Job) (res *render.Result, panicked bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, panicked = nil, true
			err = perrors.Newf(perrors.KindRender, "dispatch.exec", "renderer failed: %v", p)
			d.log.WithJobID(job.ID).Error("renderer panicked", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
		}
	}()
	res, err = r.Render(ctx, job.ID, job.Spec)
	return res, false, err
}
