package render

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
	"github.com/ironsheep/plotting-mcp/internal/logger"
	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/refdata"
)

// Result is an encoded figure.
type Result struct {
	JobID       string
	Data        []byte
	ContentType string
	Format      plot.Format
	Width       int
	Height      int
	Elapsed     time.Duration
	Warnings    []string
}

// DatasetSource resolves reference datasets, normally a *refdata.Cache.
type DatasetSource interface {
	Get(ctx context.Context, key refdata.Key) (*refdata.Dataset, error)
}

// Limits bound what a single worker agrees to draw.
type Limits struct {
	MaxRecords int
	MaxPixels  int
}

// Worker turns validated specs into encoded figures. It owns one Backend
// and renders one figure at a time.
type Worker struct {
	id     int
	data   DatasetSource
	limits Limits
	log    *logger.Logger

	mu      sync.Mutex
	backend *Backend

	dirty   atomic.Bool
	renders atomic.Int64
	resets  atomic.Int64
}

// NewWorker creates a worker with a fresh backend.
func NewWorker(id int, data DatasetSource, limits Limits, log *logger.Logger) (*Worker, error) {
	if log == nil {
		log = logger.Nop()
	}
	b, err := NewBackend()
	if err != nil {
		return nil, err
	}
	return &Worker{
		id:      id,
		data:    data,
		limits:  limits,
		log:     &logger.Logger{Logger: log.WithComponent("render").With("worker", id)},
		backend: b,
	}, nil
}

// ID returns the worker's index in the pool.
func (w *Worker) ID() int { return w.id }

// Dirty reports whether the backend may be in an inconsistent state and
// needs a Reset before the next render.
func (w *Worker) Dirty() bool { return w.dirty.Load() }

// Resets returns how many times the backend was rebuilt.
func (w *Worker) Resets() int64 { return w.resets.Load() }

// Reset discards the backend and builds a fresh one. A backend still held
// by a render is left to that render and simply dropped.
func (w *Worker) Reset() {
	fresh, err := NewBackend()
	if err != nil {
		// The font is embedded; this only fails if the binary is broken.
		w.log.WithError(err).Error("rebuilding render backend failed")
		return
	}

	w.mu.Lock()
	old := w.backend
	w.backend = fresh
	w.mu.Unlock()

	if !old.Busy() {
		_ = old.Close()
	}
	w.dirty.Store(false)
	w.resets.Add(1)
	w.log.Info("render backend reset", "resets", w.resets.Load())
}

func (w *Worker) currentBackend() *Backend {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backend
}

// Render draws spec and encodes it in the requested format.
func (w *Worker) Render(ctx context.Context, jobID string, spec *plot.Spec) (*Result, error) {
	start := time.Now()
	ctx = logger.ContextWithJobID(ctx, jobID)
	log := w.log.FromContext(ctx)

	if n := spec.NumRecords(); w.limits.MaxRecords > 0 && n > w.limits.MaxRecords {
		return nil, perrors.Newf(perrors.KindResourceExhausted, "render.capacity",
			"%s records exceed the worker limit of %s", humanize.Comma(int64(n)), humanize.Comma(int64(w.limits.MaxRecords)))
	}
	if px := spec.Pixels(); w.limits.MaxPixels > 0 && px > w.limits.MaxPixels {
		width, height := spec.Size()
		return nil, perrors.Newf(perrors.KindResourceExhausted, "render.capacity",
			"%dx%d output (%s pixels) exceeds the worker limit of %s pixels",
			width, height, humanize.Comma(int64(px)), humanize.Comma(int64(w.limits.MaxPixels)))
	}

	p, err := newPlan(spec)
	if err != nil {
		return nil, err
	}

	datasets := make([]*refdata.Dataset, 0, len(p.datasets))
	for _, key := range p.datasets {
		ds, err := w.data.Get(ctx, key)
		if err != nil {
			return nil, perrors.Wrap(err, "render.datasets", fmt.Sprintf("resolving %s", key.String()))
		}
		datasets = append(datasets, ds)
	}

	res, err := w.draw(ctx, p, spec.Records(), datasets)
	if err != nil {
		log.WithError(err).Warn("render failed", "kind", string(perrors.KindOf(err)))
		return nil, err
	}

	res.JobID = jobID
	res.Elapsed = time.Since(start)
	w.renders.Add(1)
	log.Info("render complete",
		"chart_kind", string(spec.Kind()),
		"format", string(res.Format),
		"records", spec.NumRecords(),
		"bytes", humanize.Bytes(uint64(len(res.Data))),
		"duration_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

// draw holds the backend for the duration of drawing and encoding.
func (w *Worker) draw(ctx context.Context, p *figurePlan, records []plot.Record, datasets []*refdata.Dataset) (res *Result, err error) {
	const op = "render.draw"

	b := w.currentBackend()
	if err := b.Acquire(); err != nil {
		return nil, perrors.WrapKind(err, perrors.KindRender, op, fmt.Sprintf("worker %d", w.id))
	}
	defer b.Release()
	defer func() {
		if r := recover(); r != nil {
			w.dirty.Store(true)
			w.log.Error("render panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res, err = nil, perrors.Newf(perrors.KindRender, op, "renderer failed: %v", r)
		}
	}()

	f := &figure{ctx: ctx, p: p, records: records, datasets: datasets}

	var (
		raster *rasterSurface
		svg    *svgSurface
	)
	if p.format == plot.SVG {
		svg = newSVGSurface(b, p.width, p.height, p.background)
		f.s = svg
	} else {
		raster = newRasterSurface(b, p.width, p.height, p.background)
		f.s = raster
	}

	if err := f.draw(); err != nil {
		return nil, drawError(err)
	}
	if err := f.checkpoint(); err != nil {
		return nil, drawError(err)
	}

	var data []byte
	switch p.format {
	case plot.SVG:
		data, err = svg.Bytes()
	case plot.PDF:
		data, err = encodePDF(raster.img, p.style.Title)
	default:
		data, err = encodePNG(raster.img)
	}
	if err != nil {
		return nil, perrors.WrapKind(err, perrors.KindRender, "render.encode", fmt.Sprintf("encoding %s", p.format))
	}

	return &Result{
		Data:        data,
		ContentType: p.format.ContentType(),
		Format:      p.format,
		Width:       p.width,
		Height:      p.height,
		Warnings:    f.warnings,
	}, nil
}

// drawError keeps context errors recognizable and files the rest as
// render_error.
func drawError(err error) error {
	switch perrors.KindOf(err) {
	case perrors.KindTimeout, perrors.KindCanceled:
		return perrors.Wrap(err, "render.draw", "render abandoned")
	}
	return perrors.WrapKind(err, perrors.KindRender, "render.draw", "drawing failed")
}
