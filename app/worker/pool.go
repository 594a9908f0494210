package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("brokereye/worker")

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64
)

// Option configures a Pool
type Option func(*Pool)

// WithWorkers sets the number of worker goroutines
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the request buffer size
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.queueSize = n
		}
	}
}

// WithLogger sets the pool logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRegisterer registers the pool metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pool) { p.registerer = reg }
}

// WithHandler overrides the handler for one task type
func WithHandler(t TaskType, h Handler) Option {
	return func(p *Pool) { p.handlers[t] = h }
}

type poolMetrics struct {
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func newPoolMetrics(reg prometheus.Registerer) *poolMetrics {
	f := promauto.With(reg)
	return &poolMetrics{
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brokereye_worker_tasks_total",
			Help: "Background tasks executed by type and result.",
		}, []string{"task_type", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brokereye_worker_task_duration_seconds",
			Help:    "Background task execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_type"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "brokereye_worker_inflight",
			Help: "Background tasks currently executing.",
		}),
	}
}

// Pool runs requests on a fixed set of goroutines. Responses come out of
// Responses in completion order, not submission order.
type Pool struct {
	workers    int
	queueSize  int
	handlers   map[TaskType]Handler
	logger     *slog.Logger
	registerer prometheus.Registerer
	metrics    *poolMetrics
	now        func() time.Time

	requests  chan Request
	responses chan Response
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	g         *errgroup.Group
}

// NewPool creates a pool. Call Start before submitting.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		handlers:  DefaultHandlers(),
		logger:    slog.Default(),
		now:       time.Now,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics = newPoolMetrics(p.registerer)
	p.requests = make(chan Request, p.queueSize)
	p.responses = make(chan Response, p.queueSize)
	return p
}

// Start launches the workers. They stop when ctx ends or Close is called.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		g, gctx := errgroup.WithContext(ctx)
		p.g = g
		for range p.workers {
			g.Go(func() error { return p.loop(gctx) })
		}
		p.logger.Debug("worker pool started", "workers", p.workers, "queue", p.queueSize)
	})
}

// Submit queues a request. It blocks while the queue is full.
func (p *Pool) Submit(ctx context.Context, req Request) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.requests <- req:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Responses delivers every completed response. It is closed by Close.
func (p *Pool) Responses() <-chan Response {
	return p.responses
}

// Close stops the workers and closes Responses. Queued requests that were
// not picked up get no response.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.g != nil {
			err = p.g.Wait()
		}
		close(p.responses)
		p.logger.Debug("worker pool stopped")
	})
	return err
}

func (p *Pool) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			return nil
		case req := <-p.requests:
			resp := p.execute(ctx, req)
			select {
			case p.responses <- resp:
			case <-p.done:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// execute runs one request. A panicking handler becomes an Error response.
func (p *Pool) execute(ctx context.Context, req Request) (resp Response) {
	ctx, span := tracer.Start(ctx, "worker."+string(req.Type))
	span.SetAttributes(
		attribute.String("worker.task_type", string(req.Type)),
		attribute.String("worker.request_id", req.RequestID),
	)
	defer span.End()

	start := p.now()
	p.metrics.inflight.Inc()
	defer func() {
		p.metrics.inflight.Dec()
		p.metrics.duration.WithLabelValues(string(req.Type)).Observe(time.Since(start).Seconds())
		result := "success"
		if resp.Type == ResponseError {
			result = "error"
			span.SetStatus(codes.Error, resp.Error.Message)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		p.metrics.tasks.WithLabelValues(string(req.Type), result).Inc()
	}()

	resp = Response{RequestID: req.RequestID, TaskType: req.Type}
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			p.logger.Error("worker task panicked", "task_type", req.Type, "request_id", req.RequestID, "panic", r)
			resp.Type = ResponseError
			resp.Result = nil
			resp.Error = &TaskError{Message: fmt.Sprintf("panic: %v", r), Stack: stack}
			resp.Timestamp = p.now()
		}
	}()

	h, ok := p.handlers[req.Type]
	if !ok {
		resp.Type = ResponseError
		resp.Error = &TaskError{Message: fmt.Sprintf("unknown task type %q", req.Type)}
		resp.Timestamp = p.now()
		return resp
	}

	result, err := h(ctx, req.Payload)
	resp.Timestamp = p.now()
	if err != nil {
		span.RecordError(err)
		resp.Type = ResponseError
		resp.Error = &TaskError{Message: err.Error()}
		return resp
	}
	resp.Type = ResponseSuccess
	resp.Result = result
	return resp
}
