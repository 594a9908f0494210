package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"brokereye/app/aggregate"
	"brokereye/app/interfaces"
)

// Client correlates pool responses with the requests that caused them. Any
// number of calls may be in flight; each one waits only for its own id.
type Client struct {
	pool   *Pool
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool

	routerDone chan struct{}
}

// NewClient starts the response router for pool. The pool must be started.
func NewClient(pool *Pool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		pool:       pool,
		logger:     logger,
		pending:    make(map[string]chan Response),
		routerDone: make(chan struct{}),
	}
	go c.route()
	return c
}

func (c *Client) route() {
	defer close(c.routerDone)
	for resp := range c.pool.Responses() {
		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		delete(c.pending, resp.RequestID)
		c.mu.Unlock()
		if !ok {
			// the caller gave up; nobody is waiting
			c.logger.Debug("dropping unclaimed worker response", "request_id", resp.RequestID, "task_type", resp.TaskType)
			continue
		}
		ch <- resp
	}

	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// Do submits req and waits for its response. When ctx ends first the request
// is abandoned: its late response is dropped, not cancelled.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, ErrClosed
	}
	if _, dup := c.pending[req.RequestID]; dup {
		c.mu.Unlock()
		return Response{}, fmt.Errorf("request id %s already in flight", req.RequestID)
	}
	c.pending[req.RequestID] = ch
	c.mu.Unlock()

	if err := c.pool.Submit(ctx, req); err != nil {
		c.forget(req.RequestID)
		return Response{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(req.RequestID)
		return Response{}, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Call is Do that turns an Error response into a *TaskError.
func (c *Client) Call(ctx context.Context, req Request) (any, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Type == ResponseError {
		if resp.Error == nil {
			return nil, &TaskError{Message: "task failed"}
		}
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Stats computes totals on the pool
func (c *Client) Stats(ctx context.Context, records []*interfaces.Record, opts aggregate.Options) (aggregate.Totals, error) {
	res, err := c.Call(ctx, Request{Type: TaskCalculateStats, Payload: StatsPayload{Records: records, Options: opts}})
	if err != nil {
		return aggregate.Totals{}, fmt.Errorf("offloaded stats: %w", err)
	}
	t, ok := res.(aggregate.Totals)
	if !ok {
		return aggregate.Totals{}, fmt.Errorf("offloaded stats: unexpected result %T", res)
	}
	return t, nil
}

// Pipeline runs the full view chain on the pool
func (c *Client) Pipeline(ctx context.Context, p PipelinePayload) (PipelineResult, error) {
	res, err := c.Call(ctx, Request{Type: TaskFullPipeline, Payload: p})
	if err != nil {
		return PipelineResult{}, fmt.Errorf("offloaded pipeline: %w", err)
	}
	out, ok := res.(PipelineResult)
	if !ok {
		return PipelineResult{}, fmt.Errorf("offloaded pipeline: unexpected result %T", res)
	}
	return out, nil
}

// Close shuts the pool down and waits for the router to drain. Pending calls
// return ErrClosed.
func (c *Client) Close() error {
	err := c.pool.Close()
	<-c.routerDone
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
