// Package orchestrator runs the priority-lane worker pool. Messages enter
// one of two bounded lanes by priority; workers always drain the high lane
// first and retry transient failures with exponential backoff before
// routing a message to the terminal failure path.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/dlq"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/metrics"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/pipeline"
)

// ErrQueueFull is returned when the message's lane has no capacity left.
var ErrQueueFull = errors.New("orchestrator: lane at capacity")

// ErrStopped is returned when a message is submitted after shutdown began.
var ErrStopped = errors.New("orchestrator: stopped")

// Lane labels for metrics and logs.
const (
	laneNormal = "normal"
	laneHigh   = "high"
)

// Processor runs one message end to end and records the safe-default
// decision when retries are exhausted. *pipeline.Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, msg *model.Message) (*model.Verdict, error)
	RecordTerminal(ctx context.Context, msg *model.Message) *model.Verdict
}

// Config tunes lane depths, worker count, and retry behavior.
type Config struct {
	NormalLaneDepth int           `mapstructure:"normal_lane_depth"`
	HighLaneDepth   int           `mapstructure:"high_lane_depth"`
	Workers         int           `mapstructure:"workers"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		NormalLaneDepth: 1024,
		HighLaneDepth:   256,
		Workers:         4,
		MaxAttempts:     3,
		BaseBackoff:     500 * time.Millisecond,
		MaxBackoff:      30 * time.Second,
	}
}

// Orchestrator owns the lanes and the worker pool.
type Orchestrator struct {
	cfg    Config
	proc   Processor
	failed *dlq.Queue
	log    *logging.Logger

	normal chan *model.Message
	high   chan *model.Message

	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds an orchestrator. Zero config fields fall back to defaults.
func New(cfg Config, proc Processor, failed *dlq.Queue, log *logging.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.NormalLaneDepth <= 0 {
		cfg.NormalLaneDepth = def.NormalLaneDepth
	}
	if cfg.HighLaneDepth <= 0 {
		cfg.HighLaneDepth = def.HighLaneDepth
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &Orchestrator{
		cfg:    cfg,
		proc:   proc,
		failed: failed,
		log:    log,
		normal: make(chan *model.Message, cfg.NormalLaneDepth),
		high:   make(chan *model.Message, cfg.HighLaneDepth),
		stop:   make(chan struct{}),
	}
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	o.log.InfoContext(context.Background(), "orchestrator started",
		"workers", o.cfg.Workers,
		"normal_lane_depth", o.cfg.NormalLaneDepth,
		"high_lane_depth", o.cfg.HighLaneDepth)
}

// Stop signals the workers and waits for them to finish their current
// message, up to the context deadline. Messages still buffered in the
// lanes are written to the dead letter queue so none are silently lost.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	o.mu.Unlock()

	close(o.stop)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.drainToDLQ(ctx)
	o.log.InfoContext(ctx, "orchestrator stopped")
	return nil
}

// Submit places a message on its priority lane without blocking. A full
// lane is backpressure: the caller decides whether to shed or retry.
//
// The stopped check and the lane send happen under one lock so a message
// accepted here is always visible to the shutdown drain: Stop flips the
// flag under the same mutex before it empties the lanes.
func (o *Orchestrator) Submit(ctx context.Context, msg *model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lane, name := o.normal, laneNormal
	if msg.Priority == model.PriorityHigh {
		lane, name = o.high, laneHigh
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}

	select {
	case lane <- msg:
		metrics.QueueDepth.WithLabelValues(name).Set(float64(len(lane)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Depths reports the current lane occupancy.
func (o *Orchestrator) Depths() (normal, high int) {
	return len(o.normal), len(o.high)
}

// worker drains the lanes until stopped. The nested select gives the high
// lane strict preference: the outer select only falls through to the
// normal lane when the high lane is empty at that instant.
func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()
	log := o.log.With("worker", id)

	for {
		select {
		case <-o.stop:
			return
		case msg := <-o.high:
			metrics.QueueDepth.WithLabelValues(laneHigh).Set(float64(len(o.high)))
			o.handle(log, msg)
		default:
			select {
			case <-o.stop:
				return
			case msg := <-o.high:
				metrics.QueueDepth.WithLabelValues(laneHigh).Set(float64(len(o.high)))
				o.handle(log, msg)
			case msg := <-o.normal:
				metrics.QueueDepth.WithLabelValues(laneNormal).Set(float64(len(o.normal)))
				o.handle(log, msg)
			}
		}
	}
}

// handle retries a message with exponential backoff until it succeeds or
// the attempt budget is spent.
func (o *Orchestrator) handle(log *logging.Logger, msg *model.Message) {
	ctx := logging.WithMessageID(context.Background(), msg.ID)
	ctx = logging.WithTenantID(ctx, msg.TenantID)

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.TaskRetries.Inc()
			if !o.pause(o.backoff(attempt - 1)) {
				// Shutting down mid-retry: record the failure rather
				// than dropping the message.
				break
			}
		}

		_, err := o.proc.Process(ctx, msg)
		if err == nil {
			return
		}
		lastErr = err
		log.WarnContext(ctx, "message processing failed",
			"message_id", msg.ID,
			"attempt", attempt,
			"max_attempts", o.cfg.MaxAttempts,
			"error", err)
	}

	o.exhaust(ctx, log, msg, lastErr)
}

// exhaust routes a message to the terminal failure path: DLQ entry plus a
// persisted safe-default decision.
func (o *Orchestrator) exhaust(ctx context.Context, log *logging.Logger, msg *model.Message, cause error) {
	metrics.TasksExhausted.Inc()

	stage := "pipeline"
	var stageErr *pipeline.StageError
	if errors.As(cause, &stageErr) {
		stage = stageErr.Stage
	}

	if err := o.failed.Write(ctx, msg, cause, stage, o.cfg.MaxAttempts); err != nil {
		log.ErrorContext(ctx, "dead letter write failed",
			"message_id", msg.ID,
			"error", err)
	}

	verdict := o.proc.RecordTerminal(ctx, msg)
	log.ErrorContext(ctx, "message exhausted retries",
		"message_id", msg.ID,
		"stage", stage,
		"decision", verdict.Decision,
		"error", cause)
}

// backoff returns the delay before retry n (1-based), doubling from the
// base and capped at MaxBackoff.
func (o *Orchestrator) backoff(n int) time.Duration {
	d := o.cfg.BaseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= o.cfg.MaxBackoff {
			return o.cfg.MaxBackoff
		}
	}
	if d > o.cfg.MaxBackoff {
		d = o.cfg.MaxBackoff
	}
	return d
}

// pause sleeps for d, returning false if shutdown interrupts the wait.
func (o *Orchestrator) pause(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-o.stop:
		return false
	}
}

func (o *Orchestrator) drainToDLQ(ctx context.Context) {
	for {
		select {
		case msg := <-o.high:
			o.deadLetter(ctx, msg)
		case msg := <-o.normal:
			o.deadLetter(ctx, msg)
		default:
			return
		}
	}
}

func (o *Orchestrator) deadLetter(ctx context.Context, msg *model.Message) {
	if err := o.failed.Write(ctx, msg, ErrStopped, "shutdown", 0); err != nil {
		o.log.ErrorContext(ctx, "dead letter write failed during shutdown",
			"message_id", msg.ID,
			"error", err)
	}
}
