package ingestion

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"treasury-ledger/internal/observability"
)

// AllWallets is the task key of a full sweep.
const AllWallets = "*"

// Dispatcher defaults.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 16
)

// RunFunc executes one task. key is AllWallets or a wallet id.
type RunFunc func(ctx context.Context, key string)

// Dispatcher runs ingestion tasks on a bounded worker pool. A key that is
// already queued or running is not queued again, so overlapping triggers for
// the same wallet (or the same full sweep) coalesce into one run.
type Dispatcher struct {
	run     RunFunc
	queue   chan string
	workers int
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
	started bool
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Run       RunFunc
	Workers   int // DefaultWorkers when zero
	QueueSize int // DefaultQueueSize when zero
	Logger    zerolog.Logger
}

// NewDispatcher creates a Dispatcher. Call Start before Submit is drained.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Dispatcher{
		run:     opts.Run,
		queue:   make(chan string, opts.QueueSize),
		workers: opts.Workers,
		logger:  opts.Logger.With().Str("component", "dispatcher").Logger(),
		pending: make(map[string]struct{}),
	}
}

// CoordinatorRunFunc adapts a Coordinator to a RunFunc.
func CoordinatorRunFunc(c *Coordinator, logger zerolog.Logger) RunFunc {
	return func(ctx context.Context, key string) {
		var err error
		if key == AllWallets {
			_, err = c.RunAll(ctx)
		} else {
			_, err = c.RunWallet(ctx, key)
		}
		if err != nil {
			logger.Error().Err(err).Str("task", key).Msg("ingestion task failed")
		}
	}
}

// Start launches the workers. They exit when ctx is done; Wait blocks until then.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Submit queues key and returns immediately. It returns false when the key is
// already queued or running, or when the queue is full.
func (d *Dispatcher) Submit(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.pending[key]; busy {
		observability.RecordSuppressed("coalesced")
		d.logger.Debug().Str("task", key).Msg("task already pending, coalesced")
		return false
	}

	select {
	case d.queue <- key:
		d.pending[key] = struct{}{}
		observability.UpdateQueueDepth(len(d.queue))
		return true
	default:
		observability.RecordSuppressed("queue_full")
		d.logger.Warn().Str("task", key).Msg("ingestion queue full, task dropped")
		return false
	}
}

// Pending reports whether key is queued or running.
func (d *Dispatcher) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-d.queue:
			observability.UpdateQueueDepth(len(d.queue))
			d.execute(ctx, key)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, key string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("task", key).Msg("ingestion task panicked")
		}
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
	}()
	d.run(ctx, key)
}
