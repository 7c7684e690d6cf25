package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder accepts audit entries without reporting failure to the caller.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type Config struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

type worker struct {
	id         int
	workerPool chan chan Entry
	jobChannel chan Entry
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan Entry, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan Entry),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, write func(Entry)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.workerPool <- w.jobChannel

			select {
			case e := <-w.jobChannel:
				write(e)
			case <-ctx.Done():
				w.logger.Debug("audit worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

// Writer queues entries for a pool of workers. When the queue is full or the
// writer is shut down, the entry is written on the caller's goroutine so no
// entry is dropped for lack of capacity.
type Writer struct {
	store        Store
	logger       *slog.Logger
	writeTimeout time.Duration

	jobQueue   chan Entry
	workerPool chan chan Entry
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	dispatchWG sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

func NewWriter(store Store, cfg Config, logger *slog.Logger) *Writer {
	ctx, cancel := context.WithCancel(context.Background())

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	w := &Writer{
		store:        store,
		logger:       logger,
		writeTimeout: timeout,
		jobQueue:     make(chan Entry, queueSize),
		workerPool:   make(chan chan Entry, workers),
		maxWorkers:   workers,
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
	}

	for i := 0; i < w.maxWorkers; i++ {
		newWorker(i, w.workerPool, logger).start(w.ctx, &w.wg, w.write)
	}
	w.dispatchWG.Add(1)
	go w.dispatch()

	logger.Info("audit writer started", "workers", workers, "queue_size", queueSize)
	return w
}

func (w *Writer) dispatch() {
	defer w.dispatchWG.Done()
	for e := range w.jobQueue {
		jobChannel := <-w.workerPool
		jobChannel <- e
	}
}

// Record stamps and enqueues e. It never blocks on a full queue and never
// returns an error; failures are logged.
func (w *Writer) Record(ctx context.Context, e Entry) {
	if err := e.Validate(); err != nil {
		w.logger.Error("audit entry rejected", "action", e.Action, "error", err)
		return
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.LoggedAt.IsZero() {
		e.LoggedAt = w.now()
	}
	e.LoggedAt = e.LoggedAt.UTC()

	w.mu.RLock()
	if !w.closed {
		select {
		case w.jobQueue <- e:
			w.mu.RUnlock()
			return
		default:
		}
	}
	w.mu.RUnlock()

	w.logger.Warn("audit queue unavailable, writing synchronously", "audit_id", e.ID, "action", e.Action)
	w.write(e)
}

func (w *Writer) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	if err := w.store.Append(ctx, e); err != nil {
		w.logger.Error("failed to write audit entry",
			"audit_id", e.ID,
			"action", e.Action,
			"tenant_id", e.TenantID,
			"user_id", e.UserID,
			"error", err)
	}
}

// Shutdown stops accepting queued entries, drains what is queued and stops
// the workers. Entries recorded afterwards are written synchronously.
func (w *Writer) Shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobQueue)
	w.mu.Unlock()

	w.dispatchWG.Wait()
	w.cancel()
	w.wg.Wait()
	w.logger.Info("audit writer shutdown complete")
}
