package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/ports"
	"github.com/99minutos/identity-service/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	handlerTimeout = 10 * time.Second
)

var errNoHandler = errors.New("no handler registered")

// Handler runs one task.
type Handler func(ctx context.Context, task ports.Task) error

// Dispatcher routes tasks to a fixed set of workers using consistent hashing
// on the task key, so tasks for the same user run in submission order.
type Dispatcher struct {
	workers  []chan ports.Task
	wg       sync.WaitGroup
	mu       sync.RWMutex
	handlers map[string]Handler
	log      zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan ports.Task, numWorkers),
		handlers: make(map[string]Handler),
		log:      log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.Task, channelBuffer)
	}
	return d
}

// Handle registers fn for tasks named name, replacing any previous handler.
func (d *Dispatcher) Handle(name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = fn
}

// Start launches all worker goroutines. When ctx is cancelled each worker
// runs the tasks still buffered and exits; Wait blocks until they are done.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait returns once every worker started by Start has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue hands a task to the worker responsible for its key. It never
// blocks: when that worker's buffer is full the task is dropped and Enqueue
// returns false.
func (d *Dispatcher) Enqueue(task ports.Task) bool {
	idx := d.shardIndex(task.Key)
	select {
	case d.workers[idx] <- task:
		metrics.TasksEnqueuedTotal.WithLabelValues(task.Name).Inc()
		metrics.TaskQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return true
	default:
		metrics.TasksDroppedTotal.WithLabelValues(task.Name).Inc()
		d.log.Error().
			Str("task", task.Name).
			Str("task_id", task.ID).
			Int("worker_id", idx).
			Msg("task queue full, dropping task")
		return false
	}
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.Task) {
	defer d.wg.Done()
	worker := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			d.drain(id, ch)
			return
		case task, ok := <-ch:
			if !ok {
				return
			}
			metrics.TaskQueueDepth.WithLabelValues(worker).Set(float64(len(ch)))
			d.process(ctx, id, task)
		}
	}
}

// drain runs the tasks left in ch after shutdown began. Each gets its own
// handler timeout, detached from the cancelled worker context.
func (d *Dispatcher) drain(id int, ch <-chan ports.Task) {
	for {
		select {
		case task, ok := <-ch:
			if !ok {
				return
			}
			d.process(context.Background(), id, task)
		default:
			metrics.TaskQueueDepth.WithLabelValues(strconv.Itoa(id)).Set(0)
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, id int, task ports.Task) {
	if err := d.run(ctx, task); err != nil {
		metrics.TasksFailedTotal.WithLabelValues(task.Name).Inc()
		d.log.Error().Err(err).
			Str("task", task.Name).
			Str("task_id", task.ID).
			Str("key", task.Key).
			Int("worker_id", id).
			Msg("task failed")
	}
}

func (d *Dispatcher) run(ctx context.Context, task ports.Task) error {
	d.mu.RLock()
	fn, ok := d.handlers[task.Name]
	d.mu.RUnlock()
	if !ok {
		return errNoHandler
	}

	start := time.Now()
	defer func() {
		metrics.TaskDuration.WithLabelValues(task.Name).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	return fn(ctx, task)
}
