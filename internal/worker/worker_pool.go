package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull   = errors.New("worker pool task queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

type Task = func()

type WorkerPool struct {
	tasks         chan Task
	wg            sync.WaitGroup
	activeWorkers int
	maxWorkers    int
	submitTimeout time.Duration
	logger        zerolog.Logger
	mu            sync.RWMutex

	// closeMu guards the tasks channel against sends after close.
	closeMu sync.RWMutex
	started bool
	stopped bool
}

// NewWorkerPool creates a pool of maxWorkers goroutines fed by a queue of
// queueSize pending tasks. Submit waits up to submitTimeout for a free slot.
func NewWorkerPool(maxWorkers, queueSize int, submitTimeout time.Duration, logger zerolog.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		tasks:         make(chan Task, queueSize),
		maxWorkers:    maxWorkers,
		submitTimeout: submitTimeout,
		logger:        logger,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.closeMu.Lock()
	defer wp.closeMu.Unlock()
	if wp.started {
		return nil
	}
	wp.started = true

	wp.logger.Info().Int("max_workers", wp.maxWorkers).Int("queue_size", cap(wp.tasks)).Msg("Starting worker pool")

	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	return nil
}

// Stop rejects new tasks and waits for queued ones to drain. When ctx ends
// first it returns ctx.Err() and leaves the running tasks behind.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.closeMu.Lock()
	if wp.stopped {
		wp.closeMu.Unlock()
		return nil
	}
	wp.stopped = true
	close(wp.tasks)
	wp.closeMu.Unlock()

	wp.logger.Info().Msg("Stopping worker pool")

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info().Msg("Worker pool stopped")
		return nil
	case <-ctx.Done():
		wp.logger.Warn().Int("active_workers", wp.GetActiveWorkers()).Msg("Worker pool stop timed out")
		return ctx.Err()
	}
}

func (wp *WorkerPool) Submit(task Task) error {
	wp.closeMu.RLock()
	defer wp.closeMu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.tasks <- task:
		return nil
	default:
	}

	if wp.submitTimeout <= 0 {
		wp.logger.Warn().Msg("Worker pool task queue is full")
		return ErrQueueFull
	}

	timer := time.NewTimer(wp.submitTimeout)
	defer timer.Stop()

	select {
	case wp.tasks <- task:
		return nil
	case <-timer.C:
		wp.logger.Warn().Dur("waited", wp.submitTimeout).Msg("Worker pool task queue is full")
		return ErrQueueFull
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug().Int("worker_id", id).Msg("Worker started")

	for task := range wp.tasks {
		wp.mu.Lock()
		wp.activeWorkers++
		wp.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Error().
						Int("worker_id", id).
						Interface("panic", r).
						Msg("Worker recovered from panic")
				}

				wp.mu.Lock()
				wp.activeWorkers--
				wp.mu.Unlock()
			}()

			task()
		}()
	}

	wp.logger.Debug().Int("worker_id", id).Msg("Worker stopped")
}

// GetActiveWorkers returns how many workers are running a task right now.
func (wp *WorkerPool) GetActiveWorkers() int {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.activeWorkers
}

func (wp *WorkerPool) GetQueueLength() int {
	return len(wp.tasks)
}

func (wp *WorkerPool) GetStats() map[string]interface{} {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	return map[string]interface{}{
		"active_workers": wp.activeWorkers,
		"max_workers":    wp.maxWorkers,
		"queue_length":   len(wp.tasks),
		"queue_capacity": cap(wp.tasks),
	}
}
