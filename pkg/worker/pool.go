package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Handler processes one task.
type Handler[T any, R any] func(ctx context.Context, task T) R

// Pool is a generic worker pool: a fixed number of workers drain a bounded
// task queue and publish one result per task.
type Pool[T any, R any] struct {
	workerCount int
	poolName    string // For logging
	handler     Handler[T, R]

	jobChan    chan T
	resultChan chan R
}

// NewPool creates a new generic worker pool
func NewPool[T any, R any](workerCount int, poolName string, bufferSize int, handler Handler[T, R]) *Pool[T, R] {
	if workerCount <= 0 {
		workerCount = 1
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Pool[T, R]{
		workerCount: workerCount,
		poolName:    poolName,
		handler:     handler,
		jobChan:     make(chan T, bufferSize),
		resultChan:  make(chan R, bufferSize),
	}
}

// Start begins the worker pool (call once at startup)
func (p *Pool[T, R]) Start(ctx context.Context) {
	slog.Info("Starting workers", "component", p.poolName, "count", p.workerCount)

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, i, &wg)
	}

	// Wait for all workers to finish when context is done
	go func() {
		wg.Wait()
		close(p.resultChan)
		slog.Info("All workers stopped", "component", p.poolName)
	}()
}

// Submit queues a task without blocking. It returns false when the queue is full.
func (p *Pool[T, R]) Submit(task T) bool {
	select {
	case p.jobChan <- task:
		return true
	default:
		slog.Warn("Queue full, dropping task", "component", p.poolName)
		return false
	}
}

// Results returns the channel for receiving results
func (p *Pool[T, R]) Results() <-chan R {
	return p.resultChan
}

// worker processes jobs continuously
func (p *Pool[T, R]) worker(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()
	slog.Debug("Worker started", "component", p.poolName, "worker", id)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Worker stopping", "component", p.poolName, "worker", id)
			return

		case task := <-p.jobChan:
			result := p.handler(ctx, task)
			select {
			case p.resultChan <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}
