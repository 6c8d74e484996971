package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"linkcast/internal/cast"
	"linkcast/internal/metrics"
)

// Dispatcher fans queued items out over a fixed pool of workers.
type Dispatcher struct {
	queue   cast.Queue
	runner  *Runner
	workers int
	logger  *zap.Logger
}

// NewDispatcher builds a Dispatcher with the given pool size.
func NewDispatcher(queue cast.Queue, runner *Runner, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{queue: queue, runner: runner, workers: workers, logger: logger}
}

// Run blocks until the context ends and every worker has drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d.work(ctx, n)
		}(i)
	}
	wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context, n int) {
	log := d.logger.With(zap.Int("worker", n))
	log.Info("worker started")
	for {
		item, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping")
				return
			}
			log.Error("dequeue failed", zap.Error(err))
			return
		}
		metrics.Get().QueueDepth.Dec()
		d.runner.Process(ctx, item)
	}
}
