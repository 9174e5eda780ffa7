package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/observability"
)

// Supervisor owns a cancellation context and runs each worker in its own
// goroutine. A panicking worker is restarted after a delay; a worker that
// returns nil is done and never restarted. One worker's failure never
// stops the supervisor itself.
type Supervisor struct {
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	log          *slog.Logger
	monitoring   *observability.MonitoringManager
	restartDelay time.Duration
	workers      []contract.Worker
}

func NewSupervisor(log *slog.Logger, monitoring *observability.MonitoringManager, restartDelay time.Duration) *Supervisor {
	return &Supervisor{log: log, monitoring: monitoring, restartDelay: restartDelay}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every registered worker under a context derived from the
// parent and blocks until all of them have finished.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer s.cancel()

	for _, worker := range s.workers {
		s.start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping worker %s", name))
				return
			}

			err := s.runOnce(ctx, worker)
			if err == nil {
				s.log.Info(fmt.Sprintf("Worker finished: %s", name))
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", name)
				return
			}

			s.monitoring.IncrWorkerRestarts()
			s.log.Warn("Worker crashed, restarting", "name", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartDelay):
			}
		}
	}()
}

// runOnce executes the worker, converting a panic into an error so the
// restart loop can handle both uniformly.
func (s *Supervisor) runOnce(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels every supervised worker. Run returns once they all exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
