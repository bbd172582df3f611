package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultInterval = 60 * time.Second

// Runner периодически запускает проходы Scheduler.
//
// Первый проход (с Reaper) выполняется сразу при старте,
// чтобы подхватить публикации, пропущенные пока инстанс был выключен.
type Runner struct {
	sched    *Scheduler
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewRunner создаёт Runner. interval <= 0 — 60s.
func NewRunner(sched *Scheduler, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Runner{
		sched:    sched,
		interval: interval,
		logger:   sched.logger,
	}
}

// Start запускает цикл в отдельной горутине.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel
	r.running = true

	r.logger.Info("starting scheduler",
		"interval", r.interval,
		"batch_size", r.sched.batchSize,
		"pace_delay", r.sched.paceDelay,
	)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)
	}()

	return nil
}

// Stop останавливает цикл и ждёт завершения текущего прохода.
// Начатая доставка публикации доводится до конца.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancelFunc
	r.mu.Unlock()

	r.logger.Info("stopping scheduler...")

	cancel()
	r.wg.Wait()

	r.logger.Info("scheduler stopped")
}

// IsRunning проверяет, запущен ли Runner.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sched.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sched.Tick(ctx)
		}
	}
}

// Run возвращает функцию для errgroup: запускает Runner и останавливает
// его после отмены ctx.
func (r *Runner) Run(ctx context.Context) func() error {
	return func() error {
		if err := r.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		r.Stop()
		return nil
	}
}
