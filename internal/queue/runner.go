package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule — расписание распределения по умолчанию.
const DefaultSchedule = "@every 5m"

// parser принимает стандартные 5 полей и дескрипторы (@every, @hourly).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule проверяет cron-выражение расписания.
func ValidateSchedule(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Runner запускает AllocateAll по cron-расписанию.
//
// Запуски не накладываются: если предыдущий ещё идёт, очередной пропускается.
type Runner struct {
	svc      *Service
	schedule string
	logger   *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner создаёт Runner. Пустой schedule — DefaultSchedule.
func NewRunner(svc *Service, schedule string) (*Runner, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	return &Runner{
		svc:      svc,
		schedule: schedule,
		logger:   svc.logger,
	}, nil
}

// Start запускает расписание. Первое распределение выполняется сразу.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return fmt.Errorf("queue runner already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	job := cron.FuncJob(func() { r.run(ctx) })
	if _, err := c.AddJob(r.schedule, job); err != nil {
		cancel()
		return fmt.Errorf("add allocation job: %w", err)
	}
	// тот же wrapped job, чтобы первый запуск не пересекался с плановым
	wrapped := c.Entries()[0].WrappedJob

	r.cron = c
	r.cancel = cancel

	r.logger.Info("starting queue allocator", "schedule", r.schedule)

	c.Start()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		wrapped.Run()
	}()

	return nil
}

// Stop останавливает расписание и ждёт текущего распределения.
func (r *Runner) Stop() {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if c == nil {
		return
	}

	r.logger.Info("stopping queue allocator...")
	cancel()
	<-c.Stop().Done()
	r.wg.Wait()
	r.logger.Info("queue allocator stopped")
}

func (r *Runner) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	summary, err := r.svc.AllocateAll(ctx)
	if err != nil {
		r.logger.Error("queue allocation finished with errors", "error", err)
	}

	if summary.Accounts > 0 {
		r.logger.Info("queue allocation completed",
			"accounts", summary.Accounts,
			"assigned", summary.Assigned,
			"overflow", summary.Overflow,
			"locked", summary.Locked,
			"disabled", summary.Disabled,
		)
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
