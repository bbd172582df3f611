package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Herald/internal/telemetry"
)

// StaleReverter — операция хранилища, нужная Reaper.
type StaleReverter interface {
	RevertStale(ctx context.Context, olderThan, now time.Time) (int64, error)
}

// Reaper возвращает в SCHEDULED публикации, зависшие в PROCESSING
// дольше staleAfter (инстанс упал во время доставки).
//
// Счётчик повторов не меняется. Повторный вызов ничего не делает,
// пока не появятся новые зависшие claim.
type Reaper struct {
	store      StaleReverter
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewReaper создаёт Reaper.
func NewReaper(store StaleReverter, staleAfter time.Duration, logger *slog.Logger, now func() time.Time) *Reaper {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	return &Reaper{
		store:      store,
		staleAfter: staleAfter,
		logger:     logger,
		now:        now,
	}
}

// Reap выполняет один проход. Возвращает количество возвращённых публикаций.
func (r *Reaper) Reap(ctx context.Context) (int64, error) {
	now := r.now()

	reverted, err := r.store.RevertStale(ctx, now.Add(-r.staleAfter), now)
	if err != nil {
		return 0, fmt.Errorf("revert stale claims: %w", err)
	}

	if reverted > 0 {
		telemetry.StaleReverted.Add(float64(reverted))
		r.logger.Warn("reverted stale claims",
			"count", reverted,
			"stale_after", r.staleAfter,
		)
	}

	return reverted, nil
}
