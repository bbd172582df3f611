package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Herald/internal/domain"
)

// PolicyRepo — репозиторий политик очереди.
type PolicyRepo struct {
	pool *pgxpool.Pool
}

// NewPolicyRepo создаёт новый PolicyRepo.
func NewPolicyRepo(pool *pgxpool.Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

// GetQueuePolicy возвращает политику аккаунта.
//
// Порядок: политика аккаунта → политика по умолчанию (account_id IS NULL) →
// domain.DefaultQueuePolicy().
func (r *PolicyRepo) GetQueuePolicy(ctx context.Context, accountID uuid.UUID) (*domain.QueuePolicy, error) {
	var p domain.QueuePolicy

	err := r.pool.QueryRow(ctx, `
		SELECT account_id, enabled, times, timezone, min_interval_minutes, max_posts_per_day, skip_weekends
		FROM queue_policies
		WHERE account_id = $1 OR account_id IS NULL
		ORDER BY account_id NULLS LAST
		LIMIT 1
	`, accountID).Scan(
		&p.AccountID,
		&p.Enabled,
		&p.Times,
		&p.Timezone,
		&p.MinIntervalMinutes,
		&p.MaxPostsPerDay,
		&p.SkipWeekends,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultQueuePolicy(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue policy: %w", err)
	}

	return &p, nil
}

// Upsert создаёт или обновляет политику. AccountID == nil — политика по умолчанию.
func (r *PolicyRepo) Upsert(ctx context.Context, p *domain.QueuePolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validate policy: %w", err)
	}

	now := time.Now()

	// ON CONFLICT не срабатывает для NULL в UNIQUE, поэтому политику по умолчанию
	// обновляем отдельным запросом.
	if p.AccountID == nil {
		result, err := r.pool.Exec(ctx, `
			UPDATE queue_policies
			SET enabled = $1, times = $2, timezone = $3, min_interval_minutes = $4,
			    max_posts_per_day = $5, skip_weekends = $6, updated_at = $7
			WHERE account_id IS NULL
		`, p.Enabled, p.Times, p.Timezone, p.MinIntervalMinutes, p.MaxPostsPerDay, p.SkipWeekends, now)
		if err != nil {
			return fmt.Errorf("update default policy: %w", err)
		}
		if result.RowsAffected() > 0 {
			return nil
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO queue_policies (account_id, enabled, times, timezone, min_interval_minutes,
		                            max_posts_per_day, skip_weekends, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (account_id) DO UPDATE
		SET enabled = EXCLUDED.enabled, times = EXCLUDED.times, timezone = EXCLUDED.timezone,
		    min_interval_minutes = EXCLUDED.min_interval_minutes,
		    max_posts_per_day = EXCLUDED.max_posts_per_day,
		    skip_weekends = EXCLUDED.skip_weekends, updated_at = EXCLUDED.updated_at
	`, p.AccountID, p.Enabled, p.Times, p.Timezone, p.MinIntervalMinutes, p.MaxPostsPerDay, p.SkipWeekends, now)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}
