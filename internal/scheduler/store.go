package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/domain"
)

// Store — операции хранилища, которые нужны планировщику.
//
// Безопасность при нескольких инстансах обеспечивается только атомарными
// условными UPDATE: Claim, RevertStale, Touch и Update. Внешних блокировок нет.
type Store interface {
	// FindDue возвращает SCHEDULED публикации с scheduled_at <= now,
	// у которых нет отложенного повтора (next_retry_at пустой или уже наступил).
	FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Item, error)

	// FindRetryable возвращает SCHEDULED публикации с next_retry_at <= now
	// и retry_count < max_retries.
	FindRetryable(ctx context.Context, now time.Time, limit int) ([]domain.Item, error)

	// Claim атомарно переводит SCHEDULED → PROCESSING,
	// только если статус всё ещё SCHEDULED и external_id пустой.
	// false — публикацию уже забрал кто-то другой.
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// RevertStale одним UPDATE возвращает в SCHEDULED все PROCESSING,
	// обновлённые раньше olderThan. Возвращает количество.
	RevertStale(ctx context.Context, olderThan, now time.Time) (int64, error)

	// Update сохраняет поля жизненного цикла захваченной публикации:
	// status, external_id, retry_count, last_error, next_retry_at, updated_at.
	// Срабатывает только пока публикация в PROCESSING без external_id,
	// иначе возвращает domain.ErrClaimLost.
	Update(ctx context.Context, item *domain.Item) error

	// Touch продлевает claim: обновляет updated_at публикации в PROCESSING.
	// domain.ErrClaimLost — claim уже вернул reaper.
	Touch(ctx context.Context, id uuid.UUID, now time.Time) error

	// CorrectDelivered переводит SCHEDULED публикацию с external_id в POSTED.
	// false — статус уже исправил кто-то другой.
	CorrectDelivered(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// SaveThreadPost сохраняет external_id доставленного поста треда.
	SaveThreadPost(ctx context.Context, itemID uuid.UUID, position int, externalID string) error

	// Create создаёт публикацию (следующее повторение).
	Create(ctx context.Context, item *domain.Item) error
}
