package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Herald/internal/domain"
)

// ItemRepo — репозиторий публикаций и постов тредов.
//
// Реализует scheduler.Store и queue.Store.
type ItemRepo struct {
	pool *pgxpool.Pool
}

// NewItemRepo создаёт новый ItemRepo.
func NewItemRepo(pool *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{pool: pool}
}

const itemColumns = `
	id, account_id, owner_id, kind, content, scheduled_at, status, external_id,
	retry_count, max_retries, last_error, next_retry_at, recurrence, queue_position,
	created_at, updated_at`

// Create создаёт публикацию вместе с постами треда.
func (r *ItemRepo) Create(ctx context.Context, item *domain.Item) error {
	contentJSON, err := json.Marshal(item.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}

	var recurrenceJSON []byte
	if item.Recurrence != nil {
		recurrenceJSON, err = json.Marshal(item.Recurrence)
		if err != nil {
			return fmt.Errorf("marshal recurrence: %w", err)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO scheduled_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		item.ID,
		item.AccountID,
		item.OwnerID,
		item.Kind,
		contentJSON,
		nullTime(item.ScheduledAt),
		item.Status,
		nullString(item.ExternalID),
		item.RetryCount,
		item.MaxRetries,
		nullString(item.LastError),
		item.NextRetryAt,
		recurrenceJSON,
		item.QueuePosition,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	for _, post := range item.Posts {
		postJSON, err := json.Marshal(post.Content)
		if err != nil {
			return fmt.Errorf("marshal thread post %d: %w", post.Position, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO thread_posts (item_id, position, content, external_id)
			VALUES ($1, $2, $3, $4)
		`, item.ID, post.Position, postJSON, nullString(post.ExternalID))
		if err != nil {
			return fmt.Errorf("insert thread post %d: %w", post.Position, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID возвращает публикацию по ID.
func (r *ItemRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM scheduled_items WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	items, err := r.collect(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

// FindDue возвращает SCHEDULED публикации, время которых наступило.
// Публикации с ещё не наступившим next_retry_at не возвращаются.
func (r *ItemRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM scheduled_items
		WHERE status = 'SCHEDULED'
		  AND scheduled_at <= $1
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due items: %w", err)
	}
	return r.collect(ctx, rows)
}

// FindRetryable возвращает SCHEDULED публикации с наступившим повтором.
func (r *ItemRepo) FindRetryable(ctx context.Context, now time.Time, limit int) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM scheduled_items
		WHERE status = 'SCHEDULED'
		  AND next_retry_at IS NOT NULL
		  AND next_retry_at <= $1
		  AND retry_count < max_retries
		ORDER BY next_retry_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find retryable items: %w", err)
	}
	return r.collect(ctx, rows)
}

// Claim атомарно захватывает публикацию: SCHEDULED → PROCESSING.
// Условие в WHERE гарантирует, что из нескольких конкурентов успеет только один.
func (r *ItemRepo) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_items
		SET status = 'PROCESSING', updated_at = $2
		WHERE id = $1
		  AND status = 'SCHEDULED'
		  AND external_id IS NULL
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// RevertStale возвращает зависшие PROCESSING в SCHEDULED одним UPDATE.
func (r *ItemRepo) RevertStale(ctx context.Context, olderThan, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_items
		SET status = 'SCHEDULED', updated_at = $2
		WHERE status = 'PROCESSING'
		  AND updated_at < $1
	`, olderThan, now)
	if err != nil {
		return 0, fmt.Errorf("revert stale items: %w", err)
	}
	return result.RowsAffected(), nil
}

// Update сохраняет поля жизненного цикла захваченной публикации.
// Если claim уже вернул reaper (или публикацию доставил другой инстанс),
// ни одна строка не обновится — domain.ErrClaimLost.
func (r *ItemRepo) Update(ctx context.Context, item *domain.Item) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_items
		SET status = $2, external_id = $3, retry_count = $4, last_error = $5,
		    next_retry_at = $6, updated_at = $7
		WHERE id = $1
		  AND status = 'PROCESSING'
		  AND external_id IS NULL
	`,
		item.ID,
		item.Status,
		nullString(item.ExternalID),
		item.RetryCount,
		nullString(item.LastError),
		item.NextRetryAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

// Touch продлевает claim публикации, чтобы reaper не счёл её зависшей.
func (r *ItemRepo) Touch(ctx context.Context, id uuid.UUID, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_items SET updated_at = $2 WHERE id = $1 AND status = 'PROCESSING'
	`, id, now)
	if err != nil {
		return fmt.Errorf("touch item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

// CorrectDelivered переводит в POSTED публикацию, у которой external_id
// уже сохранён, а статус остался SCHEDULED.
func (r *ItemRepo) CorrectDelivered(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_items
		SET status = 'POSTED', last_error = NULL, next_retry_at = NULL, updated_at = $2
		WHERE id = $1
		  AND status = 'SCHEDULED'
		  AND external_id IS NOT NULL
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("correct delivered item: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// SaveThreadPost сохраняет external_id доставленного поста треда.
func (r *ItemRepo) SaveThreadPost(ctx context.Context, itemID uuid.UUID, position int, externalID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE thread_posts SET external_id = $3 WHERE item_id = $1 AND position = $2
	`, itemID, position, externalID)
	if err != nil {
		return fmt.Errorf("save thread post: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Queue ---

// ListQueued возвращает QUEUED публикации аккаунта в порядке очереди.
func (r *ItemRepo) ListQueued(ctx context.Context, accountID uuid.UUID) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM scheduled_items
		WHERE account_id = $1 AND status = 'QUEUED'
		ORDER BY queue_position ASC NULLS LAST, created_at ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list queued items: %w", err)
	}
	return r.collect(ctx, rows)
}

// ListOccupiedTimestamps возвращает время SCHEDULED публикаций аккаунта начиная с from.
func (r *ItemRepo) ListOccupiedTimestamps(ctx context.Context, accountID uuid.UUID, from time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at
		FROM scheduled_items
		WHERE account_id = $1
		  AND status = 'SCHEDULED'
		  AND scheduled_at >= $2
		ORDER BY scheduled_at ASC
	`, accountID, from)
	if err != nil {
		return nil, fmt.Errorf("list occupied timestamps: %w", err)
	}

	occupied, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan occupied timestamps: %w", err)
	}
	return occupied, nil
}

// AssignSlot переводит QUEUED публикацию в SCHEDULED на время scheduledAt.
// false — публикация уже не в очереди.
func (r *ItemRepo) AssignSlot(ctx context.Context, itemID uuid.UUID, scheduledAt, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_items
		SET status = 'SCHEDULED', scheduled_at = $2, queue_position = NULL, updated_at = $3
		WHERE id = $1 AND status = 'QUEUED'
	`, itemID, scheduledAt, now)
	if err != nil {
		return false, fmt.Errorf("assign slot: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListQueuedAccounts возвращает аккаунты с непустой очередью.
func (r *ItemRepo) ListQueuedAccounts(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT account_id FROM scheduled_items WHERE status = 'QUEUED' ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list queued accounts: %w", err)
	}

	accounts, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan queued accounts: %w", err)
	}
	return accounts, nil
}

// --- Helpers ---

// collect сканирует публикации и подгружает посты тредов.
func (r *ItemRepo) collect(ctx context.Context, rows pgx.Rows) ([]domain.Item, error) {
	defer rows.Close()

	var items []domain.Item
	var threadIDs []string
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		if item.IsThread() {
			threadIDs = append(threadIDs, item.ID.String())
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	if len(threadIDs) == 0 {
		return items, nil
	}

	posts, err := r.loadThreadPosts(ctx, threadIDs)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Posts = posts[items[i].ID]
	}

	return items, nil
}

// loadThreadPosts возвращает посты тредов, сгруппированные по item_id.
func (r *ItemRepo) loadThreadPosts(ctx context.Context, itemIDs []string) (map[uuid.UUID][]domain.ThreadPost, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item_id, position, content, external_id
		FROM thread_posts
		WHERE item_id = ANY($1::uuid[])
		ORDER BY item_id, position ASC
	`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("load thread posts: %w", err)
	}
	defer rows.Close()

	posts := make(map[uuid.UUID][]domain.ThreadPost, len(itemIDs))
	for rows.Next() {
		var itemID uuid.UUID
		var post domain.ThreadPost
		var contentJSON []byte
		var externalID *string

		if err := rows.Scan(&itemID, &post.Position, &contentJSON, &externalID); err != nil {
			return nil, fmt.Errorf("scan thread post: %w", err)
		}
		if err := json.Unmarshal(contentJSON, &post.Content); err != nil {
			return nil, fmt.Errorf("unmarshal thread post content: %w", err)
		}
		if externalID != nil {
			post.ExternalID = *externalID
		}
		posts[itemID] = append(posts[itemID], post)
	}
	return posts, rows.Err()
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var it domain.Item
	var contentJSON, recurrenceJSON []byte
	var scheduledAt *time.Time
	var externalID, lastError *string

	err := row.Scan(
		&it.ID,
		&it.AccountID,
		&it.OwnerID,
		&it.Kind,
		&contentJSON,
		&scheduledAt,
		&it.Status,
		&externalID,
		&it.RetryCount,
		&it.MaxRetries,
		&lastError,
		&it.NextRetryAt,
		&recurrenceJSON,
		&it.QueuePosition,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}

	if err := json.Unmarshal(contentJSON, &it.Content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	if recurrenceJSON != nil {
		var rec domain.Recurrence
		if err := json.Unmarshal(recurrenceJSON, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal recurrence: %w", err)
		}
		it.Recurrence = &rec
	}
	if scheduledAt != nil {
		it.ScheduledAt = *scheduledAt
	}
	if externalID != nil {
		it.ExternalID = *externalID
	}
	if lastError != nil {
		it.LastError = *lastError
	}

	return &it, nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime возвращает nil для нулевого времени.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
