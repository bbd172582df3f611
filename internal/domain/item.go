package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries — количество повторных попыток по умолчанию.
const DefaultMaxRetries = 3

// ErrClaimLost — публикация больше не в PROCESSING у этого воркера:
// claim вернул reaper, и её мог забрать другой инстанс.
var ErrClaimLost = errors.New("claim lost")

// ItemStatus — статус публикации.
//
// Жизненный цикл:
//
//	DRAFT/QUEUED → SCHEDULED → PROCESSING → POSTED
//	                    ↑            ↓
//	                    └── (retry) ─┤
//	                                 ↘ FAILED
type ItemStatus string

const (
	// ItemStatusDraft — черновик, создаётся UI-слоем.
	ItemStatusDraft ItemStatus = "DRAFT"

	// ItemStatusQueued — в очереди аккаунта, время ещё не назначено.
	ItemStatusQueued ItemStatus = "QUEUED"

	// ItemStatusScheduled — время назначено, ожидает доставки.
	ItemStatusScheduled ItemStatus = "SCHEDULED"

	// ItemStatusProcessing — захвачен воркером, идёт доставка.
	ItemStatusProcessing ItemStatus = "PROCESSING"

	// ItemStatusPosted — успешно опубликован.
	ItemStatusPosted ItemStatus = "POSTED"

	// ItemStatusFailed — окончательная ошибка.
	ItemStatusFailed ItemStatus = "FAILED"
)

// IsTerminal возвращает true для POSTED и FAILED.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case ItemStatusPosted, ItemStatusFailed:
		return true
	default:
		return false
	}
}

// ItemKind — тип публикации.
type ItemKind string

const (
	// ItemKindPost — одиночный пост.
	ItemKindPost ItemKind = "post"

	// ItemKindThread — тред из нескольких постов.
	ItemKindThread ItemKind = "thread"
)

// Content — содержимое поста.
type Content struct {
	// Text — текст поста.
	Text string `json:"text"`

	// Media — упорядоченный список ссылок на медиа.
	// Поддерживаются: локальный путь, "s3://bucket/key", "http(s)://...".
	Media []string `json:"media,omitempty"`
}

// HasMedia возвращает true, если к посту приложены медиа.
func (c Content) HasMedia() bool {
	return len(c.Media) > 0
}

// ThreadPost — отдельный пост внутри треда.
type ThreadPost struct {
	// Position — порядковый номер в треде (с 0).
	Position int `json:"position"`

	// Content — содержимое поста.
	Content Content `json:"content"`

	// ExternalID — ID, полученный от API публикации.
	// Заполняется сразу после доставки поста, даже если тред потом упадёт.
	ExternalID string `json:"external_id,omitempty"`
}

// IsDelivered возвращает true, если пост уже доставлен.
func (p *ThreadPost) IsDelivered() bool {
	return p.ExternalID != ""
}

// Item — запланированная публикация (пост или контейнер треда).
//
// Для треда статус, claim и retry общие для всех постов,
// а содержимое лежит в Posts.
type Item struct {
	// ID — уникальный идентификатор.
	ID uuid.UUID `json:"id"`

	// AccountID — аккаунт, от имени которого публикуем.
	AccountID uuid.UUID `json:"account_id"`

	// OwnerID — владелец аккаунта (получатель уведомлений).
	OwnerID uuid.UUID `json:"owner_id"`

	// Kind — post или thread.
	Kind ItemKind `json:"kind"`

	// Content — содержимое одиночного поста.
	Content Content `json:"content"`

	// Posts — посты треда (только для ItemKindThread).
	Posts []ThreadPost `json:"posts,omitempty"`

	// ScheduledAt — время публикации.
	ScheduledAt time.Time `json:"scheduled_at"`

	// Status — текущий статус.
	Status ItemStatus `json:"status"`

	// ExternalID — ID во внешнем API. Устанавливается только при успехе.
	// Для треда — ID первого поста.
	ExternalID string `json:"external_id,omitempty"`

	// RetryCount — количество уже сделанных повторов.
	RetryCount int `json:"retry_count"`

	// MaxRetries — максимум повторов (default: 3).
	MaxRetries int `json:"max_retries"`

	// LastError — текст последней ошибки.
	LastError string `json:"last_error,omitempty"`

	// NextRetryAt — время следующей попытки после ошибки.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	// Recurrence — правило повторения (опционально).
	Recurrence *Recurrence `json:"recurrence,omitempty"`

	// QueuePosition — позиция в очереди аккаунта (только для QUEUED).
	QueuePosition *int `json:"queue_position,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsThread возвращает true для треда.
func (i *Item) IsThread() bool {
	return i.Kind == ItemKindThread
}

// IsDelivered возвращает true, если у публикации уже есть внешний ID.
func (i *Item) IsDelivered() bool {
	return i.ExternalID != ""
}

// CanRetry проверяет, остались ли повторные попытки.
func (i *Item) CanRetry() bool {
	return i.RetryCount < i.MaxRetries
}

// IsDue проверяет, пора ли доставлять публикацию.
func (i *Item) IsDue(now time.Time) bool {
	if i.Status != ItemStatusScheduled {
		return false
	}
	if i.NextRetryAt != nil {
		return !i.NextRetryAt.After(now)
	}
	return !i.ScheduledAt.After(now)
}

// MarkPosted переводит публикацию в POSTED.
func (i *Item) MarkPosted(externalID string, now time.Time) {
	i.Status = ItemStatusPosted
	i.ExternalID = externalID
	i.LastError = ""
	i.NextRetryAt = nil
	i.UpdatedAt = now
}

// ScheduleRetry возвращает публикацию в SCHEDULED с отложенной попыткой.
// delay вычисляется по RetryCount до инкремента.
func (i *Item) ScheduleRetry(errMsg string, delay time.Duration, now time.Time) {
	next := now.Add(delay)
	i.RetryCount++
	i.Status = ItemStatusScheduled
	i.LastError = errMsg
	i.NextRetryAt = &next
	i.UpdatedAt = now
}

// MarkFailed переводит публикацию в FAILED.
func (i *Item) MarkFailed(errMsg string, now time.Time) {
	i.Status = ItemStatusFailed
	i.LastError = errMsg
	i.NextRetryAt = nil
	i.UpdatedAt = now
}

// NextOccurrence создаёт следующую публикацию по правилу повторения.
// Возвращает nil, если правила нет или следующая дата позже EndDate.
func (i *Item) NextOccurrence(newID uuid.UUID, now time.Time) *Item {
	if i.Recurrence == nil {
		return nil
	}

	next, ok := i.Recurrence.Next(i.ScheduledAt)
	if !ok {
		return nil
	}

	posts := make([]ThreadPost, len(i.Posts))
	for idx, p := range i.Posts {
		posts[idx] = ThreadPost{
			Position: p.Position,
			Content:  p.Content.clone(),
		}
	}

	rec := *i.Recurrence
	return &Item{
		ID:          newID,
		AccountID:   i.AccountID,
		OwnerID:     i.OwnerID,
		Kind:        i.Kind,
		Content:     i.Content.clone(),
		Posts:       posts,
		ScheduledAt: next,
		Status:      ItemStatusScheduled,
		MaxRetries:  i.MaxRetries,
		Recurrence:  &rec,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (c Content) clone() Content {
	out := Content{Text: c.Text}
	if len(c.Media) > 0 {
		out.Media = append([]string(nil), c.Media...)
	}
	return out
}
