package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/queue"
)

// Item DTOs

// ThreadPostResponse — пост треда.
type ThreadPostResponse struct {
	Position   int    `json:"position"`
	ExternalID string `json:"external_id,omitempty"`
	MediaCount int    `json:"media_count"`
}

// ItemResponse — состояние публикации.
type ItemResponse struct {
	ID          uuid.UUID            `json:"id"`
	AccountID   uuid.UUID            `json:"account_id"`
	Kind        domain.ItemKind      `json:"kind"`
	Status      domain.ItemStatus    `json:"status"`
	ScheduledAt time.Time            `json:"scheduled_at"`
	ExternalID  string               `json:"external_id,omitempty"`
	RetryCount  int                  `json:"retry_count"`
	MaxRetries  int                  `json:"max_retries"`
	NextRetryAt *time.Time           `json:"next_retry_at,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
	Recurrence  *domain.Recurrence   `json:"recurrence,omitempty"`
	Posts       []ThreadPostResponse `json:"posts,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// ItemFromDomain конвертирует domain.Item в ItemResponse.
func ItemFromDomain(item *domain.Item) ItemResponse {
	resp := ItemResponse{
		ID:          item.ID,
		AccountID:   item.AccountID,
		Kind:        item.Kind,
		Status:      item.Status,
		ScheduledAt: item.ScheduledAt,
		ExternalID:  item.ExternalID,
		RetryCount:  item.RetryCount,
		MaxRetries:  item.MaxRetries,
		NextRetryAt: item.NextRetryAt,
		LastError:   item.LastError,
		Recurrence:  item.Recurrence,
		UpdatedAt:   item.UpdatedAt,
	}
	for _, p := range item.Posts {
		resp.Posts = append(resp.Posts, ThreadPostResponse{
			Position:   p.Position,
			ExternalID: p.ExternalID,
			MediaCount: len(p.Content.Media),
		})
	}
	return resp
}

// Policy DTOs

// PolicyRequest — запрос на создание или замену политики очереди.
// Отсутствующие поля берутся из встроенной политики.
type PolicyRequest struct {
	Enabled            *bool    `json:"enabled,omitempty"`
	Times              []string `json:"times,omitempty"`
	Timezone           *string  `json:"timezone,omitempty"`
	MinIntervalMinutes *int     `json:"min_interval_minutes,omitempty"`
	MaxPostsPerDay     *int     `json:"max_posts_per_day,omitempty"`
	SkipWeekends       *bool    `json:"skip_weekends,omitempty"`
}

// ToDomain собирает политику поверх встроенной.
func (r PolicyRequest) ToDomain(accountID *uuid.UUID) *domain.QueuePolicy {
	p := domain.DefaultQueuePolicy()
	p.AccountID = accountID

	if r.Enabled != nil {
		p.Enabled = *r.Enabled
	}
	if r.Times != nil {
		p.Times = r.Times
	}
	if r.Timezone != nil {
		p.Timezone = *r.Timezone
	}
	if r.MinIntervalMinutes != nil {
		p.MinIntervalMinutes = *r.MinIntervalMinutes
	}
	if r.MaxPostsPerDay != nil {
		p.MaxPostsPerDay = *r.MaxPostsPerDay
	}
	if r.SkipWeekends != nil {
		p.SkipWeekends = *r.SkipWeekends
	}
	return p
}

// Queue DTOs

// SlotResponse — слот и назначенная на него публикация (если есть).
type SlotResponse struct {
	At     time.Time  `json:"at"`
	ItemID *uuid.UUID `json:"item_id,omitempty"`
}

// SlotsResponse — предпросмотр распределения.
type SlotsResponse struct {
	Policy   *domain.QueuePolicy `json:"policy"`
	Slots    []SlotResponse      `json:"slots"`
	Overflow int                 `json:"overflow"`
}

// SlotsFromPreview конвертирует queue.Preview в SlotsResponse.
func SlotsFromPreview(p *queue.Preview) SlotsResponse {
	resp := SlotsResponse{
		Policy:   p.Policy,
		Slots:    make([]SlotResponse, len(p.Slots)),
		Overflow: p.Plan.Overflow,
	}
	for i, at := range p.Slots {
		resp.Slots[i] = SlotResponse{At: at}
		if i < len(p.Plan.Assignments) {
			id := p.Plan.Assignments[i].ItemID
			resp.Slots[i].ItemID = &id
		}
	}
	return resp
}
