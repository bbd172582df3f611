// Package notify отправляет владельцам аккаунтов события о публикациях.
//
// Отправка best-effort: ошибки диспетчера логируются
// и никогда не влияют на состояние публикации.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/mq"
)

// Outcome — исход, о котором уведомляем.
type Outcome string

const (
	// OutcomePosted — публикация успешно доставлена.
	OutcomePosted Outcome = "posted"

	// OutcomeRetryScheduled — доставка не удалась, назначен повтор.
	OutcomeRetryScheduled Outcome = "retry_scheduled"

	// OutcomeFailed — публикация окончательно не доставлена.
	OutcomeFailed Outcome = "failed"
)

// Event — уведомление владельцу аккаунта.
type Event struct {
	OwnerID    uuid.UUID `json:"owner_id"`
	AccountID  uuid.UUID `json:"account_id"`
	ItemID     uuid.UUID `json:"item_id"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Dispatcher отправляет событие.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// defaultTimeout — ограничение на одну отправку.
const defaultTimeout = 5 * time.Second

// BestEffort вызывает Dispatcher, проглатывая и логируя ошибки.
type BestEffort struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	timeout    time.Duration
}

// NewBestEffort оборачивает Dispatcher. dispatcher может быть nil.
func NewBestEffort(d Dispatcher, logger *slog.Logger) *BestEffort {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffort{dispatcher: d, logger: logger, timeout: defaultTimeout}
}

// Notify отправляет событие. Никогда не возвращает ошибку.
func (b *BestEffort) Notify(ctx context.Context, ev Event) {
	if b == nil || b.dispatcher == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification dispatcher panicked",
				"item_id", ev.ItemID,
				"outcome", ev.Outcome,
				"panic", r,
			)
		}
	}()

	if err := b.dispatcher.Dispatch(ctx, ev); err != nil {
		b.logger.Warn("failed to dispatch notification",
			"item_id", ev.ItemID,
			"owner_id", ev.OwnerID,
			"outcome", ev.Outcome,
			"error", err,
		)
	}
}

// MQDispatcher публикует события в RabbitMQ.
type MQDispatcher struct {
	publisher *mq.Publisher
}

// NewMQDispatcher создаёт MQDispatcher.
func NewMQDispatcher(p *mq.Publisher) *MQDispatcher {
	return &MQDispatcher{publisher: p}
}

// Dispatch публикует событие с routing key notification.<outcome>.
func (d *MQDispatcher) Dispatch(ctx context.Context, ev Event) error {
	return d.publisher.PublishJSON(ctx,
		mq.ExchangeNotifications,
		mq.NotificationRoutingKey(string(ev.Outcome)),
		mq.MessageTypeNotification,
		ev,
	)
}

// LogDispatcher пишет события в лог. Используется без RabbitMQ.
type LogDispatcher struct {
	Logger *slog.Logger
}

// Dispatch логирует событие.
func (d LogDispatcher) Dispatch(ctx context.Context, ev Event) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"owner_id", ev.OwnerID,
		"account_id", ev.AccountID,
		"item_id", ev.ItemID,
		"outcome", ev.Outcome,
		"detail", ev.Detail,
	)
	return nil
}
