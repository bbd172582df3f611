package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

const (
	// ExchangeNotifications — события для владельцев аккаунтов.
	ExchangeNotifications Exchange = "herald.notifications"

	// QueueNotifications — очередь сервиса уведомлений (email/push — внешний сервис).
	QueueNotifications Queue = "notifications.outbox"

	// RoutingKeyNotificationAll — все события notification.*.
	RoutingKeyNotificationAll RoutingKey = "notification.#"
)

// NotificationRoutingKey возвращает routing key для исхода публикации.
func NotificationRoutingKey(outcome string) RoutingKey {
	return RoutingKey("notification." + outcome)
}

// SetupTopology объявляет exchange, очередь и привязку.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeNotifications), // name
			"topic",                       // type
			true,                          // durable
			false,                         // auto-deleted
			false,                         // internal
			false,                         // no-wait
			nil,                           // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeNotifications, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueNotifications), // name
			true,                       // durable
			false,                      // delete when unused
			false,                      // exclusive
			false,                      // no-wait
			nil,                        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueNotifications, err)
		}

		err = ch.QueueBind(
			string(QueueNotifications),
			string(RoutingKeyNotificationAll),
			string(ExchangeNotifications),
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueNotifications, ExchangeNotifications, err)
		}

		return nil
	})
}
