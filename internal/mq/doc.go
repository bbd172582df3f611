// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchange herald.notifications и очередь notifications.outbox
//   - publisher.go  — публикация сообщений
//
// Herald только публикует события notification.<outcome>.
// Доставка email/push — отдельный сервис, читающий notifications.outbox.
package mq
