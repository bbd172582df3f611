// Package queue распределяет очередь публикаций аккаунта по слотам времени.
//
// Слоты генерируются из политики аккаунта (domain.QueuePolicy):
// время публикаций в течение дня, часовой пояс, минимальный интервал,
// лимит в день и пропуск выходных. Очередь назначается на слоты в порядке FIFO,
// публикации без слота остаются QUEUED (overflow).
//
// Структура:
//   - slots.go   — чистые функции GenerateSlots и Allocate
//   - service.go — Service: чтение политики и очереди, запись назначений
//   - locker.go  — блокировка аккаунта (Redis или в памяти)
//   - runner.go  — запуск по cron-расписанию
//
// В отличие от scheduler, назначения пишутся без атомарного claim,
// поэтому распределение одного аккаунта сериализуется через Locker.
package queue
