// Package api содержит операторский HTTP API herald-scheduler.
//
// Структура:
//   - handler.go       — Handler с DI (репозитории, распределитель, logger)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, recovery)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - dto.go           — Data Transfer Objects (request/response)
//   - item_handler.go  — обработчики для /items
//   - queue_handler.go — обработчики политик и очереди аккаунтов
//
// API предназначен для операторов: посмотреть состояние публикации,
// изменить политику очереди, посмотреть слоты и запустить распределение.
// Создание публикаций остаётся за внешним UI-слоем.
package api
