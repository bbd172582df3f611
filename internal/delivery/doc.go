// Package delivery — клиент внешнего API публикации.
//
// Структура:
//   - client.go      — интерфейс Client и исходящий Post
//   - errors.go      — таксономия ошибок (Transient / Validation / Auth / NotFound)
//   - http_client.go — HTTPClient поверх REST API публикации
//   - media.go       — MediaLoader: локальные файлы, HTTP, определение MIME по расширению
//   - s3_loader.go   — чтение медиа из S3 ("s3://bucket/key")
//
// Ошибки HTTP-кодов:
//
//	401        → Auth
//	404        → NotFound
//	408, 429   → Transient
//	5xx, сеть  → Transient
//	прочие 4xx → Validation
package delivery
