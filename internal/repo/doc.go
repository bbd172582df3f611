// Package repo — слой хранения на PostgreSQL (pgx).
//
// Структура:
//   - db.go          — пул соединений
//   - migrate.go     — встроенные goose-миграции (migrations/*.sql)
//   - item_repo.go   — публикации и посты тредов; claim и возврат зависших claim
//   - policy_repo.go — политики очереди
//   - token_repo.go  — OAuth2-токены аккаунтов
//
// Конкурентная безопасность держится на условных UPDATE:
// Claim, RevertStale и AssignSlot меняют строку, только если она
// всё ещё в ожидаемом статусе, и сообщают об этом через RowsAffected.
package repo
