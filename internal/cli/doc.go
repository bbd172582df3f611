// Package cli реализует операторскую утилиту Herald.
//
// # Обзор
//
// CLI работает напрямую с базой и теми же сервисами, что и herald-scheduler:
// позволяет выполнить проход планировщика или распределение очереди вручную,
// посмотреть слоты и состояние публикации.
//
// # Ключевые компоненты
//
// ## Services
//
// Зависимости команд (планировщик, распределитель, репозитории).
// Создаются лениво через ServicesFn после разбора флагов.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения — в stderr.
// Это позволяет использовать pipe: herald slots --account ID --json | jq .
//
// ## Commands
//
//   - tick: один проход планировщика
//   - reap: возврат зависших claim
//   - allocate: распределение очереди (--account или --all)
//   - slots: предпросмотр слотов без записи
//   - item: состояние публикации
//   - policy: show, set
//   - migrate: миграции схемы
//
// Каждая команда создаётся фабричной функцией (NewTickCmd и т.д.),
// принимающей servicesFn и outputFn.
package cli
