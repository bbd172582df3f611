// Package scheduler доставляет запланированные публикации.
//
// Scheduler раз в интервал выбирает публикации, время которых наступило,
// забирает каждую атомарным claim (SCHEDULED → PROCESSING) и доставляет
// через delivery.Client. По результату:
//   - успех → POSTED, external_id, уведомление, следующее повторение
//   - транзиентная ошибка → SCHEDULED с next_retry_at = now + backoff
//   - постоянная ошибка или исчерпаны повторы → FAILED
//
// Структура:
//   - scheduler.go — проход (Tick), claim, обработка результата, медиа
//   - thread.go    — доставка треда цепочкой ответов
//   - reaper.go    — возврат зависших claim
//   - backoff.go   — задержка между повторами
//   - runner.go    — периодический запуск (Start/Stop)
//   - store.go     — контракт хранилища
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Store:       itemRepo,
//	    Client:      client,
//	    Credentials: provider,
//	    Media:       loader,     // опционально
//	    Notifier:    dispatcher, // опционально
//	    PaceDelay:   2 * time.Second,
//	    Logger:      logger,
//	})
//
//	runner := scheduler.NewRunner(sched, time.Minute)
//	if err := runner.Start(ctx); err != nil {
//	    return err
//	}
//	defer runner.Stop()
//
// Leader election не нужен: несколько инстансов безопасно работают
// с одной базой, доставку одной публикации гарантирует claim.
package scheduler
