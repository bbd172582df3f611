package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/credential"
	"github.com/shaiso/Herald/internal/delivery"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/notify"
	"github.com/shaiso/Herald/internal/telemetry"
)

// Default configuration values.
const (
	defaultBatchSize  = 100
	defaultStaleAfter = 2 * time.Minute
)

// Scheduler — claim-and-deliver планировщик публикаций.
//
// Каждый проход:
//   - возвращает зависшие PROCESSING в SCHEDULED (Reaper)
//   - выбирает due публикации и публикации с наступившим повтором
//   - по очереди забирает каждую атомарным claim и доставляет
//   - по результату переводит в POSTED, назначает повтор или FAILED
//
// Несколько инстансов могут работать одновременно: доставка одной
// публикации двумя инстансами исключена условным UPDATE в Store.Claim.
type Scheduler struct {
	store       Store
	client      delivery.Client
	credentials credential.Provider
	media       delivery.MediaLoader
	notifier    *notify.BestEffort
	reaper      *Reaper

	backoff   BackoffPolicy
	batchSize int
	paceDelay time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Store       Store
	Client      delivery.Client
	Credentials credential.Provider

	// Media — загрузчик медиа (опционально; без него медиа пропускаются).
	Media delivery.MediaLoader

	// Notifier — отправка уведомлений владельцам (опционально).
	Notifier notify.Dispatcher

	Backoff    BackoffPolicy // default: DefaultBackoff
	BatchSize  int           // лимит каждой из выборок за проход (default: 100)
	StaleAfter time.Duration // порог зависшего claim (default: 2m)
	PaceDelay  time.Duration // пауза между публикациями; 0 — без паузы

	Logger *slog.Logger
	Now    func() time.Time // часы (default: time.Now)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		store:       cfg.Store,
		client:      cfg.Client,
		credentials: cfg.Credentials,
		media:       cfg.Media,
		notifier:    notify.NewBestEffort(cfg.Notifier, logger),
		reaper:      NewReaper(cfg.Store, staleAfter, logger, now),
		backoff:     cfg.Backoff,
		batchSize:   batchSize,
		paceDelay:   cfg.PaceDelay,
		logger:      logger,
		now:         now,
	}
}

// Reaper возвращает Reaper планировщика.
func (s *Scheduler) Reaper() *Reaper {
	return s.reaper
}

// PassStats — итоги одного прохода.
type PassStats struct {
	Reverted      int64
	Due           int
	Posted        int
	Retried       int
	Failed        int
	AlreadyPosted int
	Skipped       int
	ClaimLost     int
	Errors        int
}

// outcome — результат обработки одной публикации.
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeAlreadyPosted
	outcomePosted
	outcomeRetried
	outcomeFailed
	outcomeClaimLost
	outcomeError
)

func (p *PassStats) add(o outcome) {
	switch o {
	case outcomeSkipped:
		p.Skipped++
	case outcomeAlreadyPosted:
		p.AlreadyPosted++
	case outcomePosted:
		p.Posted++
	case outcomeRetried:
		p.Retried++
	case outcomeFailed:
		p.Failed++
	case outcomeClaimLost:
		p.ClaimLost++
	case outcomeError:
		p.Errors++
	}
}

// Tick выполняет один проход планировщика.
//
// 1. Возвращает зависшие claim (Reaper)
// 2. Собирает due и retryable публикации, без дубликатов
// 3. Обрабатывает их последовательно с паузой PaceDelay
//
// Ошибка одной публикации не блокирует обработку остальных.
// Отмена ctx прерывает проход между публикациями, но не доставку,
// которая уже началась.
func (s *Scheduler) Tick(ctx context.Context) PassStats {
	start := time.Now()
	defer func() {
		telemetry.PassDuration.Observe(time.Since(start).Seconds())
	}()

	var stats PassStats

	reverted, err := s.reaper.Reap(ctx)
	if err != nil {
		s.logger.Error("failed to revert stale claims", "error", err)
	}
	stats.Reverted = reverted

	items := s.collect(ctx, s.now())
	stats.Due = len(items)
	if len(items) == 0 {
		return stats
	}

	s.logger.Debug("found due items", "count", len(items))

	for i := range items {
		if i > 0 && !s.pace(ctx) {
			s.logger.Info("scheduler pass interrupted", "remaining", len(items)-i)
			break
		}
		stats.add(s.safeProcess(ctx, &items[i]))
	}

	s.logger.Info("scheduler pass completed",
		"due", stats.Due,
		"posted", stats.Posted,
		"retried", stats.Retried,
		"failed", stats.Failed,
		"already_posted", stats.AlreadyPosted,
		"skipped", stats.Skipped,
		"claim_lost", stats.ClaimLost,
		"errors", stats.Errors,
	)

	return stats
}

// collect объединяет due и retryable выборки.
// Ошибка одной выборки не отменяет другую.
func (s *Scheduler) collect(ctx context.Context, now time.Time) []domain.Item {
	due, err := s.store.FindDue(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("failed to find due items", "error", err)
	}

	retryable, err := s.store.FindRetryable(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("failed to find retryable items", "error", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(due)+len(retryable))
	items := make([]domain.Item, 0, len(due)+len(retryable))
	for _, batch := range [][]domain.Item{due, retryable} {
		for _, item := range batch {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			items = append(items, item)
		}
	}

	return items
}

// pace выдерживает паузу между публикациями. false — ctx отменён.
func (s *Scheduler) pace(ctx context.Context) bool {
	if s.paceDelay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(s.paceDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// safeProcess изолирует панику одной публикации от остального прохода.
func (s *Scheduler) safeProcess(ctx context.Context, item *domain.Item) (result outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing item",
				"item_id", item.ID,
				"panic", r,
			)
			result = outcomeError
		}
	}()

	return s.process(ctx, item)
}

// process обрабатывает одну публикацию.
func (s *Scheduler) process(ctx context.Context, item *domain.Item) outcome {
	logger := telemetry.WithAccountID(telemetry.WithItemID(s.logger, item.ID.String()), item.AccountID.String())

	// Внешний ID уже есть: публикация доставлена, но статус не записался.
	// Повторная доставка создала бы дубликат.
	if item.IsDelivered() {
		corrected, err := s.store.CorrectDelivered(ctx, item.ID, s.now())
		if err != nil {
			logger.Error("failed to correct delivered item", "error", err)
			return outcomeError
		}
		if !corrected {
			logger.Debug("delivered item already corrected, skipping")
			return outcomeSkipped
		}
		logger.Warn("item already delivered, status corrected", "external_id", item.ExternalID)
		return outcomeAlreadyPosted
	}

	claimed, err := s.store.Claim(ctx, item.ID, s.now())
	if err != nil {
		logger.Error("failed to claim item", "error", err)
		return outcomeError
	}
	if !claimed {
		telemetry.ClaimConflicts.Inc()
		logger.Debug("item claimed by another scheduler, skipping")
		return outcomeSkipped
	}
	item.Status = domain.ItemStatusProcessing

	// Начатая доставка завершается даже при остановке планировщика.
	dctx := telemetry.WithLogger(context.WithoutCancel(ctx), logger)

	var externalID string
	if item.IsThread() {
		externalID, err = s.deliverThread(dctx, item)
	} else {
		externalID, err = s.deliverPost(dctx, item)
	}

	if errors.Is(err, domain.ErrClaimLost) {
		return s.claimLost(dctx, "")
	}
	if err != nil {
		return s.handleFailure(dctx, item, err)
	}
	return s.handleSuccess(dctx, item, externalID)
}

// claimLost пропускает публикацию, чей claim вернул reaper во время доставки.
// Результат не записывается: публикацию уже может доставлять другой инстанс.
func (s *Scheduler) claimLost(ctx context.Context, externalID string) outcome {
	telemetry.ClaimsLost.Inc()
	telemetry.FromContext(ctx).Warn("claim lost during delivery, result dropped",
		"external_id", externalID,
	)
	return outcomeClaimLost
}

// touch продлевает claim по ходу доставки. Потеря claim прерывает доставку,
// прочие ошибки хранилища только логируются.
func (s *Scheduler) touch(ctx context.Context, id uuid.UUID) error {
	err := s.store.Touch(ctx, id, s.now())
	if err == nil || errors.Is(err, domain.ErrClaimLost) {
		return err
	}
	telemetry.FromContext(ctx).Warn("failed to refresh claim", "error", err)
	return nil
}

// handleSuccess фиксирует успешную доставку.
func (s *Scheduler) handleSuccess(ctx context.Context, item *domain.Item, externalID string) outcome {
	logger := telemetry.FromContext(ctx)
	now := s.now()

	item.MarkPosted(externalID, now)
	if err := s.store.Update(ctx, item); err != nil {
		if errors.Is(err, domain.ErrClaimLost) {
			return s.claimLost(ctx, externalID)
		}
		// Публикация доставлена, но осталась в PROCESSING. Reaper вернёт её
		// в SCHEDULED, и она будет доставлена повторно.
		logger.Error("failed to mark item posted", "external_id", externalID, "error", err)
		return outcomeError
	}

	telemetry.ItemsPosted.WithLabelValues(string(item.Kind)).Inc()
	logger.Info("item posted", "external_id", externalID, "retry_count", item.RetryCount)

	s.notifier.Notify(ctx, notify.Event{
		OwnerID:    item.OwnerID,
		AccountID:  item.AccountID,
		ItemID:     item.ID,
		Outcome:    notify.OutcomePosted,
		Detail:     externalID,
		OccurredAt: now,
	})

	s.expandRecurrence(ctx, item)

	return outcomePosted
}

// handleFailure назначает повтор или переводит публикацию в FAILED.
//
// Повторяются только транзиентные ошибки одиночных постов, пока есть попытки.
// Тред при любой ошибке сразу FAILED: часть постов уже может быть опубликована.
func (s *Scheduler) handleFailure(ctx context.Context, item *domain.Item, deliveryErr error) outcome {
	logger := telemetry.FromContext(ctx)
	now := s.now()
	kind := delivery.Classify(deliveryErr)

	if kind == delivery.KindTransient && !item.IsThread() && item.CanRetry() {
		delay := s.backoff.Delay(item.RetryCount)
		item.ScheduleRetry(deliveryErr.Error(), delay, now)
		if err := s.store.Update(ctx, item); err != nil {
			if errors.Is(err, domain.ErrClaimLost) {
				return s.claimLost(ctx, "")
			}
			logger.Error("failed to schedule retry", "error", err)
			return outcomeError
		}

		telemetry.ItemsRetried.WithLabelValues(string(item.Kind)).Inc()
		logger.Warn("delivery failed, retry scheduled",
			"retry_count", item.RetryCount,
			"max_retries", item.MaxRetries,
			"delay", delay,
			"error", deliveryErr,
		)

		s.notifier.Notify(ctx, notify.Event{
			OwnerID:    item.OwnerID,
			AccountID:  item.AccountID,
			ItemID:     item.ID,
			Outcome:    notify.OutcomeRetryScheduled,
			Detail:     fmt.Sprintf("attempt %d of %d failed, next attempt at %s: %v", item.RetryCount, item.MaxRetries, item.NextRetryAt.UTC().Format(time.RFC3339), deliveryErr),
			OccurredAt: now,
		})
		return outcomeRetried
	}

	errMsg := failureMessage(item, kind, deliveryErr)
	item.MarkFailed(errMsg, now)
	if err := s.store.Update(ctx, item); err != nil {
		if errors.Is(err, domain.ErrClaimLost) {
			return s.claimLost(ctx, "")
		}
		logger.Error("failed to mark item failed", "error", err)
		return outcomeError
	}

	telemetry.ItemsFailed.WithLabelValues(string(item.Kind), string(kind)).Inc()
	logger.Error("item failed",
		"reason", kind,
		"retry_count", item.RetryCount,
		"error", deliveryErr,
	)

	s.notifier.Notify(ctx, notify.Event{
		OwnerID:    item.OwnerID,
		AccountID:  item.AccountID,
		ItemID:     item.ID,
		Outcome:    notify.OutcomeFailed,
		Detail:     errMsg,
		OccurredAt: now,
	})
	return outcomeFailed
}

// failureMessage формирует last_error для FAILED.
func failureMessage(item *domain.Item, kind delivery.Kind, err error) string {
	switch {
	case kind == delivery.KindAuth:
		return fmt.Sprintf("account needs to be reconnected: %v", err)
	case kind == delivery.KindTransient && !item.IsThread():
		return fmt.Sprintf("%v after %d retries: %v", errMaxRetries, item.RetryCount, err)
	default:
		return err.Error()
	}
}

// deliverPost доставляет одиночный пост.
func (s *Scheduler) deliverPost(ctx context.Context, item *domain.Item) (string, error) {
	token, err := s.credentials.Credential(ctx, item.AccountID)
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}

	mediaIDs, err := s.uploadMedia(ctx, item.ID, token, item.Content.Media)
	if err != nil {
		return "", err
	}

	externalID, err := s.client.Publish(ctx, token, delivery.Post{
		Text:     item.Content.Text,
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return "", err
	}
	if externalID == "" {
		return "", ErrEmptyExternalID
	}

	return externalID, nil
}

// uploadMedia загружает медиа поста. Ошибки отдельных медиа
// логируются и пропускаются: пост уходит без них.
// После каждого медиа claim продлевается; ошибка — только domain.ErrClaimLost.
func (s *Scheduler) uploadMedia(ctx context.Context, itemID uuid.UUID, token string, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	logger := telemetry.FromContext(ctx)
	if s.media == nil {
		logger.Warn("media loader not configured, skipping media", "count", len(refs))
		return nil, nil
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if id, ok := s.uploadOne(ctx, token, ref); ok {
			ids = append(ids, id)
		}
		if err := s.touch(ctx, itemID); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

func (s *Scheduler) uploadOne(ctx context.Context, token, ref string) (string, bool) {
	logger := telemetry.FromContext(ctx)

	data, err := s.media.Load(ctx, ref)
	if err != nil {
		logger.Warn("failed to load media, skipping", "ref", ref, "error", err)
		return "", false
	}

	id, err := s.client.UploadMedia(ctx, token, data, delivery.MIMEType(ref))
	if err != nil {
		logger.Warn("failed to upload media, skipping", "ref", ref, "error", err)
		return "", false
	}
	if id == "" {
		logger.Warn("media upload returned empty id, skipping", "ref", ref)
		return "", false
	}

	return id, true
}
