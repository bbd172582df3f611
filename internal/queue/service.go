package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/telemetry"
)

// Default configuration values.
const (
	defaultLockTTL = 30 * time.Second
)

// ErrPolicyDisabled — очередь аккаунта выключена, слоты не генерируются.
var ErrPolicyDisabled = errors.New("queue policy disabled")

// Store — операции хранилища, которые нужны распределителю.
type Store interface {
	// GetQueuePolicy возвращает политику аккаунта, иначе общую, иначе встроенную.
	GetQueuePolicy(ctx context.Context, accountID uuid.UUID) (*domain.QueuePolicy, error)

	// ListQueued возвращает QUEUED публикации аккаунта в порядке queue_position.
	ListQueued(ctx context.Context, accountID uuid.UUID) ([]domain.Item, error)

	// ListOccupiedTimestamps возвращает scheduled_at SCHEDULED публикаций аккаунта начиная с from.
	ListOccupiedTimestamps(ctx context.Context, accountID uuid.UUID, from time.Time) ([]time.Time, error)

	// AssignSlot переводит QUEUED → SCHEDULED с указанным временем и сбрасывает queue_position.
	// false — публикация уже не в очереди.
	AssignSlot(ctx context.Context, itemID uuid.UUID, scheduledAt, now time.Time) (bool, error)

	// ListQueuedAccounts возвращает аккаунты, у которых есть QUEUED публикации.
	ListQueuedAccounts(ctx context.Context) ([]uuid.UUID, error)
}

// Service распределяет очереди аккаунтов по слотам.
type Service struct {
	store         Store
	locker        Locker
	lookaheadDays int
	lockTTL       time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// Config — конфигурация Service.
type Config struct {
	Store Store

	// Locker — сериализация по аккаунту (default: MemoryLocker).
	Locker Locker

	LookaheadDays int           // горизонт слотов в днях (default: 30)
	LockTTL       time.Duration // время жизни блокировки аккаунта (default: 30s)

	Logger *slog.Logger
	Now    func() time.Time
}

// NewService создаёт Service.
func NewService(cfg Config) *Service {
	locker := cfg.Locker
	if locker == nil {
		locker = NewMemoryLocker()
	}

	lookahead := cfg.LookaheadDays
	if lookahead <= 0 {
		lookahead = DefaultLookaheadDays
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:         cfg.Store,
		locker:        locker,
		lookaheadDays: lookahead,
		lockTTL:       lockTTL,
		logger:        logger,
		now:           now,
	}
}

// Result — итог распределения очереди одного аккаунта.
type Result struct {
	AccountID uuid.UUID `json:"account_id"`
	Queued    int       `json:"queued"`
	Assigned  int       `json:"assigned"`
	Overflow  int       `json:"overflow"`

	// Conflicts — публикации, покинувшие очередь во время распределения.
	Conflicts int `json:"conflicts"`
}

// Preview — слоты и план без записи в хранилище.
type Preview struct {
	Policy *domain.QueuePolicy `json:"policy"`
	Slots  []time.Time         `json:"slots"`
	Plan   Plan                `json:"plan"`
}

// Preview вычисляет слоты и план распределения аккаунта, ничего не меняя.
func (s *Service) Preview(ctx context.Context, accountID uuid.UUID) (*Preview, error) {
	policy, queued, slots, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &Preview{
		Policy: policy,
		Slots:  slots,
		Plan:   Allocate(queued, slots),
	}, nil
}

// AllocateAccount распределяет очередь аккаунта.
//
// Аккаунт блокируется на время распределения. Если блокировку держит
// другой инстанс, возвращается ErrLocked. Для выключенной политики
// возвращается ErrPolicyDisabled вместе с Result, где вся очередь в Overflow.
func (s *Service) AllocateAccount(ctx context.Context, accountID uuid.UUID) (Result, error) {
	result := Result{AccountID: accountID}
	logger := telemetry.WithAccountID(s.logger, accountID.String())

	unlock, err := s.locker.Lock(ctx, accountID.String(), s.lockTTL)
	if err != nil {
		return result, fmt.Errorf("lock account %s: %w", accountID, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release queue lock", "error", err)
		}
	}()

	policy, queued, slots, err := s.load(ctx, accountID)
	if err != nil {
		return result, err
	}

	result.Queued = len(queued)
	if len(queued) == 0 {
		return result, nil
	}

	if !policy.Enabled {
		result.Overflow = len(queued)
		return result, ErrPolicyDisabled
	}

	plan := Allocate(queued, slots)
	result.Overflow = plan.Overflow

	for _, a := range plan.Assignments {
		ok, err := s.store.AssignSlot(ctx, a.ItemID, a.ScheduledAt, s.now())
		if err != nil {
			return result, fmt.Errorf("assign slot to item %s: %w", a.ItemID, err)
		}
		if !ok {
			result.Conflicts++
			logger.Debug("item left queue during allocation", "item_id", a.ItemID)
			continue
		}

		result.Assigned++
		telemetry.QueueAssigned.Inc()
		logger.Debug("item assigned to slot",
			"item_id", a.ItemID,
			"scheduled_at", a.ScheduledAt,
		)
	}

	logger.Info("queue allocated",
		"queued", result.Queued,
		"assigned", result.Assigned,
		"overflow", result.Overflow,
		"conflicts", result.Conflicts,
	)

	return result, nil
}

// Summary — итог распределения по всем аккаунтам.
type Summary struct {
	Accounts int      `json:"accounts"`
	Assigned int      `json:"assigned"`
	Overflow int      `json:"overflow"`
	Locked   int      `json:"locked"`
	Disabled int      `json:"disabled"`
	Results  []Result `json:"results"`
}

// AllocateAll распределяет очереди всех аккаунтов с QUEUED публикациями.
// Ошибка одного аккаунта не останавливает остальные; ошибки объединяются.
func (s *Service) AllocateAll(ctx context.Context) (Summary, error) {
	var summary Summary

	accounts, err := s.store.ListQueuedAccounts(ctx)
	if err != nil {
		return summary, fmt.Errorf("list queued accounts: %w", err)
	}

	var errs []error
	for _, accountID := range accounts {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		res, err := s.AllocateAccount(ctx, accountID)
		summary.Accounts++

		switch {
		case errors.Is(err, ErrLocked):
			summary.Locked++
			s.logger.Debug("account queue locked, skipping", "account_id", accountID)
			continue
		case errors.Is(err, ErrPolicyDisabled):
			summary.Disabled++
		case err != nil:
			s.logger.Error("failed to allocate account queue", "account_id", accountID, "error", err)
			errs = append(errs, err)
		}

		summary.Assigned += res.Assigned
		summary.Overflow += res.Overflow
		summary.Results = append(summary.Results, res)
	}

	telemetry.QueueOverflow.Set(float64(summary.Overflow))

	return summary, errors.Join(errs...)
}

// load читает политику, очередь и свободные слоты аккаунта.
func (s *Service) load(ctx context.Context, accountID uuid.UUID) (*domain.QueuePolicy, []domain.Item, []time.Time, error) {
	policy, err := s.store.GetQueuePolicy(ctx, accountID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get queue policy: %w", err)
	}

	queued, err := s.store.ListQueued(ctx, accountID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list queued: %w", err)
	}
	sortQueue(queued)

	now := s.now()
	occupied, err := s.store.ListOccupiedTimestamps(ctx, accountID, now)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list occupied: %w", err)
	}

	slots, err := GenerateSlots(policy, occupied, now, s.lookaheadDays)
	if err != nil {
		return nil, nil, nil, err
	}

	return policy, queued, slots, nil
}

// sortQueue упорядочивает очередь по queue_position, затем по created_at.
// Публикации без позиции идут в конце.
func sortQueue(items []domain.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].QueuePosition, items[j].QueuePosition
		switch {
		case pi != nil && pj != nil && *pi != *pj:
			return *pi < *pj
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
