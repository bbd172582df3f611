package cli

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/queue"
	"github.com/shaiso/Herald/internal/scheduler"
)

// Ticker — один проход планировщика.
type Ticker interface {
	Tick(ctx context.Context) scheduler.PassStats
}

// Reaper — возврат зависших claim.
type Reaper interface {
	Reap(ctx context.Context) (int64, error)
}

// Allocator — распределение очереди.
type Allocator interface {
	AllocateAccount(ctx context.Context, accountID uuid.UUID) (queue.Result, error)
	AllocateAll(ctx context.Context) (queue.Summary, error)
	Preview(ctx context.Context, accountID uuid.UUID) (*queue.Preview, error)
}

// ItemReader — чтение публикаций.
type ItemReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
}

// PolicyStore — чтение и запись политик очереди.
type PolicyStore interface {
	GetQueuePolicy(ctx context.Context, accountID uuid.UUID) (*domain.QueuePolicy, error)
	Upsert(ctx context.Context, p *domain.QueuePolicy) error
}

// Services — зависимости команд.
//
// Создаются лениво через servicesFn после разбора флагов,
// чтобы --help и ошибки флагов не требовали подключения к базе.
type Services struct {
	Ticker    Ticker
	Reaper    Reaper
	Allocator Allocator
	Items     ItemReader
	Policies  PolicyStore
	Migrate   func(ctx context.Context) error
}

// ServicesFn возвращает зависимости команд.
type ServicesFn func(ctx context.Context) (*Services, error)
