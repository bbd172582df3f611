package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/queue"
)

// ItemReader — чтение публикаций.
type ItemReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
}

// PolicyStore — чтение и запись политик очереди.
type PolicyStore interface {
	GetQueuePolicy(ctx context.Context, accountID uuid.UUID) (*domain.QueuePolicy, error)
	Upsert(ctx context.Context, p *domain.QueuePolicy) error
}

// Allocator — распределение очереди.
type Allocator interface {
	AllocateAccount(ctx context.Context, accountID uuid.UUID) (queue.Result, error)
	Preview(ctx context.Context, accountID uuid.UUID) (*queue.Preview, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	items     ItemReader
	policies  PolicyStore
	allocator Allocator
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Items     ItemReader
	Policies  PolicyStore
	Allocator Allocator
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		items:     cfg.Items,
		policies:  cfg.Policies,
		allocator: cfg.Allocator,
		logger:    logger,
	}
}
