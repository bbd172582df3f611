// Package credential выдаёт валидные токены аккаунтов для API публикации.
//
// Ядро никогда не хранит токены само: обновление просроченного токена
// и его сохранение — ответственность Provider.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/shaiso/Herald/internal/delivery"
)

// ErrNoCredential — у аккаунта нет подключённых токенов.
var ErrNoCredential = errors.New("no credential for account")

// Provider возвращает валидный токен аккаунта.
type Provider interface {
	Credential(ctx context.Context, accountID uuid.UUID) (string, error)
}

// TokenStore — хранилище OAuth2-токенов аккаунтов.
type TokenStore interface {
	// GetToken возвращает сохранённый токен или ErrNoCredential.
	GetToken(ctx context.Context, accountID uuid.UUID) (*oauth2.Token, error)

	// SaveToken сохраняет обновлённый токен.
	SaveToken(ctx context.Context, accountID uuid.UUID, token *oauth2.Token) error
}

// OAuth2Provider обновляет просроченные токены через oauth2.Config.
type OAuth2Provider struct {
	config *oauth2.Config
	store  TokenStore

	// один refresh на аккаунт одновременно
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewOAuth2Provider создаёт OAuth2Provider.
func NewOAuth2Provider(cfg *oauth2.Config, store TokenStore) *OAuth2Provider {
	return &OAuth2Provider{
		config: cfg,
		store:  store,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// Credential возвращает access token, при необходимости обновляя его.
//
// Ошибки:
//   - нет токена → delivery.NotFound (переподключение не поможет без действий владельца)
//   - refresh отклонён сервером → delivery.Auth
//   - прочие → delivery.Transient
func (p *OAuth2Provider) Credential(ctx context.Context, accountID uuid.UUID) (string, error) {
	lock := p.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	stored, err := p.store.GetToken(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return "", &delivery.Error{Kind: delivery.KindNotFound, Message: "account has no credential", Err: err}
		}
		return "", &delivery.Error{Kind: delivery.KindTransient, Message: "load credential", Err: err}
	}

	if stored.Valid() {
		return stored.AccessToken, nil
	}

	if stored.RefreshToken == "" {
		return "", delivery.Auth("credential expired and has no refresh token")
	}

	fresh, err := p.config.TokenSource(ctx, stored).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return "", &delivery.Error{Kind: delivery.KindAuth, Message: "refresh rejected", Err: err}
		}
		return "", &delivery.Error{Kind: delivery.KindTransient, Message: "refresh credential", Err: err}
	}

	if fresh.AccessToken != stored.AccessToken || fresh.RefreshToken != stored.RefreshToken {
		if err := p.store.SaveToken(ctx, accountID, fresh); err != nil {
			return "", fmt.Errorf("save refreshed credential: %w", err)
		}
	}

	return fresh.AccessToken, nil
}

func (p *OAuth2Provider) accountLock(accountID uuid.UUID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[accountID] = l
	}
	return l
}

// StaticProvider возвращает заранее известные токены. Для локальной разработки.
type StaticProvider map[uuid.UUID]string

// Credential возвращает токен аккаунта.
func (s StaticProvider) Credential(_ context.Context, accountID uuid.UUID) (string, error) {
	token, ok := s[accountID]
	if !ok || token == "" {
		return "", &delivery.Error{Kind: delivery.KindNotFound, Message: "account has no credential", Err: ErrNoCredential}
	}
	return token, nil
}
