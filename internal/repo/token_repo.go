package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"

	"github.com/shaiso/Herald/internal/credential"
)

// TokenRepo — хранилище OAuth2-токенов аккаунтов.
//
// Реализует credential.TokenStore.
type TokenRepo struct {
	pool *pgxpool.Pool
}

// NewTokenRepo создаёт новый TokenRepo.
func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{pool: pool}
}

// GetToken возвращает токен аккаунта или credential.ErrNoCredential.
func (r *TokenRepo) GetToken(ctx context.Context, accountID uuid.UUID) (*oauth2.Token, error) {
	var tok oauth2.Token
	var refresh *string
	var expiry *time.Time

	err := r.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, token_type, expiry
		FROM account_tokens
		WHERE account_id = $1
	`, accountID).Scan(&tok.AccessToken, &refresh, &tok.TokenType, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, credential.ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	if refresh != nil {
		tok.RefreshToken = *refresh
	}
	if expiry != nil {
		tok.Expiry = *expiry
	}
	return &tok, nil
}

// SaveToken сохраняет токен аккаунта.
func (r *TokenRepo) SaveToken(ctx context.Context, accountID uuid.UUID, tok *oauth2.Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO account_tokens (account_id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (account_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = COALESCE(EXCLUDED.refresh_token, account_tokens.refresh_token),
		    token_type = EXCLUDED.token_type,
		    expiry = EXCLUDED.expiry,
		    updated_at = EXCLUDED.updated_at
	`,
		accountID,
		tok.AccessToken,
		nullString(tok.RefreshToken),
		tokenType(tok),
		nullTime(tok.Expiry),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func tokenType(tok *oauth2.Token) string {
	if tok.TokenType == "" {
		return "Bearer"
	}
	return tok.TokenType
}
