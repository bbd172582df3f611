package credential

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/shaiso/Herald/internal/delivery"
)

type memTokens struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*oauth2.Token
	saves  int
	getErr error
}

func (m *memTokens) GetToken(_ context.Context, accountID uuid.UUID) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	tok, ok := m.tokens[accountID]
	if !ok {
		return nil, ErrNoCredential
	}
	c := *tok
	return &c, nil
}

func (m *memTokens) SaveToken(_ context.Context, accountID uuid.UUID, token *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *token
	m.tokens[accountID] = &c
	m.saves++
	return nil
}

func tokenServer(t *testing.T, status int, refreshes *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600,"refresh_token":"r2"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(tokenURL string, store TokenStore) *OAuth2Provider {
	return NewOAuth2Provider(&oauth2.Config{
		ClientID:     "herald",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}, store)
}

func TestOAuth2Provider_ValidToken(t *testing.T) {
	var refreshes atomic.Int32
	srv := tokenServer(t, http.StatusOK, &refreshes)

	acct := uuid.New()
	store := &memTokens{tokens: map[uuid.UUID]*oauth2.Token{
		acct: {AccessToken: "current", Expiry: time.Now().Add(time.Hour)},
	}}

	tok, err := newProvider(srv.URL, store).Credential(context.Background(), acct)

	require.NoError(t, err)
	assert.Equal(t, "current", tok)
	assert.Zero(t, refreshes.Load())
}

func TestOAuth2Provider_RefreshesExpired(t *testing.T) {
	var refreshes atomic.Int32
	srv := tokenServer(t, http.StatusOK, &refreshes)

	acct := uuid.New()
	store := &memTokens{tokens: map[uuid.UUID]*oauth2.Token{
		acct: {AccessToken: "old", RefreshToken: "r1", Expiry: time.Now().Add(-time.Minute)},
	}}
	p := newProvider(srv.URL, store)

	tok, err := p.Credential(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "r2", store.tokens[acct].RefreshToken)

	// сохранённый токен валиден, повторного refresh нет
	tok, err = p.Credential(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestOAuth2Provider_RefreshRejectedIsAuth(t *testing.T) {
	var refreshes atomic.Int32
	srv := tokenServer(t, http.StatusBadRequest, &refreshes)

	acct := uuid.New()
	store := &memTokens{tokens: map[uuid.UUID]*oauth2.Token{
		acct: {AccessToken: "old", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Minute)},
	}}

	_, err := newProvider(srv.URL, store).Credential(context.Background(), acct)

	assert.Equal(t, delivery.KindAuth, delivery.Classify(err))
	assert.Zero(t, store.saves)
}

func TestOAuth2Provider_ExpiredWithoutRefreshToken(t *testing.T) {
	acct := uuid.New()
	store := &memTokens{tokens: map[uuid.UUID]*oauth2.Token{
		acct: {AccessToken: "old", Expiry: time.Now().Add(-time.Minute)},
	}}

	_, err := newProvider("http://127.0.0.1:0", store).Credential(context.Background(), acct)

	assert.Equal(t, delivery.KindAuth, delivery.Classify(err))
}

func TestOAuth2Provider_MissingAndStoreErrors(t *testing.T) {
	store := &memTokens{tokens: map[uuid.UUID]*oauth2.Token{}}
	p := newProvider("http://127.0.0.1:0", store)

	_, err := p.Credential(context.Background(), uuid.New())
	assert.Equal(t, delivery.KindNotFound, delivery.Classify(err))
	assert.ErrorIs(t, err, ErrNoCredential)

	store.getErr = errors.New("db down")
	_, err = p.Credential(context.Background(), uuid.New())
	assert.Equal(t, delivery.KindTransient, delivery.Classify(err))
}

func TestOAuth2Provider_ConcurrentRefreshOnce(t *testing.T) {
	var refreshes atomic.Int32
	srv := tokenServer(t, http.StatusOK, &refreshes)

	acct := uuid.New()
	store := &memTokens{tokens: map[uuid.UUID]*oauth2.Token{
		acct: {AccessToken: "old", RefreshToken: "r1", Expiry: time.Now().Add(-time.Minute)},
	}}
	p := newProvider(srv.URL, store)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := p.Credential(context.Background(), acct)
			assert.NoError(t, err)
			assert.Equal(t, "fresh", tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshes.Load())
}

func TestStaticProvider(t *testing.T) {
	acct := uuid.New()
	p := StaticProvider{acct: "tok"}

	tok, err := p.Credential(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	_, err = p.Credential(context.Background(), uuid.New())
	assert.Equal(t, delivery.KindNotFound, delivery.Classify(err))
	assert.ErrorIs(t, err, ErrNoCredential)
}
