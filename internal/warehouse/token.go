package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"replenish/internal/config"
)

const (
	metaAccessToken  = "warehouse.access_token"
	metaTokenExpires = "warehouse.token_expires_at"
)

// CredentialStore persists the refreshed access token across runs.
type CredentialStore interface {
	GetMetadata(key string) (*string, error)
	SetMetadata(key, value string) error
}

// TokenProvider holds the warehouse API access token and refreshes it when
// expired. The token and its expiry survive restarts through the store.
type TokenProvider struct {
	mu         sync.Mutex
	httpClient *http.Client
	store      CredentialStore
	refreshURL string
	refreshTok string
	token      string
	expiresAt  time.Time
	now        func() time.Time
}

func NewTokenProvider(cfg config.Config, store CredentialStore) *TokenProvider {
	p := &TokenProvider{
		httpClient: &http.Client{Timeout: time.Duration(cfg.WarehouseTimeoutMs) * time.Millisecond},
		store:      store,
		refreshURL: cfg.WarehouseRefreshEndpoint,
		refreshTok: cfg.WarehouseRefreshToken,
		token:      cfg.WarehouseAccessToken,
		now:        time.Now,
	}

	if store != nil {
		if v, err := store.GetMetadata(metaAccessToken); err == nil && v != nil && *v != "" {
			p.token = *v
		}
		if v, err := store.GetMetadata(metaTokenExpires); err == nil && v != nil {
			if parsed, err := time.Parse(time.RFC3339, *v); err == nil {
				p.expiresAt = parsed
			}
		}
	}

	return p
}

// Token returns a valid access token, refreshing first if the current one has
// expired. A token with no recorded expiry is assumed valid.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && (p.expiresAt.IsZero() || p.now().Before(p.expiresAt)) {
		return p.token, nil
	}
	return p.refresh(ctx)
}

// Refresh forces a refresh regardless of expiry, for use after an auth
// rejection.
func (p *TokenProvider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refresh(ctx)
}

func (p *TokenProvider) refresh(ctx context.Context) (string, error) {
	if p.refreshTok == "" {
		return "", errors.New("warehouse token expired and no refresh token configured")
	}

	body, _ := json.Marshal(map[string]string{"refresh_token": p.refreshTok})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.refreshURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("warehouse token refresh failed: status=%d body=%s", resp.StatusCode, string(blob))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(blob, &payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", errors.New("warehouse token refresh returned empty access_token")
	}

	p.token = payload.AccessToken
	p.expiresAt = p.now().Add(time.Duration(payload.ExpiresIn) * time.Second)

	if p.store != nil {
		_ = p.store.SetMetadata(metaAccessToken, p.token)
		_ = p.store.SetMetadata(metaTokenExpires, p.expiresAt.UTC().Format(time.RFC3339))
	}

	return p.token, nil
}
