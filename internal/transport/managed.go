package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// refreshSkew is how far ahead of expiry a managed-provider token is
// refreshed proactively (spec §4.7).
const refreshSkew = 30 * time.Second

// refreshTimeout bounds the token refresh exchange itself (spec §5).
const refreshTimeout = 15 * time.Second

// TokenStore persists the managed-provider's access/refresh token pair.
// Mobile hosts back this with a secure keystore; anything else can use an
// in-memory store (spec §4.7's token storage policy).
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(*oauth2.Token) error
}

// MemoryTokenStore is the in-memory TokenStore used when no secure keystore
// is available.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token *oauth2.Token
}

func (m *MemoryTokenStore) Load() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryTokenStore) Save(t *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = t
	return nil
}

// OnAuthRefresh is invoked with the newly issued token after a successful
// refresh, so the caller can persist it wherever it keeps durable state
// (spec §4.7's on_auth_refresh callback).
type OnAuthRefresh func(*oauth2.Token)

// ManagedProvider is the Transport's managed-provider adapter (spec §4.7):
// it wraps an HTTPTransport's client so that every request carries a fresh
// bearer token, refreshing ahead of expiry with an x-www-form-urlencoded
// exchange against the provider's token endpoint.
type ManagedProvider struct {
	TokenURL      string
	ClientID      string
	ClientSecret  string
	Store         TokenStore
	HTTP          *http.Client
	OnAuthRefresh OnAuthRefresh

	mu sync.Mutex
}

// NewManagedProvider builds a ManagedProvider backed by an in-memory token
// store unless one is supplied.
func NewManagedProvider(tokenURL, clientID, clientSecret string, store TokenStore) *ManagedProvider {
	if store == nil {
		store = &MemoryTokenStore{}
	}
	return &ManagedProvider{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Store:        store,
		HTTP:         &http.Client{Timeout: refreshTimeout},
	}
}

// Do implements HTTPClient: it ensures the stored token is fresh, attaches
// it as a bearer credential, and issues the request.
func (p *ManagedProvider) Do(req *http.Request) (*http.Response, error) {
	token, err := p.ensureFreshToken(req.Context())
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "refresh managed-provider token", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return p.HTTP.Do(req)
}

func (p *ManagedProvider) ensureFreshToken(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, err := p.Store.Load()
	if err != nil {
		return nil, err
	}
	if token != nil && !needsRefresh(token) {
		return token, nil
	}
	if token == nil || token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	refreshed, err := p.exchangeRefreshToken(ctx, token.RefreshToken)
	if err != nil {
		return nil, err
	}
	if err := p.Store.Save(refreshed); err != nil {
		return nil, err
	}
	if p.OnAuthRefresh != nil {
		p.OnAuthRefresh(refreshed)
	}
	return refreshed, nil
}

// needsRefresh reports whether token is within refreshSkew of expiry, per
// spec §4.7. When the token carries no expiry, the JWT's own exp claim (if
// parseable) is consulted instead of a remote call.
func needsRefresh(token *oauth2.Token) bool {
	if !token.Expiry.IsZero() {
		return time.Until(token.Expiry) <= refreshSkew
	}
	exp, ok := jwtExpiry(token.AccessToken)
	if !ok {
		return false
	}
	return time.Until(exp) <= refreshSkew
}

// jwtExpiry reads the exp claim from a bearer token without verifying its
// signature: the adapter only needs to know when to refresh, not whether to
// trust the token's claims, so ParseUnverified is sufficient and avoids
// carrying the provider's signing key on the client.
func jwtExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	expUnix, err := claims.GetExpirationTime()
	if err != nil || expUnix == nil {
		return time.Time{}, false
	}
	return expUnix.Time, true
}

// exchangeRefreshToken performs the refresh_token grant as an
// x-www-form-urlencoded POST (spec §4.7), independent of oauth2.Config so
// the adapter does not need the provider's full authorization-code flow
// wired in, only the refresh leg.
func (p *ManagedProvider) exchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", p.ClientID)
	if p.ClientSecret != "" {
		form.Set("client_secret", p.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("refresh token exchange: HTTP %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if body.RefreshToken == "" {
		body.RefreshToken = refreshToken
	}

	token := &oauth2.Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		TokenType:    body.TokenType,
	}
	if body.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	return token, nil
}
