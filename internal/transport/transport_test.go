package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/tdsync/core/internal/wire"
)

func TestPushPostsAndParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req wire.PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.DeviceID != "D1" {
			t.Errorf("DeviceID = %q, want D1", req.DeviceID)
		}
		json.NewEncoder(w).Encode(wire.PushResponse{ServerCursor: "c1", ServerTime: time.Now().UTC().Format(time.RFC3339)})
	}))
	defer srv.Close()

	tr := New(srv.URL, srv.URL, nil)
	resp, err := tr.Push(context.Background(), &wire.PushRequest{DeviceID: "D1"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if resp.ServerCursor != "c1" {
		t.Errorf("ServerCursor = %q, want c1", resp.ServerCursor)
	}
}

func TestPullSurfacesServerErrorAsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		retryAfter := 500
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(wire.ServerError{Code: wire.ErrRateLimited, Message: "slow down", RetryAfterMs: &retryAfter})
	}))
	defer srv.Close()

	tr := New(srv.URL, srv.URL, nil)
	_, err := tr.Pull(context.Background(), &wire.PullRequest{DeviceID: "D1"})
	if err == nil {
		t.Fatal("expected an error")
	}
	tErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("err type = %T, want *transport.Error", err)
	}
	if tErr.Code != wire.ErrRateLimited {
		t.Errorf("Code = %q, want RATE_LIMITED", tErr.Code)
	}
	if tErr.RetryAfter() != 500*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 500ms", tErr.RetryAfter())
	}
}

func TestPingReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := New(srv.URL, srv.URL, nil)
	if err := tr.Ping(context.Background(), srv.URL); err == nil {
		t.Fatal("expected an error for a 503 health check")
	}
}

func unsignedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestManagedProviderRefreshesWhenWithinSkew(t *testing.T) {
	refreshed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			refreshed = true
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if r.Form.Get("grant_type") != "refresh_token" {
				t.Errorf("grant_type = %q, want refresh_token", r.Form.Get("grant_type"))
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  unsignedJWT(t, time.Now().Add(time.Hour)),
				"refresh_token": "rt-2",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
			return
		}
		auth := r.Header.Get("Authorization")
		if auth == "" || auth == "Bearer " {
			t.Error("request missing bearer token")
		}
		json.NewEncoder(w).Encode(wire.PushResponse{ServerCursor: "c1", ServerTime: time.Now().UTC().Format(time.RFC3339)})
	}))
	defer srv.Close()

	store := &MemoryTokenStore{}
	store.Save(&oauth2.Token{
		AccessToken:  unsignedJWT(t, time.Now().Add(5*time.Second)),
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(5 * time.Second),
	})

	var callbackToken *oauth2.Token
	provider := NewManagedProvider(srv.URL+"/token", "client-1", "secret-1", store)
	provider.OnAuthRefresh = func(t *oauth2.Token) { callbackToken = t }

	tr := New(srv.URL, srv.URL, provider)
	if _, err := tr.Push(context.Background(), &wire.PushRequest{DeviceID: "D1"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !refreshed {
		t.Error("expected the token endpoint to be hit for a refresh")
	}
	if callbackToken == nil || callbackToken.RefreshToken != "rt-2" {
		t.Errorf("OnAuthRefresh callback token = %+v, want refresh_token rt-2", callbackToken)
	}
}

func TestManagedProviderSkipsRefreshWhenTokenFresh(t *testing.T) {
	tokenCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenCalls++
			json.NewEncoder(w).Encode(map[string]any{"access_token": "should-not-be-used"})
			return
		}
		json.NewEncoder(w).Encode(wire.PushResponse{ServerCursor: "c1", ServerTime: time.Now().UTC().Format(time.RFC3339)})
	}))
	defer srv.Close()

	store := &MemoryTokenStore{}
	store.Save(&oauth2.Token{
		AccessToken:  unsignedJWT(t, time.Now().Add(time.Hour)),
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(time.Hour),
	})

	provider := NewManagedProvider(srv.URL+"/token", "client-1", "secret-1", store)
	tr := New(srv.URL, srv.URL, provider)
	if _, err := tr.Push(context.Background(), &wire.PushRequest{DeviceID: "D1"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if tokenCalls != 0 {
		t.Errorf("tokenCalls = %d, want 0 (token not near expiry)", tokenCalls)
	}
}
