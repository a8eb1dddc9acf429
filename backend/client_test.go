package backend_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/secureview-io/secureview-auth/backend"
	"github.com/secureview-io/secureview-auth/session"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)

		var creds session.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "dana@secureview.example", creds.Email)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":        map[string]string{"id": "user-1", "email": creds.Email, "name": "Dana"},
			"tokens":      map[string]any{"access_token": "at-1", "refresh_token": "rt-1", "expires_in": 3600},
			"permissions": []string{"findings:read"},
			"session":     "sess-1",
		})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL)
	result, err := client.Authenticate(context.Background(), session.Credentials{Email: "dana@secureview.example", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "user-1", result.User.ID)
	require.Equal(t, "at-1", result.Tokens.AccessToken)
	require.Equal(t, time.Hour, result.Tokens.ExpiresIn)
	require.Equal(t, []string{"findings:read"}, result.Permissions)
	require.Equal(t, "sess-1", result.Session)
}

func TestAuthenticateNon2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := backend.NewClient(server.URL)
	_, err := client.Authenticate(context.Background(), session.Credentials{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/refresh", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "rt-1", body["refresh_token"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"tokens": map[string]any{"access_token": "at-2", "refresh_token": "rt-2", "expires_in": 1800},
		})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL)
	set, err := client.Refresh(context.Background(), "rt-1")
	require.NoError(t, err)
	require.Equal(t, "at-2", set.AccessToken)
	require.Equal(t, "rt-2", set.RefreshToken)
	require.Equal(t, 30*time.Minute, set.ExpiresIn)
}

// unsignedJWT builds a syntactically valid JWT with the given exp claim.
func unsignedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp.Unix())))
	return header + "." + payload + "."
}

func TestRefreshFallsBackToJWTExpClaim(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	token := unsignedJWT(t, now.Add(45*time.Minute))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tokens": map[string]any{"access_token": token, "refresh_token": "rt-2"},
		})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, backend.WithNowTime(func() time.Time { return now }))
	set, err := client.Refresh(context.Background(), "rt-1")
	require.NoError(t, err)
	require.Equal(t, 45*time.Minute, set.ExpiresIn)
}

func TestVerifySendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/auth/verify", r.URL.Path)
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":        map[string]string{"id": "user-1", "email": "dana@secureview.example"},
			"permissions": []string{"admin"},
			"session":     "sess-1",
		})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL)
	result, err := client.Verify(context.Background(), "at-1")
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, result.Permissions)
}

func TestLogout(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/logout", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := backend.NewClient(server.URL)
	require.NoError(t, client.Logout(context.Background(), "at-1"))
	require.Equal(t, "Bearer at-1", gotAuth)
}
