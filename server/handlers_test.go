package server_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/secureview-io/secureview-auth/connections"
	"github.com/secureview-io/secureview-auth/connections/exchangefakes"
	"github.com/secureview-io/secureview-auth/connections/staterepo"
	"github.com/secureview-io/secureview-auth/credentials"
	"github.com/secureview-io/secureview-auth/internal/config"
	"github.com/secureview-io/secureview-auth/server"
	"github.com/secureview-io/secureview-auth/session"
	"github.com/secureview-io/secureview-auth/session/apifakes"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type serverFixture struct {
	api       *apifakes.FakeAuthAPI
	exchanger *exchangefakes.FakeExchanger
	identity  *exchangefakes.FakeIdentityFetcher
	srv       *server.Server
	conns     *connections.Manager
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()

	f := &serverFixture{
		api:       apifakes.NewFakeAuthAPI(),
		exchanger: exchangefakes.NewFakeExchanger(),
	}
	f.api.LoginResult = &session.LoginResult{
		User:        &session.User{ID: "user-1", Email: "dana@secureview.example", Name: "Dana"},
		Tokens:      session.TokenSet{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: time.Hour},
		Permissions: []string{"findings:read"},
		Session:     "sess-1",
	}
	f.exchanger.Token = &oauth2.Token{
		AccessToken:  "provider-access-1",
		RefreshToken: "provider-refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}

	sessions, err := session.NewManager(f.api, credentials.NewInMemoryRepo(), config.Session{})
	require.NoError(t, err)

	identity := exchangefakes.NewFakeIdentityFetcher()
	identity.Info = connections.UserInfo{Email: "dana@secureview.example", Login: "dana"}
	f.identity = identity

	providers := []connections.Provider{
		{
			ID:          connections.ProviderGitHub,
			ClientID:    "gh-client",
			AuthURL:     "https://github.com/login/oauth/authorize",
			TokenURL:    "https://github.com/login/oauth/access_token",
			RedirectURL: "https://dashboard.secureview.example/connections/github/callback",
		},
		{
			ID:          connections.ProviderAWS,
			ClientID:    "aws-client",
			AuthURL:     "https://auth.aws.example/authorize",
			TokenURL:    "https://auth.aws.example/token",
			RedirectURL: "https://dashboard.secureview.example/connections/aws/callback",
		},
	}
	conns, err := connections.NewManager(providers, staterepo.NewInMemoryRepo(), credentials.NewInMemoryRepo(), config.OAuth{},
		connections.WithExchanger(f.exchanger),
		connections.WithIdentityFetcher(identity),
	)
	require.NoError(t, err)
	f.conns = conns

	srv, err := server.New(config.New(), sessions, conns)
	require.NoError(t, err)
	f.srv = srv
	return f
}

func (f *serverFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func TestLoginHandler(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/session/login", `{"email":"dana@secureview.example","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"authenticated":true`)
	require.Contains(t, rec.Body.String(), "dana@secureview.example")
}

func TestLoginHandlerBadBody(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/session/login", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutHandler(t *testing.T) {
	f := setupServer(t)
	f.do(t, http.MethodPost, "/api/session/login", `{"email":"dana@secureview.example","password":"pw"}`)

	rec := f.do(t, http.MethodPost, "/api/session/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"authenticated":false`)
}

func TestSessionHandlerAnonymous(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"authenticated":false`)
	// No zero-valued user object leaks into anonymous responses
	require.NotContains(t, rec.Body.String(), `"user"`)
}

func TestResponsesCarryRequestID(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/session", "")
	_, err := uuid.Parse(rec.Header().Get(server.HeaderRequestID))
	require.NoError(t, err)

	// A caller-supplied correlation ID is echoed back untouched
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(server.HeaderRequestID, "corr-1234")
	echo := httptest.NewRecorder()
	f.srv.ServeHTTP(echo, req)
	require.Equal(t, "corr-1234", echo.Header().Get(server.HeaderRequestID))
}

func TestConnectHandlerReturnsAuthorizeURL(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/connections/github", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "github.com/login/oauth/authorize")
}

func TestConnectHandlerValidationError(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/connections/aws", `{"accountId":"123456789012"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "roleArn")
}

func TestConnectHandlerUnknownProvider(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/connections/digitalocean", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// connectState issues a connect and returns the state from the authorize URL.
func connectState(t *testing.T, f *serverFixture, provider string) string {
	t.Helper()
	authURL, err := f.conns.Connect(provider, nil)
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	return parsed.Query().Get("state")
}

func TestCallbackHandlerSuccess(t *testing.T) {
	f := setupServer(t)
	state := connectState(t, f, connections.ProviderGitHub)

	rec := f.do(t, http.MethodGet, "/connections/github/callback?code=auth-code-1&state="+url.QueryEscape(state), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Connected to github")
	require.Equal(t, connections.StatusConnected, f.conns.Status(connections.ProviderGitHub))
}

func TestCallbackHandlerStateMismatch(t *testing.T) {
	f := setupServer(t)
	connectState(t, f, connections.ProviderGitHub)

	rec := f.do(t, http.MethodGet, "/connections/github/callback?code=auth-code-1&state=forged", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Restart the connection")
	require.Equal(t, connections.StatusDisconnected, f.conns.Status(connections.ProviderGitHub))
}

func TestCallbackHandlerProviderError(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/connections/github/callback?error=access_denied&error_description=denied", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "access_denied")
}

func TestCallbackFailurePageEscapesProviderInput(t *testing.T) {
	f := setupServer(t)
	payload := `<script>document.location='https://evil.example'</script>`

	rec := f.do(t, http.MethodGet, "/connections/github/callback?error=access_denied&error_description="+url.QueryEscape(payload), "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotContains(t, rec.Body.String(), "<script>")
	require.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestCallbackSuccessPageEscapesIdentity(t *testing.T) {
	f := setupServer(t)
	f.identity.Info = connections.UserInfo{Login: `<img src=x onerror=alert(1)>`}
	state := connectState(t, f, connections.ProviderGitHub)

	rec := f.do(t, http.MethodGet, "/connections/github/callback?code=auth-code-1&state="+url.QueryEscape(state), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "<img")
	require.Contains(t, rec.Body.String(), "&lt;img")
}

func TestCallbackHandlerMissingParameters(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/connections/github/callback", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectionStatusHandler(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/connections/github/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"disconnected"`)
}

func TestDisconnectHandler(t *testing.T) {
	f := setupServer(t)
	state := connectState(t, f, connections.ProviderGitHub)
	f.do(t, http.MethodGet, "/connections/github/callback?code=auth-code-1&state="+url.QueryEscape(state), "")

	rec := f.do(t, http.MethodDelete, "/api/connections/github", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, connections.StatusDisconnected, f.conns.Status(connections.ProviderGitHub))
}
