// Package backend implements the session.AuthAPI contract over the
// external data API's HTTP endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/secureview-io/secureview-auth/session"
)

const (
	routeLogin   = "/auth/login"
	routeRefresh = "/auth/refresh"
	routeVerify  = "/auth/verify"
	routeLogout  = "/auth/logout"

	contentTypeJSON = "application/json; charset=utf-8"
)

var _ session.AuthAPI = (*Client)(nil)

// Client talks to the dashboard backend's auth endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	nowTime    func() time.Time
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

type wireTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

type wireUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type loginResponse struct {
	User        wireUser   `json:"user"`
	Tokens      wireTokens `json:"tokens"`
	Permissions []string   `json:"permissions"`
	Session     string     `json:"session"`
}

type refreshResponse struct {
	Tokens wireTokens `json:"tokens"`
}

type verifyResponse struct {
	User        wireUser `json:"user"`
	Permissions []string `json:"permissions"`
	Session     string   `json:"session"`
}

func (c *Client) Authenticate(ctx context.Context, creds session.Credentials) (*session.LoginResult, error) {
	var resp loginResponse
	if err := c.postJSON(ctx, routeLogin, creds, &resp); err != nil {
		return nil, errors.Wrap(err, "[Authenticate] login request")
	}
	return &session.LoginResult{
		User:        &session.User{ID: resp.User.ID, Email: resp.User.Email, Name: resp.User.Name},
		Tokens:      c.tokenSet(resp.Tokens),
		Permissions: resp.Permissions,
		Session:     resp.Session,
	}, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.TokenSet, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var resp refreshResponse
	if err := c.postJSON(ctx, routeRefresh, body, &resp); err != nil {
		return nil, errors.Wrap(err, "[Refresh] refresh request")
	}
	set := c.tokenSet(resp.Tokens)
	return &set, nil
}

func (c *Client) Verify(ctx context.Context, accessToken string) (*session.VerifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+routeVerify, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Verify] build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var resp verifyResponse
	if err := c.do(req, &resp); err != nil {
		return nil, errors.Wrap(err, "[Verify] verify request")
	}
	return &session.VerifyResult{
		User:        &session.User{ID: resp.User.ID, Email: resp.User.Email, Name: resp.User.Name},
		Permissions: resp.Permissions,
		Session:     resp.Session,
	}, nil
}

func (c *Client) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+routeLogout, nil)
	if err != nil {
		return errors.Wrap(err, "[Logout] build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.do(req, nil)
}

func (c *Client) postJSON(ctx context.Context, route string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// tokenSet converts wire tokens to the session contract. When the backend
// omits expires_in, the expiry is recovered from the access token's exp
// claim; the token is not trusted for anything else, so the parse is
// deliberately unverified.
func (c *Client) tokenSet(tokens wireTokens) session.TokenSet {
	expiresIn := time.Duration(tokens.ExpiresIn) * time.Second
	if tokens.ExpiresIn == 0 {
		if exp, ok := accessTokenExpiry(tokens.AccessToken); ok {
			expiresIn = exp.Sub(c.nowTime())
		} else {
			log.Warn().Msg("backend returned no expires_in and access token has no exp claim")
		}
	}
	return session.TokenSet{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    expiresIn,
	}
}

func accessTokenExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
