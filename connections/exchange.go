package connections

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// UserInfo is the minimal identity fetched from the provider after a
// successful exchange.
type UserInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Login string `json:"login"`
}

// Exchanger swaps an authorization code (plus PKCE verifier) for tokens.
type Exchanger interface {
	Exchange(ctx context.Context, provider Provider, params map[string]string, code, verifier string) (*oauth2.Token, error)
}

// IdentityFetcher resolves the provider-side identity for a token.
type IdentityFetcher interface {
	Fetch(ctx context.Context, provider Provider, token *oauth2.Token) (UserInfo, error)
}

// OAuth2Exchanger performs the code exchange through the standard oauth2
// library.
type OAuth2Exchanger struct{}

func (OAuth2Exchanger) Exchange(ctx context.Context, provider Provider, params map[string]string, code, verifier string) (*oauth2.Token, error) {
	token, err := provider.OAuth2Config(params).Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, errors.Wrap(err, "[Exchange] code exchange")
	}
	return token, nil
}

// HTTPIdentityFetcher resolves identity either from a verified OIDC ID
// token (providers that advertise an issuer) or from the provider's
// userinfo endpoint with a bearer token.
type HTTPIdentityFetcher struct {
	HTTPClient *http.Client
}

func (f HTTPIdentityFetcher) Fetch(ctx context.Context, provider Provider, token *oauth2.Token) (UserInfo, error) {
	if provider.Issuer != "" {
		if info, err := f.fromIDToken(ctx, provider, token); err == nil {
			return info, nil
		}
		// Fall through to the userinfo endpoint when no usable ID token
		// was returned.
	}
	if provider.UserInfoURL == "" {
		return UserInfo{}, errors.Errorf("[Fetch] provider %q has no userinfo endpoint", provider.ID)
	}
	return f.fromUserInfoEndpoint(ctx, provider, token)
}

func (f HTTPIdentityFetcher) fromIDToken(ctx context.Context, provider Provider, token *oauth2.Token) (UserInfo, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return UserInfo{}, errors.New("[fromIDToken] no id_token in response")
	}

	oidcProvider, err := oidc.NewProvider(ctx, provider.Issuer)
	if err != nil {
		return UserInfo{}, errors.Wrap(err, "[fromIDToken] oidc provider discovery")
	}

	idToken, err := oidcProvider.Verifier(&oidc.Config{ClientID: provider.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return UserInfo{}, errors.Wrap(err, "[fromIDToken] id token verification")
	}

	var claims struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return UserInfo{}, errors.Wrap(err, "[fromIDToken] extract claims")
	}
	return UserInfo{Email: claims.Email, Name: claims.Name, Login: claims.PreferredUsername}, nil
}

func (f HTTPIdentityFetcher) fromUserInfoEndpoint(ctx context.Context, provider Provider, token *oauth2.Token) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.UserInfoURL, nil)
	if err != nil {
		return UserInfo{}, errors.Wrap(err, "[fromUserInfoEndpoint] build request")
	}
	token.SetAuthHeader(req)

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return UserInfo{}, errors.Wrap(err, "[fromUserInfoEndpoint] userinfo request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return UserInfo{}, errors.Errorf("[fromUserInfoEndpoint] userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return UserInfo{}, errors.Wrap(err, "[fromUserInfoEndpoint] decode userinfo")
	}
	return info, nil
}
