package exchangefakes

import (
	"context"
	"errors"
	"sync"

	"github.com/secureview-io/secureview-auth/connections"
	"golang.org/x/oauth2"
)

var (
	_ connections.Exchanger       = (*FakeExchanger)(nil)
	_ connections.IdentityFetcher = (*FakeIdentityFetcher)(nil)
)

// ExchangeCall records the arguments of one Exchange invocation.
type ExchangeCall struct {
	Provider string
	Code     string
	Verifier string
}

// FakeExchanger returns a canned token and records calls.
type FakeExchanger struct {
	lock sync.Mutex

	Token *oauth2.Token
	Err   error

	Calls []ExchangeCall
}

func NewFakeExchanger() *FakeExchanger {
	return &FakeExchanger{}
}

func (f *FakeExchanger) Exchange(_ context.Context, provider connections.Provider, _ map[string]string, code, verifier string) (*oauth2.Token, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.Calls = append(f.Calls, ExchangeCall{Provider: provider.ID, Code: code, Verifier: verifier})
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Token == nil {
		return nil, errors.New("no token configured")
	}
	return f.Token, nil
}

// FakeIdentityFetcher returns a canned identity.
type FakeIdentityFetcher struct {
	lock sync.Mutex

	Info connections.UserInfo
	Err  error

	Calls int
}

func NewFakeIdentityFetcher() *FakeIdentityFetcher {
	return &FakeIdentityFetcher{}
}

func (f *FakeIdentityFetcher) Fetch(_ context.Context, _ connections.Provider, _ *oauth2.Token) (connections.UserInfo, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.Calls++
	if f.Err != nil {
		return connections.UserInfo{}, f.Err
	}
	return f.Info, nil
}
