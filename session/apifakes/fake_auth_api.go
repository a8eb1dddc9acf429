package apifakes

import (
	"context"
	"errors"
	"sync"

	"github.com/secureview-io/secureview-auth/session"
)

var _ session.AuthAPI = (*FakeAuthAPI)(nil)

// FakeAuthAPI is a configurable in-memory stand-in for the backend auth
// endpoints. Call counts and arguments are recorded for assertions.
type FakeAuthAPI struct {
	lock sync.Mutex

	LoginResult  *session.LoginResult
	LoginErr     error
	RefreshSet   *session.TokenSet
	RefreshErr   error
	VerifyResult *session.VerifyResult
	VerifyErr    error
	LogoutErr    error

	// RefreshHook, when set, runs inside Refresh before the canned result
	// is returned. Used to interleave operations mid-refresh.
	RefreshHook func()

	AuthenticateCalls []session.Credentials
	RefreshCalls      []string
	VerifyCalls       []string
	LogoutCalls       []string
}

func NewFakeAuthAPI() *FakeAuthAPI {
	return &FakeAuthAPI{}
}

func (f *FakeAuthAPI) Authenticate(_ context.Context, creds session.Credentials) (*session.LoginResult, error) {
	f.lock.Lock()
	f.AuthenticateCalls = append(f.AuthenticateCalls, creds)
	result, err := f.LoginResult, f.LoginErr
	f.lock.Unlock()

	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("no login result configured")
	}
	return result, nil
}

func (f *FakeAuthAPI) Refresh(_ context.Context, refreshToken string) (*session.TokenSet, error) {
	f.lock.Lock()
	f.RefreshCalls = append(f.RefreshCalls, refreshToken)
	hook := f.RefreshHook
	set, err := f.RefreshSet, f.RefreshErr
	f.lock.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, errors.New("no refresh token set configured")
	}
	return set, nil
}

func (f *FakeAuthAPI) Verify(_ context.Context, accessToken string) (*session.VerifyResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.VerifyCalls = append(f.VerifyCalls, accessToken)
	if f.VerifyErr != nil {
		return nil, f.VerifyErr
	}
	if f.VerifyResult == nil {
		return nil, errors.New("no verify result configured")
	}
	return f.VerifyResult, nil
}

func (f *FakeAuthAPI) Logout(_ context.Context, accessToken string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.LogoutCalls = append(f.LogoutCalls, accessToken)
	return f.LogoutErr
}

// RefreshCallCount returns the number of Refresh calls observed so far.
func (f *FakeAuthAPI) RefreshCallCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.RefreshCalls)
}
