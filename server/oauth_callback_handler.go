package server

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/secureview-io/secureview-auth/connections"
)

// OAuthCallbackHandler consumes the provider redirect. Failures render a
// terminal page: the consent step is never retried automatically, the
// user gets a remediation hint and a path back to start the flow again.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")

		// r.FormValue works for both query params and POST form data
		cb := connections.Callback{
			Code:             r.FormValue("code"),
			State:            r.FormValue("state"),
			ErrorCode:        r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}

		conn, err := s.connections.HandleCallback(r.Context(), provider, cb)
		if err != nil {
			s.renderCallbackFailure(w, provider, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, callbackSuccessPage, html.EscapeString(conn.Provider), html.EscapeString(conn.UserInfo.Login))
	}
}

func (s *Server) renderCallbackFailure(w http.ResponseWriter, provider string, err error) {
	log.Warn().Err(err).Str("provider", provider).Msg("oauth callback failed")

	var providerErr *connections.ProviderError
	status := http.StatusBadRequest
	hint := "Restart the connection from the dashboard's integrations page."

	switch {
	case errors.As(err, &providerErr):
		status = http.StatusBadGateway
		hint = "The provider rejected the request. Check the app registration and granted scopes, then restart the connection."
	case errors.Is(err, connections.ErrStateMismatch):
		hint = "The sign-in link has expired or was already used. Restart the connection from the dashboard."
	case errors.Is(err, connections.ErrMissingOAuthParameters):
		hint = "The provider redirect was incomplete. Restart the connection from the dashboard."
	case errors.Is(err, connections.ErrUnknownProvider):
		status = http.StatusNotFound
		hint = "This provider is not configured."
	}

	// The provider name, error code and description come straight from the
	// redirect and must never land in the page unescaped.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, callbackFailurePage, html.EscapeString(provider), html.EscapeString(err.Error()), hint)
}

const callbackSuccessPage = `<!DOCTYPE html>
<html>
<head><title>Connection established</title></head>
<body>
<h1>Connected to %s</h1>
<p>Signed in as %s. You can close this window and return to the dashboard.</p>
</body>
</html>
`

const callbackFailurePage = `<!DOCTYPE html>
<html>
<head><title>Connection failed</title></head>
<body>
<h1>Could not connect %s</h1>
<p>%s</p>
<p>%s</p>
<p><a href="/">Back to the dashboard</a></p>
</body>
</html>
`
