package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/secureview-io/secureview-auth/connections"
	"github.com/secureview-io/secureview-auth/session"
)

const contentTypeJSON = "application/json; charset=utf-8"

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

type sessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
	Permissions   []string      `json:"permissions,omitempty"`
	State         string        `json:"state"`
}

func (s *Server) sessionPayload() sessionResponse {
	return sessionResponse{
		Authenticated: s.sessions.IsAuthenticated(),
		User:          s.sessions.CurrentUser(),
		Permissions:   s.sessions.Permissions(),
		State:         string(s.sessions.State()),
	}
}

// LoginHandler authenticates the dashboard user. Failures are
// retry-capable: a 401 with the reason, no state retained.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds session.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.sessions.Login(r.Context(), creds); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, s.sessionPayload())
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.Logout(r.Context())
		writeJSON(w, http.StatusOK, s.sessionPayload())
	}
}

// SessionHandler reports the current session, enforcing the idle timeout
// on read.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.CheckSession(r.Context())
		writeJSON(w, http.StatusOK, s.sessionPayload())
	}
}

// ActivityHandler records a user interaction for the idle-timeout window.
func (s *Server) ActivityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.sessions.UpdateActivity()
		w.WriteHeader(http.StatusNoContent)
	}
}

type connectionView struct {
	connections.Connection
	Status connections.Status `json:"status"`
}

// ConnectionsHandler returns every connection with its derived status.
func (s *Server) ConnectionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		conns := s.connections.Connections()
		views := make([]connectionView, 0, len(conns))
		for _, conn := range conns {
			views = append(views, connectionView{
				Connection: conn,
				Status:     s.connections.Status(conn.Provider),
			})
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// ConnectHandler validates provider parameters and returns the authorize
// redirect URL.
func (s *Server) ConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")

		params := map[string]string{}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		authURL, err := s.connections.Connect(provider, params)
		if err != nil {
			var validationErr *connections.ValidationError
			switch {
			case errors.As(err, &validationErr):
				http.Error(w, validationErr.Error(), http.StatusUnprocessableEntity)
			case errors.Is(err, connections.ErrUnknownProvider):
				http.Error(w, err.Error(), http.StatusNotFound)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"authorize_url": authURL})
	}
}

func (s *Server) DisconnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")
		if err := s.connections.Disconnect(provider); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ConnectionStatusHandler answers status queries from the wall clock
// alone; no provider call is made.
func (s *Server) ConnectionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")
		writeJSON(w, http.StatusOK, map[string]string{
			"provider": provider,
			"status":   string(s.connections.Status(provider)),
		})
	}
}
