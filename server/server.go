package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/secureview-io/secureview-auth/connections"
	"github.com/secureview-io/secureview-auth/internal/config"
	"github.com/secureview-io/secureview-auth/session"
)

// HeaderRequestID carries the correlation ID echoed on every response
// and attached to request logs.
const HeaderRequestID = "X-Request-ID"

// Server exposes the session and connection managers to UI collaborators
// over HTTP.
type Server struct {
	env         string // Environment (e.g., "DEV", "production")
	mux         *http.ServeMux
	routes      []string
	config      config.Config
	sessions    *session.Manager
	connections *connections.Manager
}

func New(cfg config.Config, sessions *session.Manager, conns *connections.Manager) (*Server, error) {
	if sessions == nil {
		return nil, errors.New("[Server New] session manager is required")
	}
	if conns == nil {
		return nil, errors.New("[Server New] connection manager is required")
	}

	s := &Server{
		mux:         http.NewServeMux(),
		config:      cfg,
		sessions:    sessions,
		connections: conns,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

// ServeHTTP tags every request with a correlation ID before routing.
// A caller-supplied X-Request-ID is kept; otherwise one is generated.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, requestID)
	log.Debug().Str("request_id", requestID).Str("method", r.Method).Str("path", r.URL.Path).Msg("request")

	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("POST "+RouteLogin, s.LoginHandler())
	s.RegisterRouteFunc("POST "+RouteLogout, s.LogoutHandler())
	s.RegisterRouteFunc("GET "+RouteSession, s.SessionHandler())
	s.RegisterRouteFunc("POST "+RouteActivity, s.ActivityHandler())

	s.RegisterRouteFunc("GET "+RouteConnections, s.ConnectionsHandler())
	s.RegisterRouteFunc("POST "+RouteConnect, s.ConnectHandler())
	s.RegisterRouteFunc("DELETE "+RouteDisconnect, s.DisconnectHandler())
	s.RegisterRouteFunc("GET "+RouteConnectionStatus, s.ConnectionStatusHandler())
	s.RegisterRouteFunc("GET "+RouteConnectionCallback, s.OAuthCallbackHandler())
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		log.Debug().Str("route", route).Msg("registered")
	}
}
