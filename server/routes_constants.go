package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Session routes
	RouteLogin    = "/api/session/login"
	RouteLogout   = "/api/session/logout"
	RouteSession  = "/api/session"
	RouteActivity = "/api/session/activity"

	// Connection routes
	RouteConnections        = "/api/connections"
	RouteConnect            = "/api/connections/{provider}"
	RouteDisconnect         = "/api/connections/{provider}"
	RouteConnectionStatus   = "/api/connections/{provider}/status"
	RouteConnectionCallback = "/connections/{provider}/callback"
)
