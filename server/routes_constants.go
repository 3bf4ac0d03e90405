package server

// Route path constants
// All routes served by the resource server are defined here.
const (
	RouteRoot   = "/"
	RouteHealth = "/healthz"

	// Session routes
	RouteRegister = "/register"
	RouteLogin    = "/login"
	RouteRefresh  = "/refresh"
	RouteLogout   = "/logout"
	RouteMe       = "/me"

	// Business routes, bearer protected
	RouteHistory = "/history"
	RouteAnalyze = "/analyze"
)
