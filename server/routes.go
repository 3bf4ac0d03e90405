package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/hlog"
)

func (s *Server) initRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(s.LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	if s.requestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(s.requestsPerMinute, time.Minute))
	}
	r.Use(s.FaultMiddleware)

	r.Get(RouteRoot, s.RootHandler())
	r.Get(RouteHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post(RouteRegister, s.RegisterHandler())
	r.Post(RouteLogin, s.LoginHandler())
	r.Post(RouteRefresh, s.RefreshHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.RequireAuth)
		r.Post(RouteLogout, s.LogoutHandler())
		r.Get(RouteMe, s.MeHandler())
		r.Get(RouteHistory, s.HistoryHandler())
		r.Post(RouteAnalyze, s.AnalyzeHandler())
	})

	s.router = r
}
