package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	panelhandler "github.com/calegria/mindpanel/backend/internal/handler/panel"
	personahandler "github.com/calegria/mindpanel/backend/internal/handler/persona"
	"github.com/calegria/mindpanel/backend/internal/middleware"
	personamodel "github.com/calegria/mindpanel/backend/internal/model/persona"
	panelservice "github.com/calegria/mindpanel/backend/internal/service/panel"
)

// NewRouter wires HTTP routes to the panel engine.
func NewRouter(personas personamodel.Store, orchestrator *panelservice.Orchestrator, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	personaHandler := personahandler.New(personas)
	panelHandler := panelhandler.New(orchestrator, logger)
	wsHandler := panelhandler.NewWebSocketHandler(orchestrator, logger)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		panelHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
