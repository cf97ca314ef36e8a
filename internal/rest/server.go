package rest

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/robalyx/warden/internal/database"
	"github.com/robalyx/warden/internal/rest/handler"
	"github.com/robalyx/warden/internal/rest/middleware/auth"
	"github.com/robalyx/warden/internal/rest/middleware/ip"
	"github.com/robalyx/warden/internal/rest/middleware/ratelimit"
	"github.com/robalyx/warden/internal/setup/config"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Server implements the REST API service.
type Server struct {
	guildHandler  *handler.GuildHandler
	healthHandler *handler.HealthHandler
	rateLimiter   *ratelimit.Middleware
	handler       http.Handler
}

// NewServer creates a new REST API server. workers may be nil.
func NewServer(
	db database.Client, workers handler.StatusSource, cfg *config.APIConfig, logger *zap.Logger,
) *Server {
	server := &Server{
		guildHandler:  handler.NewGuildHandler(db, logger),
		healthHandler: handler.NewHealthHandler(db, workers, logger),
		rateLimiter:   ratelimit.New(&cfg.RateLimit, logger.Named("rate_limit")),
	}

	ipMiddleware := ip.New(&cfg.IP, logger.Named("ip"))
	authMiddleware := auth.New(cfg.Server.APIKeys, logger.Named("auth"))

	router := bunrouter.New()

	router.GET("/health", server.healthHandler.GetHealth)

	router.Use(
		ipMiddleware.AsRESTMiddleware,
		server.rateLimiter.AsRESTMiddleware,
	).WithGroup("/api/v1", func(g *bunrouter.Group) {
		g.GET("/health", server.healthHandler.GetHealth)
		g.GET("/guilds", server.guildHandler.ListGuilds)

		g.WithGroup("/guilds/:id", func(g *bunrouter.Group) {
			g.GET("/settings", server.guildHandler.GetSettings)
			g.GET("/stats", server.guildHandler.GetStats)
			g.GET("/members", server.guildHandler.ListMembers)
			g.GET("/strikes", server.guildHandler.ListStrikes)
			g.GET("/actions", server.guildHandler.ListActions)

			g.Use(authMiddleware.AsRESTMiddleware).PUT("/settings", server.guildHandler.UpdateSettings)
		})
	})

	server.handler = gzhttp.GzipHandler(router)

	return server
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases background resources held by the middlewares.
func (s *Server) Close() {
	s.rateLimiter.Close()
}
