// Package api is the HTTP façade (spec §6): a thin gin adapter exposing CRUD on
// models/providers/futures/strategies, read endpoints over portfolio/trades/conversations/
// decisions, and actuation endpoints toggling auto-buy/auto-sell. It holds no trading logic of
// its own — every handler is a thin translation onto the store and orchestrator, matching the
// teacher's api/tactics.go shape (gin.Context -> store call -> gin.H response).
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"perpilot/internal/logger"
	"perpilot/internal/orchestrator"
	"perpilot/internal/store"
)

// Server wires the façade's dependencies, mirroring the teacher's api.Server shape.
type Server struct {
	store        *store.Store
	orchestrator *orchestrator.Orchestrator
	jwtSecret    string
	log          *logger.Logger
}

func New(st *store.Store, orch *orchestrator.Orchestrator, jwtSecret string) *Server {
	return &Server{
		store:        st,
		orchestrator: orch,
		jwtSecret:    jwtSecret,
		log:          logger.With("api"),
	}
}

// Router builds the gin engine with every façade route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/api", s.authMiddleware())
	{
		v1.GET("/providers", s.handleListProviders)
		v1.POST("/providers", s.handleCreateProvider)
		v1.GET("/providers/:id", s.handleGetProvider)
		v1.DELETE("/providers/:id", s.handleDeleteProvider)

		v1.GET("/futures", s.handleListFutures)
		v1.POST("/futures", s.handleCreateFuture)
		v1.DELETE("/futures/:id", s.handleDeleteFuture)

		v1.GET("/strategies", s.handleListStrategies)
		v1.POST("/strategies", s.handleCreateStrategy)
		v1.GET("/strategies/:id", s.handleGetStrategy)
		v1.PUT("/strategies/:id", s.handleUpdateStrategy)
		v1.DELETE("/strategies/:id", s.handleDeleteStrategy)

		v1.GET("/models", s.handleListModels)
		v1.POST("/models", s.handleCreateModel)
		v1.GET("/models/:id", s.handleGetModel)
		v1.PUT("/models/:id", s.handleUpdateModel)
		v1.DELETE("/models/:id", s.handleDeleteModel)
		v1.POST("/models/:id/actuation", s.handleSetModelActuation)

		v1.POST("/models/:id/strategies", s.handleAttachModelStrategy)
		v1.GET("/models/:id/strategies", s.handleListModelStrategies)
		v1.POST("/models/:id/strategies/generate", s.handleGenerateModelStrategy)
		v1.DELETE("/model-strategies/:id", s.handleDetachModelStrategy)

		v1.GET("/models/:id/portfolio", s.handleListPortfolio)
		v1.GET("/models/:id/trades", s.handleListTrades)
		v1.GET("/models/:id/conversations", s.handleListConversations)
		v1.GET("/models/:id/decisions", s.handleListDecisions)
	}

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			s.log.Warnf("%s %s -> %d: %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.Errors.String())
		}
	}
}
