package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"perpilot/internal/store"
)

func (s *Server) handleListFutures(c *gin.Context) {
	futures, err := s.store.ListFutures(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"futures": futures})
}

func (s *Server) handleCreateFuture(c *gin.Context) {
	var req struct {
		Symbol      string `json:"symbol" binding:"required"`
		DisplayName string `json:"display_name"`
		SortOrder   int    `json:"sort_order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	created, err := s.store.CreateFuture(c.Request.Context(), &store.Future{
		Symbol:      req.Symbol,
		DisplayName: req.DisplayName,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) handleDeleteFuture(c *gin.Context) {
	if err := s.store.DeleteFuture(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "future deleted"})
}
