package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"perpilot/internal/store"
)

func (s *Server) handleListProviders(c *gin.Context) {
	providers, err := s.store.ListProviders(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

func (s *Server) handleCreateProvider(c *gin.Context) {
	var req struct {
		DisplayName  string              `json:"display_name" binding:"required"`
		ProviderType store.ProviderType  `json:"provider_type" binding:"required"`
		BaseURL      string              `json:"base_url" binding:"required"`
		APIKey       string              `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	created, err := s.store.CreateProvider(c.Request.Context(), &store.Provider{
		DisplayName:  req.DisplayName,
		ProviderType: req.ProviderType,
		BaseURL:      req.BaseURL,
		APIKey:       req.APIKey,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) handleGetProvider(c *gin.Context) {
	p, err := s.store.GetProvider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeleteProvider(c *gin.Context) {
	if err := s.store.DeleteProvider(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "provider deleted"})
}
