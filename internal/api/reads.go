package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func limitParam(c *gin.Context, def int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (s *Server) handleListPortfolio(c *gin.Context) {
	positions, err := s.store.ListOpenPositions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolio": positions})
}

func (s *Server) handleListTrades(c *gin.Context) {
	trades, err := s.store.ListTrades(c.Request.Context(), c.Param("id"), limitParam(c, 100))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleListConversations(c *gin.Context) {
	conversations, err := s.store.ListConversations(c.Request.Context(), c.Param("id"), limitParam(c, 50))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (s *Server) handleListDecisions(c *gin.Context) {
	decisions, err := s.store.ListDecisions(c.Request.Context(), c.Param("id"), limitParam(c, 100))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}
