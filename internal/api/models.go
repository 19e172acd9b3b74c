package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"perpilot/internal/store"
)

func (s *Server) handleListModels(c *gin.Context) {
	models, err := s.store.ListModels(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

type modelRequest struct {
	DisplayName       string   `json:"display_name" binding:"required"`
	ProviderID        string   `json:"provider_id" binding:"required"`
	ProviderModelName string   `json:"provider_model_name" binding:"required"`
	InitialCapital    float64  `json:"initial_capital"`
	Leverage          int      `json:"leverage"`
	MaxPositions      int      `json:"max_positions"`
	APICredentials    string   `json:"api_credentials"`
	AutoClosePercent  *float64 `json:"auto_close_percent"`
	BaseVolumeFilter  *float64 `json:"base_volume_filter"`
	BatchSize         int      `json:"batch_size"`
	BatchIntervalSec  int      `json:"batch_interval_sec"`
	BatchGroupSize    int      `json:"batch_group_size"`
	PromptTemplate    string   `json:"prompt_template"`
	SymbolSource      string   `json:"symbol_source"`
	CandidateTopN     int      `json:"candidate_top_n"`
}

// validateModelRequest enforces spec §8's boundary rules: max_positions >= 1, auto_close_percent
// null or 0 < x <= 100 (0 is accepted and treated as "disabled" per spec, not rejected).
func validateModelRequest(req modelRequest) string {
	if req.MaxPositions < 1 {
		return "max_positions must be >= 1"
	}
	if req.AutoClosePercent != nil && (*req.AutoClosePercent < 0 || *req.AutoClosePercent > 100) {
		return "auto_close_percent must be between 0 and 100"
	}
	if req.Leverage < 0 || req.Leverage > 125 {
		return "leverage must be between 0 and 125"
	}
	return ""
}

func (s *Server) handleCreateModel(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if msg := validateModelRequest(req); msg != "" {
		badRequest(c, msg)
		return
	}

	created, err := s.store.CreateModel(c.Request.Context(), &store.Model{
		DisplayName:       req.DisplayName,
		ProviderID:        req.ProviderID,
		ProviderModelName: req.ProviderModelName,
		InitialCapital:    req.InitialCapital,
		Leverage:          req.Leverage,
		MaxPositions:      req.MaxPositions,
		APICredentials:    req.APICredentials,
		AutoClosePercent:  req.AutoClosePercent,
		BaseVolumeFilter:  req.BaseVolumeFilter,
		BatchSize:         req.BatchSize,
		BatchIntervalSec:  req.BatchIntervalSec,
		BatchGroupSize:    req.BatchGroupSize,
		PromptTemplate:    req.PromptTemplate,
		SymbolSource:      store.SymbolSource(req.SymbolSource),
		CandidateTopN:     req.CandidateTopN,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) handleGetModel(c *gin.Context) {
	m, err := s.store.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleUpdateModel(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if msg := validateModelRequest(req); msg != "" {
		badRequest(c, msg)
		return
	}

	existing, err := s.store.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	existing.DisplayName = req.DisplayName
	existing.ProviderID = req.ProviderID
	existing.ProviderModelName = req.ProviderModelName
	existing.InitialCapital = req.InitialCapital
	existing.Leverage = req.Leverage
	existing.MaxPositions = req.MaxPositions
	existing.APICredentials = req.APICredentials
	existing.AutoClosePercent = req.AutoClosePercent
	existing.BaseVolumeFilter = req.BaseVolumeFilter
	existing.BatchSize = req.BatchSize
	existing.BatchIntervalSec = req.BatchIntervalSec
	existing.BatchGroupSize = req.BatchGroupSize
	existing.PromptTemplate = req.PromptTemplate
	if req.SymbolSource != "" {
		existing.SymbolSource = store.SymbolSource(req.SymbolSource)
	}
	existing.CandidateTopN = req.CandidateTopN

	if err := s.store.UpdateModel(c.Request.Context(), existing); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "model updated"})
}

func (s *Server) handleDeleteModel(c *gin.Context) {
	id := c.Param("id")
	if s.orchestrator != nil {
		s.orchestrator.StopWorker(store.StrategyBuy, id)
		s.orchestrator.StopWorker(store.StrategySell, id)
	}
	if err := s.store.DeleteModel(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "model deleted"})
}

// handleSetModelActuation implements spec §6's "actuation endpoints for enable/disable of
// auto-buy and auto-sell": it persists the flags and immediately reconciles the corresponding
// orchestrator workers (spec §4.5's idempotent spawn / graceful-stop-and-drain contract).
func (s *Server) handleSetModelActuation(c *gin.Context) {
	var req struct {
		AutoBuyEnabled  *bool `json:"auto_buy_enabled"`
		AutoSellEnabled *bool `json:"auto_sell_enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	id := c.Param("id")
	model, err := s.store.GetModel(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}

	autoBuy := model.AutoBuyEnabled
	if req.AutoBuyEnabled != nil {
		autoBuy = *req.AutoBuyEnabled
	}
	autoSell := model.AutoSellEnabled
	if req.AutoSellEnabled != nil {
		autoSell = *req.AutoSellEnabled
	}

	if err := s.store.SetModelEnabled(c.Request.Context(), id, autoBuy, autoSell); err != nil {
		respondErr(c, err)
		return
	}
	model.AutoBuyEnabled, model.AutoSellEnabled = autoBuy, autoSell

	if s.orchestrator != nil {
		if autoBuy {
			s.orchestrator.EnsureWorker(model, store.StrategyBuy)
		} else {
			s.orchestrator.StopWorker(store.StrategyBuy, id)
		}
		if autoSell {
			s.orchestrator.EnsureWorker(model, store.StrategySell)
		} else {
			s.orchestrator.StopWorker(store.StrategySell, id)
		}
	}

	c.JSON(http.StatusOK, gin.H{"auto_buy_enabled": autoBuy, "auto_sell_enabled": autoSell})
}
