package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"perpilot/internal/apperr"
	"perpilot/internal/llm"
	"perpilot/internal/metrics"
	"perpilot/internal/store"
	"perpilot/internal/strategy"
)

func (s *Server) handleListStrategies(c *gin.Context) {
	typ := store.StrategyType(c.Query("type"))
	strategies, err := s.store.ListStrategies(c.Request.Context(), typ)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}

func (s *Server) handleCreateStrategy(c *gin.Context) {
	var req struct {
		Name        string             `json:"name" binding:"required"`
		Type        store.StrategyType `json:"type" binding:"required"`
		ProgramText string             `json:"program_text" binding:"required"`
		Metadata    string             `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	created, err := s.store.CreateStrategy(c.Request.Context(), &store.Strategy{
		Name:        req.Name,
		Type:        req.Type,
		ProgramText: req.ProgramText,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) handleGetStrategy(c *gin.Context) {
	st, err := s.store.GetStrategy(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleUpdateStrategy(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		ProgramText string `json:"program_text"`
		Metadata    string `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	existing, err := s.store.GetStrategy(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	existing.Name = req.Name
	existing.ProgramText = req.ProgramText
	existing.Metadata = req.Metadata

	if err := s.store.UpdateStrategy(c.Request.Context(), existing); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "strategy updated"})
}

func (s *Server) handleDeleteStrategy(c *gin.Context) {
	if err := s.store.DeleteStrategy(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "strategy deleted"})
}

func (s *Server) handleAttachModelStrategy(c *gin.Context) {
	var req struct {
		StrategyID string             `json:"strategy_id" binding:"required"`
		Type       store.StrategyType `json:"type" binding:"required"`
		Priority   int                `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	attached, err := s.store.AttachModelStrategy(c.Request.Context(), &store.ModelStrategy{
		ModelID:    c.Param("id"),
		StrategyID: req.StrategyID,
		Type:       req.Type,
		Priority:   req.Priority,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, attached)
}

func (s *Server) handleListModelStrategies(c *gin.Context) {
	typ := store.StrategyType(c.Query("type"))
	list, err := s.store.ListModelStrategies(c.Request.Context(), c.Param("id"), typ)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_strategies": list})
}

// handleGenerateModelStrategy implements spec §4.6's LLM-backed path as an explicit authoring
// action: it renders the model's prompt template against a fresh candidate/position snapshot,
// asks the model's configured LLM provider for a decision program, and attaches the result as a
// new strategy at the requested priority — "the model writes its own strategy".
func (s *Server) handleGenerateModelStrategy(c *gin.Context) {
	var req struct {
		Name        string             `json:"name" binding:"required"`
		Type        store.StrategyType `json:"type" binding:"required"`
		Priority    int                `json:"priority"`
		Temperature *float64           `json:"temperature"`
		MaxTokens   int                `json:"max_tokens"`
		TopP        *float64           `json:"top_p"`
		TopK        int                `json:"top_k"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Type != store.StrategyBuy && req.Type != store.StrategySell {
		badRequest(c, "type must be buy or sell")
		return
	}

	ctx := c.Request.Context()
	model, err := s.store.GetModel(ctx, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	provider, err := s.store.GetProvider(ctx, model.ProviderID)
	if err != nil {
		respondErr(c, err)
		return
	}

	dispatcher, err := llm.New(llm.ProviderConfig{
		Type:    string(provider.ProviderType),
		Model:   model.ProviderModelName,
		BaseURL: provider.BaseURL,
		APIKey:  provider.APIKey,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	account, err := loadAccountInfo(ctx, s.store, model)
	if err != nil {
		respondErr(c, err)
		return
	}
	var candidates []strategy.CandidateRecord
	var positions []strategy.PositionRecord
	if req.Type == store.StrategyBuy {
		candidates, err = strategy.BuildCandidates(ctx, s.store, model)
	} else {
		positions, err = strategy.BuildPositions(ctx, s.store, model.ID)
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	genCfg := llm.GenerateConfig{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		TopK:        req.TopK,
	}

	start := time.Now()
	programText, renderedPrompt, genErr := strategy.GenerateProgram(ctx, dispatcher, model.PromptTemplate, account, candidates, positions, genCfg)
	metrics.RecordAICall(model.ID, string(provider.ProviderType), time.Since(start).Seconds(), genErr != nil)
	if genErr != nil {
		respondErr(c, apperr.Wrap(apperr.UpstreamTransient, "llm strategy generation failed", genErr))
		return
	}

	if _, err := s.store.RecordModelPrompt(ctx, &store.ModelPrompt{
		ModelID:      model.ID,
		Type:         req.Type,
		PromptText:   renderedPrompt,
		ResponseText: programText,
	}); err != nil {
		s.log.Warnf("model %s: record model prompt failed: %v", model.ID, err)
	}

	created, err := s.store.CreateStrategy(ctx, &store.Strategy{
		Name:        req.Name,
		Type:        req.Type,
		ProgramText: programText,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	attached, err := s.store.AttachModelStrategy(ctx, &store.ModelStrategy{
		ModelID:    model.ID,
		StrategyID: created.ID,
		Type:       req.Type,
		Priority:   req.Priority,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"strategy": created, "model_strategy": attached})
}

// loadAccountInfo mirrors internal/orchestrator's own account-snapshot fallback (latest
// recorded balance, or the model's initial capital before any snapshot exists).
func loadAccountInfo(ctx context.Context, st *store.Store, model *store.Model) (strategy.AccountInfo, error) {
	openCount, err := st.CountOpenPositions(ctx, model.ID)
	if err != nil {
		return strategy.AccountInfo{}, err
	}

	snapshot, err := st.GetAccountValue(ctx, model.ID, "futures")
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return strategy.AccountInfo{
				TotalEquity:      model.InitialCapital,
				AvailableBalance: model.InitialCapital,
				PositionCount:    openCount,
			}, nil
		}
		return strategy.AccountInfo{}, err
	}

	return strategy.AccountInfo{
		TotalEquity:      snapshot.Balance,
		AvailableBalance: snapshot.AvailableBalance,
		PositionCount:    openCount,
	}, nil
}

func (s *Server) handleDetachModelStrategy(c *gin.Context) {
	if err := s.store.DetachModelStrategy(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "strategy detached"})
}
