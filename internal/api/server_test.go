package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpilot/internal/orchestrator"
	"perpilot/internal/store"
	"perpilot/internal/strategy"
)

type fakeEnqueuer struct{}

func (fakeEnqueuer) Enqueue(ctx context.Context, model *store.Model, decision *store.StrategyDecision) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	orch := orchestrator.New(st, strategy.NewExecutor(st), fakeEnqueuer{})
	t.Cleanup(orch.Shutdown)
	return New(st, orch, "")
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProviderCRUDRoundTrip(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	rec := doJSON(t, r, http.MethodPost, "/api/providers", map[string]any{
		"display_name": "openai-main", "provider_type": "openai", "base_url": "https://api.openai.com", "api_key": "k",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var created store.Provider
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)

	rec = doJSON(t, r, http.MethodGet, "/api/providers/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodDelete, "/api/providers/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/providers/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateModelRejectsZeroMaxPositions(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	prov := doJSON(t, r, http.MethodPost, "/api/providers", map[string]any{
		"display_name": "p", "provider_type": "openai", "base_url": "https://x", "api_key": "k",
	})
	var provider store.Provider
	require.NoError(t, json.Unmarshal(prov.Body.Bytes(), &provider))

	rec := doJSON(t, r, http.MethodPost, "/api/models", map[string]any{
		"display_name": "m", "provider_id": provider.ID, "provider_model_name": "gpt", "max_positions": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelActuationTogglesWorkers(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	prov := doJSON(t, r, http.MethodPost, "/api/providers", map[string]any{
		"display_name": "p", "provider_type": "openai", "base_url": "https://x", "api_key": "k",
	})
	var provider store.Provider
	require.NoError(t, json.Unmarshal(prov.Body.Bytes(), &provider))

	modelResp := doJSON(t, r, http.MethodPost, "/api/models", map[string]any{
		"display_name": "m", "provider_id": provider.ID, "provider_model_name": "gpt",
		"max_positions": 3, "initial_capital": 1000, "batch_interval_sec": 60,
	})
	require.Equal(t, http.StatusOK, modelResp.Code)
	var model store.Model
	require.NoError(t, json.Unmarshal(modelResp.Body.Bytes(), &model))

	rec := doJSON(t, r, http.MethodPost, "/api/models/"+model.ID+"/actuation", map[string]any{
		"auto_buy_enabled": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	refreshed, err := s.store.GetModel(context.Background(), model.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.AutoBuyEnabled)

	rec = doJSON(t, r, http.MethodPost, "/api/models/"+model.ID+"/actuation", map[string]any{
		"auto_buy_enabled": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	refreshed, err = s.store.GetModel(context.Background(), model.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.AutoBuyEnabled)
}

func TestGenerateModelStrategyRejectsInvalidType(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	prov := doJSON(t, r, http.MethodPost, "/api/providers", map[string]any{
		"display_name": "p", "provider_type": "openai", "base_url": "https://x", "api_key": "k",
	})
	var provider store.Provider
	require.NoError(t, json.Unmarshal(prov.Body.Bytes(), &provider))

	modelResp := doJSON(t, r, http.MethodPost, "/api/models", map[string]any{
		"display_name": "m", "provider_id": provider.ID, "provider_model_name": "gpt", "max_positions": 1,
	})
	require.Equal(t, http.StatusOK, modelResp.Code)
	var model store.Model
	require.NoError(t, json.Unmarshal(modelResp.Body.Bytes(), &model))

	rec := doJSON(t, r, http.MethodPost, "/api/models/"+model.ID+"/strategies/generate", map[string]any{
		"name": "gen", "type": "spread",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateModelStrategyRejectsUnknownProviderType(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	prov := doJSON(t, r, http.MethodPost, "/api/providers", map[string]any{
		"display_name": "p", "provider_type": "other", "base_url": "https://x", "api_key": "k",
	})
	var provider store.Provider
	require.NoError(t, json.Unmarshal(prov.Body.Bytes(), &provider))

	modelResp := doJSON(t, r, http.MethodPost, "/api/models", map[string]any{
		"display_name": "m", "provider_id": provider.ID, "provider_model_name": "gpt", "max_positions": 1,
	})
	require.Equal(t, http.StatusOK, modelResp.Code)
	var model store.Model
	require.NoError(t, json.Unmarshal(modelResp.Body.Bytes(), &model))

	rec := doJSON(t, r, http.MethodPost, "/api/models/"+model.ID+"/strategies/generate", map[string]any{
		"name": "gen", "type": "buy",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	orch := orchestrator.New(st, strategy.NewExecutor(st), fakeEnqueuer{})
	t.Cleanup(orch.Shutdown)
	s := New(st, orch, "secret")

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/providers", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "tester"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusOK, rec2.Code)
}
