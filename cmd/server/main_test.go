package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"expograph/internal/recommend"
)

type fakeExecutor struct {
	rows map[string][]map[string]any
}

func (f *fakeExecutor) Execute(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error) {
	for substr, rows := range f.rows {
		if strings.Contains(query, substr) {
			return rows, nil
		}
	}
	return nil, nil
}

func testRouter(exec *fakeExecutor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return newRouter(recommend.NewService(exec, nil), zap.NewNop())
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(&fakeExecutor{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestVisitorStreamsEndpoint(t *testing.T) {
	router := testRouter(&fakeExecutor{rows: map[string][]map[string]any{
		"st.name AS name": {{"name": "StreamA"}},
	}})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/visitors/B1/streams", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "StreamA")
}

func TestRecommendationsEndpoint(t *testing.T) {
	router := testRouter(&fakeExecutor{rows: map[string][]map[string]any{
		"AS overlap": {
			{"session_id": "s1", "title": "Cardiology Update", "streams": []any{"StreamA"}, "overlap": int64(1)},
		},
	}})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/visitors/B1/recommendations?limit=5", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Cardiology Update")
}

func TestSearchEndpoint_RequiresText(t *testing.T) {
	router := testRouter(&fakeExecutor{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/sessions/search", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchEndpoint_WithoutEmbedder(t *testing.T) {
	// No API key configured: graph endpoints work, semantic search reports
	// itself unavailable.
	router := testRouter(&fakeExecutor{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/sessions/search", strings.NewReader(`{"text":"hearts"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestIntQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request, _ = http.NewRequest(http.MethodGet, "/?limit=7&bad=x&neg=-3", nil)

	assert.Equal(t, 7, intQuery(c, "limit", 10))
	assert.Equal(t, 10, intQuery(c, "bad", 10))
	assert.Equal(t, 10, intQuery(c, "neg", 10))
	assert.Equal(t, 10, intQuery(c, "absent", 10))
}
