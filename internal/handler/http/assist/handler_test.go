package assist

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediconnect-backend/internal/service/assist"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/assist/:category", NewHandler(assist.NewService(nil, nil, 0)).Ask)
	return router
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAsk_CannedAnswer(t *testing.T) {
	router := setupRouter()

	w := post(router, "/v1/assist/first-aid", `{"text":"burn on hand"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool            `json:"success"`
		Data    assist.Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.Data.Fallback)
	assert.Equal(t, assist.CategoryFirstAid, body.Data.Category)
	assert.Contains(t, body.Data.Response, "burn on hand")
	assert.NotEmpty(t, body.Data.Disclaimer)
}

func TestAsk_BadRequests(t *testing.T) {
	router := setupRouter()

	assert.Equal(t, http.StatusBadRequest, post(router, "/v1/assist/horoscope", `{"text":"hi"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(router, "/v1/assist/symptoms", `{"text":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(router, "/v1/assist/symptoms", `not json`).Code)
}
