package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"echochat/internal/configs"
	"echochat/internal/pkg/pow"
	"echochat/internal/pkg/resp"
)

func testDeps() *AppDeps {
	return &AppDeps{
		Config: &configs.AppConfig{
			Environment:    "development",
			Port:           8080,
			AllowedOrigins: []string{},
			JWTSecret:      "test-secret",
			PowDifficulty:  1,
		},
		Pow: pow.NewManager(1),
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := Router(testDeps())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body resp.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 0, body.Code)
}

func TestPowChallengeEndpoint(t *testing.T) {
	router := Router(testDeps())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/auth/pow/challenge", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Code int `json:"code"`
		Data struct {
			Nonce      string `json:"nonce"`
			Difficulty int    `json:"difficulty"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 0, body.Code)
	require.NotEmpty(t, body.Data.Nonce)
	require.Equal(t, 1, body.Data.Difficulty)
}

func TestMessagesRequireIdentity(t *testing.T) {
	router := Router(testDeps())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/messages/5f6c1af1-7b20-4b3f-9d6a-2f4c8f1a9b10", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterRequiresProofToken(t *testing.T) {
	router := Router(testDeps())

	r := httptest.NewRequest("POST", "/api/auth/register", nil)
	r.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAvatarEndpointsAbsentWithoutStorage(t *testing.T) {
	router := Router(testDeps())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/user/avatar", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
