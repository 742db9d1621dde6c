package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcmhub/apiserver/internal/services"
	"github.com/tcmhub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

func newAuthRouter(users *memUserRepo) *chi.Mux {
	router := chi.NewRouter()
	router.Route("/v1/auth", func(r chi.Router) {
		AuthRouter(r, services.NewUserService(users), testJWTSecret)
	})
	return router
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterCreatesTesterAccount(t *testing.T) {
	users := newMemUserRepo()
	router := newAuthRouter(users)

	rec := postJSON(t, router, "/v1/auth/register", RegisterRequest{
		Username: "casey",
		Email:    "casey@example.com",
		Password: "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var user types.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "casey", user.Username)
	assert.Equal(t, types.RoleTester, user.Role)

	// The hash must never serialize outward.
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	router := newAuthRouter(newMemUserRepo())

	rec := postJSON(t, router, "/v1/auth/register", RegisterRequest{
		Username: "casey",
		Email:    "casey@example.com",
		Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	users := newMemUserRepo()
	router := newAuthRouter(users)

	first := postJSON(t, router, "/v1/auth/register", RegisterRequest{
		Username: "casey",
		Email:    "casey@example.com",
		Password: "correct-horse",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := postJSON(t, router, "/v1/auth/register", RegisterRequest{
		Username: "other",
		Email:    "casey@example.com",
		Password: "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestLoginIssuesDecodableToken(t *testing.T) {
	users := newMemUserRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	require.NoError(t, err)
	seeded, err := users.Create(context.Background(), types.User{
		Username:     "casey",
		Email:        "casey@example.com",
		Role:         types.RoleTester,
		PasswordHash: string(hash),
	})
	require.NoError(t, err)

	router := newAuthRouter(users)
	rec := postJSON(t, router, "/v1/auth/login", LoginRequest{Username: "casey", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)

	caller, err := parseToken(resp.Token, []byte(testJWTSecret))
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, caller.ID)
	assert.Equal(t, "casey", caller.Username)
	assert.Equal(t, types.RoleTester, caller.Role)
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	users := newMemUserRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	require.NoError(t, err)
	_, err = users.Create(context.Background(), types.User{Username: "casey", PasswordHash: string(hash)})
	require.NoError(t, err)

	router := newAuthRouter(users)
	rec := postJSON(t, router, "/v1/auth/login", LoginRequest{Username: "casey", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeRequiresValidToken(t *testing.T) {
	users := newMemUserRepo()
	user, err := users.Create(context.Background(), types.User{Username: "casey", Role: types.RoleTester})
	require.NoError(t, err)

	router := newAuthRouter(users)

	// No token.
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token.
	req = httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token.
	token, err := issueToken(user, []byte(testJWTSecret), time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got types.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, user.ID, got.ID)
}

func TestExpiredTokenUnauthorized(t *testing.T) {
	users := newMemUserRepo()
	user, err := users.Create(context.Background(), types.User{Username: "casey", Role: types.RoleTester})
	require.NoError(t, err)

	router := newAuthRouter(users)

	token, err := issueToken(user, []byte(testJWTSecret), -time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
