package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FTHTrading/boutique-sub000/pkg/api"
)

const testSecret = "test-hmac-secret"

func signToken(t *testing.T, subject string, expiry time.Time) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: []string{"reviewer"},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func echoActor() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := api.Actor(r.Context())
		if err != nil {
			http.Error(w, "no actor", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(actor))
	})
}

func TestMiddlewareValidToken(t *testing.T) {
	mw := NewMiddleware(NewJWTValidator([]byte(testSecret)))
	srv := mw(echoActor())

	req := httptest.NewRequest(http.MethodPost, "/subjects/deal/d-1/approve", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "trader.kim", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trader.kim", rec.Body.String())
}

func TestMiddlewareMissingHeader(t *testing.T) {
	mw := NewMiddleware(NewJWTValidator([]byte(testSecret)))
	srv := mw(echoActor())

	req := httptest.NewRequest(http.MethodPost, "/subjects/deal/d-1/approve", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMiddlewareExpiredToken(t *testing.T) {
	mw := NewMiddleware(NewJWTValidator([]byte(testSecret)))
	srv := mw(echoActor())

	req := httptest.NewRequest(http.MethodPost, "/subjects/deal/d-1/approve", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "trader.kim", time.Now().Add(-time.Hour)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareWrongSecret(t *testing.T) {
	mw := NewMiddleware(NewJWTValidator([]byte("other-secret")))
	srv := mw(echoActor())

	req := httptest.NewRequest(http.MethodPost, "/subjects/deal/d-1/approve", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "trader.kim", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareFailsClosedWithoutValidator(t *testing.T) {
	mw := NewMiddleware(nil)
	srv := mw(echoActor())

	req := httptest.NewRequest(http.MethodPost, "/subjects/deal/d-1/approve", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "trader.kim", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAllowsPublicPaths(t *testing.T) {
	mw := NewMiddleware(nil)
	srv := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	srv := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, GetRequestID(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
