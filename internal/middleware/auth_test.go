package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "s3cret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(sub string, scopes ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: scopes,
	}
}

func serveAuth(header string) (*httptest.ResponseRecorder, *http.Request) {
	var seen *http.Request
	h := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthPutsUserInContext(t *testing.T) {
	tok := sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims("alice", "admin"))

	rec, req := serveAuth("Bearer " + tok)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", GetUserID(req.Context()))
	assert.True(t, HasScope(req.Context(), ScopeAdmin))
}

func TestAuthRejects(t *testing.T) {
	expired := validClaims("alice")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"garbage":        "Bearer abc.def.ghi",
		"wrong secret":   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims("alice")),
		"expired":        "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), expired),
		"no subject":     "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims("")),
		"path subject":   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims("../etc")),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, req := serveAuth(header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, req)
		})
	}
}

func TestRequireScope(t *testing.T) {
	h := RequireScope(ScopeAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithUser(req.Context(), "alice", nil)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithUser(req.Context(), "ops", []string{"read", ScopeAdmin})))
	assert.Equal(t, http.StatusOK, rec.Code)
}
