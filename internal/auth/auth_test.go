package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewVerifier_RequiresKey(t *testing.T) {
	_, err := NewVerifier("", "")
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = NewVerifier("", "not-a-hash")
	assert.Error(t, err)
}

func TestVerifier_PlainKey(t *testing.T) {
	v, err := NewVerifier("secret-key-123", "")
	require.NoError(t, err)

	assert.True(t, v.Verify("secret-key-123"))
	assert.False(t, v.Verify("secret-key-124"))
	assert.False(t, v.Verify(""))
}

func TestVerifier_HashedKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	require.NoError(t, err)

	v, err := NewVerifier("", string(hash))
	require.NoError(t, err)

	assert.True(t, v.Verify("hashed-key"))
	assert.False(t, v.Verify("other"))
}

func TestGenerateAndHashKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.Len(t, key, len(KeyPrefix)+64)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	hash, err := HashKey(key)
	require.NoError(t, err)
	assert.True(t, IsHash(hash))
	assert.False(t, IsHash(key))

	v, err := NewVerifier("", hash)
	require.NoError(t, err)
	assert.True(t, v.Verify(key))

	assert.NoError(t, ValidateKey(key, DefaultKeyPolicy()))
}

func TestValidateKey(t *testing.T) {
	policy := DefaultKeyPolicy()

	assert.Error(t, ValidateKey("short", policy))
	assert.Error(t, ValidateKey("aaaaaaaaaaaaaaaa", policy), "16 lowercase letters is about 75 bits")
	assert.NoError(t, ValidateKey("Correct-Horse-Battery-9", policy))
}

func TestCalculateStrength(t *testing.T) {
	s := CalculateStrength("abcDEF123!")
	assert.Equal(t, 10, s.Length)
	assert.Equal(t, 4, s.Classes)
	assert.Equal(t, 95, s.CharsetSize)
	assert.InDelta(t, 65.7, s.Entropy, 0.1)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "****", Redact("abc"))
	assert.Equal(t, "ngx_0123…", Redact("ngx_0123456789"))
}

func TestMiddleware_RequireKey(t *testing.T) {
	v, err := NewVerifier("k3y-value-long", "")
	require.NoError(t, err)

	var actor string
	handler := NewMiddleware(v, nil).RequireKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", HeaderAPIKey, "nope", http.StatusUnauthorized},
		{"api key header", HeaderAPIKey, "k3y-value-long", http.StatusNoContent},
		{"bearer", "Authorization", "Bearer k3y-value-long", http.StatusNoContent},
		{"basic is not bearer", "Authorization", "Basic k3y-value-long", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/config", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}

	assert.Equal(t, "api-key:k3y-valu…", actor)
}

func TestMiddleware_CustomDenied(t *testing.T) {
	v, err := NewVerifier("abc", "")
	require.NoError(t, err)

	handler := NewMiddleware(v, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).RequireKey(http.NotFoundHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
