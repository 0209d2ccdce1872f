package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/concierge-platform/internal/events"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "tenant-1",
		Scopes:   []string{"conversations:write"},
	}
}

func TestAuth(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noTenant := validClaims()
	noTenant.TenantID = ""

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"valid bearer", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims()), "", http.StatusOK},
		{"valid query token", "", "?access_token=" + sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims()), http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims()), "", http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), expired), "", http.StatusUnauthorized},
		{"no tenant", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), noTenant), "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tenant, user string
			h := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tenant = GetTenantID(r.Context())
				user = GetUserID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "tenant-1", tenant)
				assert.Equal(t, "operator-1", user)
			}
		})
	}
}

func TestRequireScope(t *testing.T) {
	claims := validClaims()
	h := RequireScope("tenant:admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/tenant/settings", nil)
	req = req.WithContext(WithClaims(req.Context(), &claims))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	claims.Scopes = append(claims.Scopes, "tenant:admin")
	req = req.WithContext(WithClaims(req.Context(), &claims))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoggingPropagatesCorrelationID(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Logging(logger.Nop()))

	var seen string
	r.Get("/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen, _ = events.CorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/conversations/abc", nil)
	req.Header.Set(CorrelationHeader, "corr-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "corr-1", seen)
	assert.Equal(t, "corr-1", rec.Header().Get(CorrelationHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/abc", nil))
	assert.NotEmpty(t, rec.Header().Get(CorrelationHeader))
}

func TestRateLimitByTenant(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(tenant string) int {
		c := validClaims()
		c.TenantID = tenant
		req := httptest.NewRequest(http.MethodPost, "/api/v1/turns", nil)
		req = req.WithContext(WithClaims(req.Context(), &c))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"))
	assert.Equal(t, http.StatusOK, do("b"))
}

func TestValidation(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hello"))
	assert.Error(t, ValidateMessageContent(""))
	assert.Error(t, ValidateMessageContent(string(make([]byte, MaxMessageLength+1))))
	assert.Error(t, ValidateMessageContent("\xff\xfe"))

	assert.NoError(t, ValidateChannel(""))
	assert.NoError(t, ValidateChannel(model.ChannelWhatsApp))
	assert.Error(t, ValidateChannel("fax"))

	assert.Error(t, ValidateConversationID("not-a-uuid"))
	assert.NoError(t, ValidateConversationID("0190f0e4-7b5c-7c3e-9a51-8d2f7a8b9c0d"))
}
