package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-seat-reservation/internal/config"
	"github.com/iliyamo/campus-seat-reservation/internal/logging"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/utils"
)

const secret = "test-secret"

func serve(t *testing.T, h echo.HandlerFunc, token string, mw ...echo.MiddlewareFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	e.GET("/x", h, mw...)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	body := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func whoami(c echo.Context) error {
	u, ok := CurrentUser(c)
	if !ok {
		return c.NoContent(http.StatusTeapot)
	}
	return c.JSON(http.StatusOK, u)
}

func token(t *testing.T, u model.UserRef) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, u, 5)
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuth(t *testing.T) {
	rec, body := serve(t, whoami, "", JWTAuth(secret))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.CodeUnauthenticated, body["code"])
	assert.Equal(t, true, body["clear_token"])

	rec, body = serve(t, whoami, "garbage", JWTAuth(secret))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", body["error"])

	rec, body = serve(t, whoami, token(t, model.UserRef{ID: 4, Name: "Ada", Role: model.RoleStudent}), JWTAuth(secret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["id"])
	assert.Equal(t, "Ada", body["name"])
}

func TestRequireRole(t *testing.T) {
	admin := RequireRole(model.RoleAdmin)

	rec, body := serve(t, whoami, token(t, model.UserRef{ID: 1, Role: model.RoleStudent}), JWTAuth(secret), admin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, model.CodeNotAuthorized, body["code"])

	rec, _ = serve(t, whoami, token(t, model.UserRef{ID: 2, Role: model.RoleAdmin}), JWTAuth(secret), admin)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, whoami, "", admin)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestLoggerSetsContextEntry(t *testing.T) {
	var seen bool
	h := func(c echo.Context) error {
		seen = logging.FromContext(c.Request().Context()).Data["method"] == http.MethodGet
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	}
	rec, _ := serve(t, h, "", RequestLogger(logging.Discard()))
	assert.True(t, seen)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisabledMiddlewarePassthrough(t *testing.T) {
	calls := 0
	h := func(c echo.Context) error { calls++; return c.String(http.StatusOK, "ok") }

	rl := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil)
	cache := NewRedisCache(config.CacheConfig{Enabled: false}, nil)
	for i := 0; i < 3; i++ {
		rec, _ := serve(t, h, "", rl, cache)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 3, calls)
}

func keyFor(t *testing.T, strategy string, user *model.UserRef, query string) string {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/directory/search?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/directory/search")
	if user != nil {
		c.Set(userKey, *user)
	}
	return cacheKeyFrom(config.CacheConfig{Prefix: "cache", KeyStrategy: strategy}, c)
}

func TestCacheKeyPerUser(t *testing.T) {
	a := &model.UserRef{ID: 1}
	b := &model.UserRef{ID: 2}

	assert.NotEqual(t, keyFor(t, "user_route_query", a, "q=go"), keyFor(t, "user_route_query", b, "q=go"))
	assert.Equal(t, keyFor(t, "user_route_query", a, "q=go"), keyFor(t, "user_route_query", a, "q=go"))
	assert.NotEqual(t, keyFor(t, "user_route_query", a, "q=go"), keyFor(t, "user_route_query", a, "q=sql"))
	assert.Equal(t, keyFor(t, "route_query", a, "q=go"), keyFor(t, "route_query", b, "q=go"))
	assert.Regexp(t, `^cache:[0-9a-f]{40}$`, keyFor(t, "route", nil, ""))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`[]`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `[]`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/venues/libraries/1/book", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/venues/libraries/:id/book")
	c.Set(userKey, model.UserRef{ID: 12})

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}
	assert.Equal(t, "rl:user:12:route:POST /venues/libraries/:id/book", buildRateKey(cfg, c))
	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.9", buildRateKey(cfg, c))
}
