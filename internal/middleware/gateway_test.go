package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicecraft/speech-backend/internal/auth"
	"github.com/voicecraft/speech-backend/internal/auth/authfakes"
	"github.com/voicecraft/speech-backend/internal/metrics"
	"github.com/voicecraft/speech-backend/internal/model"
	"github.com/voicecraft/speech-backend/internal/token"
)

const (
	testAccessSecret  = "gateway-access-secret"
	testRefreshSecret = "gateway-refresh-secret"
)

type gatewayFixture struct {
	e         *echo.Echo
	users     *authfakes.FakeUserStore
	sessions  *authfakes.FakeSessionStore
	lifecycle *auth.Lifecycle
	gateway   *Gateway
	user      *model.User
}

func setupGateway(t *testing.T, prod bool) *gatewayFixture {
	t.Helper()
	users := authfakes.NewFakeUserStore()
	sessions := authfakes.NewFakeSessionStore(users)
	codec := token.NewCodec(testAccessSecret, testRefreshSecret, "15m", "7d", zerolog.Nop())
	lifecycle := auth.NewLifecycle(codec, sessions, zerolog.Nop())

	user := users.Add(&model.User{Email: "dana@example.com", Role: model.RoleCustomer, Name: "Dana"})

	policies := NewPolicyTable()
	policies.Set(http.MethodGet, "/public", PolicyPublic)
	policies.Set(http.MethodPost, "/signout", PolicyPassthrough)

	cfg := GatewayConfig{Prod: prod, CookieDomain: "example.com"}
	gw := NewGateway(lifecycle, users, policies, cfg, metrics.Nop{}, zerolog.Nop())

	e := echo.New()
	e.Use(gw.Middleware())
	echoUser := func(c echo.Context) error {
		if u := UserFrom(c); u != nil {
			return c.JSON(http.StatusOK, map[string]any{"userId": u.ID})
		}
		if u := ClaimedUserFrom(c); u != nil {
			return c.JSON(http.StatusOK, map[string]any{"claimedUserId": u.ID})
		}
		return c.JSON(http.StatusOK, map[string]any{})
	}
	e.GET("/protected", echoUser)
	e.GET("/public", echoUser)
	e.POST("/signout", echoUser)

	return &gatewayFixture{e: e, users: users, sessions: sessions, lifecycle: lifecycle, gateway: gw, user: user}
}

func (f *gatewayFixture) issue(t *testing.T) *auth.TokenPair {
	t.Helper()
	pair, err := f.lifecycle.Issue(context.Background(), f.user.ID, f.user.Email, f.user.Role)
	require.NoError(t, err)
	return pair
}

func (f *gatewayFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

// expiredAccessToken crafts a well-signed access token whose exp has passed.
func expiredAccessToken(t *testing.T, userID uint64) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatUint(userID, 10),
		"email": "dana@example.com",
		"role":  model.RoleCustomer,
		"type":  token.TypeAccess,
		"iat":   time.Now().Add(-time.Hour).Unix(),
		"exp":   time.Now().Add(-time.Minute).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)
	return raw
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestGatewayAllowsValidBearerToken(t *testing.T) {
	f := setupGateway(t, false)
	pair := f.issue(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+pair.AccessToken)
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"userId":1`)
}

func TestGatewayDeniesWithoutCredentials(t *testing.T) {
	f := setupGateway(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/protected", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errCode(t, rec))
}

func TestGatewayDeniesGarbageToken(t *testing.T) {
	f := setupGateway(t, false)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-jwt")
	rec := f.do(req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_INVALID", errCode(t, rec))
}

func TestGatewayDeniesExpiredTokenWithoutRefresh(t *testing.T) {
	f := setupGateway(t, false)

	// No refresh token to fall back on: the denial must name the access
	// token's actual failure, not a generic missing-credentials one.
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+expiredAccessToken(t, f.user.ID))
	rec := f.do(req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", errCode(t, rec))
}

func TestGatewayCookiesTakePrecedenceOverHeaders(t *testing.T) {
	f := setupGateway(t, false)
	pair := f.issue(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: CookieAccessToken, Value: pair.AccessToken})
	req.Header.Set(echo.HeaderAuthorization, "Bearer stale-header-token")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayRotatesForWebClientViaCookies(t *testing.T) {
	f := setupGateway(t, false)
	pair := f.issue(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+expiredAccessToken(t, f.user.ID))
	req.Header.Set(HeaderRefreshToken, pair.RefreshToken)
	req.Header.Set(HeaderClientType, "nextjs-admin")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	var access, refresh *http.Cookie
	for _, ck := range cookies {
		switch ck.Name {
		case CookieAccessToken:
			access = ck
		case CookieRefreshToken:
			refresh = ck
		}
	}
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.False(t, access.Secure, "dev cookies are not secure")
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Empty(t, access.Domain, "domain only applies in prod")
	assert.NotEqual(t, pair.RefreshToken, refresh.Value, "refresh token must rotate")

	// Old refresh token was consumed.
	_, _, err := f.lifecycle.Rotate(context.Background(), pair.RefreshToken)
	assert.Error(t, err)
}

func TestGatewayRotatesForNativeClientViaHeaders(t *testing.T) {
	f := setupGateway(t, false)
	pair := f.issue(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(HeaderRefreshToken, pair.RefreshToken)
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderAccessToken))
	assert.NotEmpty(t, rec.Header().Get(HeaderRefreshToken))
	assert.Empty(t, rec.Result().Cookies(), "native clients get headers, not cookies")
}

func TestGatewayProdCookiePolicy(t *testing.T) {
	f := setupGateway(t, true)
	pair := f.issue(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(HeaderRefreshToken, pair.RefreshToken)
	req.Header.Set(HeaderClientType, "expo-web")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	for _, ck := range rec.Result().Cookies() {
		assert.True(t, ck.Secure)
		assert.Equal(t, http.SameSiteNoneMode, ck.SameSite)
		assert.Equal(t, "example.com", ck.Domain)
	}
}

func TestGatewayDeniesWhenBothTokensDead(t *testing.T) {
	f := setupGateway(t, false)
	pair := f.issue(t)
	for _, s := range f.sessions.All() {
		f.sessions.ExpireRefresh(s.ID)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+expiredAccessToken(t, f.user.ID))
	req.Header.Set(HeaderRefreshToken, pair.RefreshToken)
	rec := f.do(req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", errCode(t, rec))
	assert.Equal(t, 0, f.sessions.Count(), "dead session is purged")
}

func TestGatewaySessionExpiredIsDistinct(t *testing.T) {
	f := setupGateway(t, false)
	pair := f.issue(t)
	// Revoke the session out from under a still-valid token.
	_, err := f.lifecycle.RevokeAll(context.Background(), f.user.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+pair.AccessToken)
	rec := f.do(req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_EXPIRED", errCode(t, rec))
}

func TestGatewayPublicRouteWithoutToken(t *testing.T) {
	f := setupGateway(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/public", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "userId")
}

func TestGatewayPublicRouteAttachesClaimedUser(t *testing.T) {
	f := setupGateway(t, false)
	pair := f.issue(t)

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+pair.AccessToken)
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"claimedUserId":1`)
}

func TestGatewayPublicRouteSwallowsGarbageToken(t *testing.T) {
	f := setupGateway(t, false)

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-jwt")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "claimedUserId")
}

func TestGatewayPassthroughReachableWithoutCredentials(t *testing.T) {
	f := setupGateway(t, false)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/signout", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayPassthroughStillAuthenticatesWhenPossible(t *testing.T) {
	f := setupGateway(t, false)
	pair := f.issue(t)

	req := httptest.NewRequest(http.MethodPost, "/signout", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+pair.AccessToken)
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"userId":1`)
}

func TestIsWebClient(t *testing.T) {
	assert.True(t, IsWebClient("nextjs-admin"))
	assert.True(t, IsWebClient("expo-web"))
	assert.False(t, IsWebClient("expo-ios"))
	assert.False(t, IsWebClient(""))
}
