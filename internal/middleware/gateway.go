package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/voicecraft/speech-backend/internal/auth"
	"github.com/voicecraft/speech-backend/internal/metrics"
	"github.com/voicecraft/speech-backend/internal/model"
)

// Header and cookie names making up the credential transport. Cookies take
// precedence over headers when both are present.
const (
	HeaderRefreshToken = "x-refresh-token"
	HeaderClientType   = "x-client-type"
	HeaderAccessToken  = "x-access-token"

	CookieAccessToken  = "accessToken"
	CookieRefreshToken = "refreshToken"
)

// Context keys set by the gateway.
const (
	// userKey holds the authenticated *model.User.
	userKey = "auth_user"
	// claimedUserKey holds the best-effort user attached on public routes
	// from an unverified decode. It is an identity hint, not an
	// authentication fact, and is deliberately kept under a separate key
	// so handlers cannot mistake it for an authenticated user.
	claimedUserKey = "claimed_user"
)

// UserFrom returns the authenticated user, or nil.
func UserFrom(c echo.Context) *model.User {
	if u, ok := c.Get(userKey).(*model.User); ok {
		return u
	}
	return nil
}

// ClaimedUserFrom returns the unauthenticated identity hint on public
// routes, or nil.
func ClaimedUserFrom(c echo.Context) *model.User {
	if u, ok := c.Get(claimedUserKey).(*model.User); ok {
		return u
	}
	return nil
}

// GatewayConfig is the immutable slice of configuration the gateway needs.
type GatewayConfig struct {
	Prod         bool
	CookieDomain string // applied in prod only, and only when non-empty
}

// Gateway is the per-request auth decision procedure: it extracts
// credentials from cookies or headers, validates the access token against
// its session, falls back to refresh rotation, and either attaches the
// user or denies the request. Cookie mutation happens only on successful
// rotation for web clients.
type Gateway struct {
	lifecycle *auth.Lifecycle
	users     auth.UserStore
	policies  *PolicyTable
	cfg       GatewayConfig
	rec       metrics.Recorder
	log       zerolog.Logger
}

// NewGateway wires the request guard.
func NewGateway(lifecycle *auth.Lifecycle, users auth.UserStore, policies *PolicyTable, cfg GatewayConfig, rec metrics.Recorder, log zerolog.Logger) *Gateway {
	return &Gateway{
		lifecycle: lifecycle,
		users:     users,
		policies:  policies,
		cfg:       cfg,
		rec:       rec,
		log:       log.With().Str("component", "auth-gateway").Logger(),
	}
}

// Middleware returns the echo middleware running the decision sequence.
func (g *Gateway) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			policy := g.policies.Lookup(c.Request().Method, c.Path())
			accessToken, refreshToken := extractTokens(c.Request())
			ctx := c.Request().Context()

			sessionExpired := false
			var accessErr error

			if accessToken != "" {
				if policy == PolicyPublic {
					// Public routes degrade gracefully: attach whatever user
					// the (unverified) token claims and move on. Identity
					// hint only — see claimedUserKey.
					g.attachClaimedUser(c, accessToken)
					return next(c)
				}
				claims, _, err := g.lifecycle.Verify(ctx, accessToken)
				switch {
				case err == nil:
					user, uerr := g.users.FindByID(ctx, claims.UserID)
					if uerr != nil {
						return g.denyErr(c, uerr)
					}
					if user != nil {
						c.Set(userKey, user)
						return next(c)
					}
					// Token valid but the user vanished; treat like a dead
					// session and try the refresh path.
					sessionExpired = true
				case auth.IsKind(err, auth.KindSessionExpired):
					sessionExpired = true
				case auth.IsKind(err, auth.KindInternal):
					return g.denyErr(c, err)
				default:
					// TokenExpired / TokenInvalid: fall through to refresh,
					// but keep the verdict for the denial if refresh cannot
					// save the request.
					accessErr = err
				}
			}

			var refreshErr error
			if refreshToken != "" {
				pair, user, err := g.lifecycle.Rotate(ctx, refreshToken)
				if err == nil {
					g.rec.RecordRotation()
					g.deliverRotatedPair(c, pair)
					c.Set(userKey, user)
					return next(c)
				}
				if auth.IsKind(err, auth.KindInternal) {
					return g.denyErr(c, err)
				}
				// Dead sessions were already purged inside Rotate.
				refreshErr = err
			}

			if policy == PolicyPublic || policy == PolicyPassthrough {
				return next(c)
			}
			if sessionExpired {
				return g.denyErr(c, auth.ErrSessionExpired())
			}
			if refreshErr != nil {
				return g.denyErr(c, refreshErr)
			}
			if accessErr != nil {
				return g.denyErr(c, accessErr)
			}
			return g.denyErr(c, auth.ErrUnauthorized())
		}
	}
}

// attachClaimedUser resolves the unverified token's claimed user id on
// public routes. Failures are swallowed: public routes never hard-fail on
// bad credentials.
func (g *Gateway) attachClaimedUser(c echo.Context, accessToken string) {
	claims := g.lifecycle.Codec().Decode(accessToken)
	if claims == nil {
		return
	}
	user, err := g.users.FindByID(c.Request().Context(), claims.UserID)
	if err != nil || user == nil {
		return
	}
	c.Set(claimedUserKey, user)
}

// deliverRotatedPair hands the fresh tokens back to the client: httpOnly
// cookies for web client types, response headers for everyone else.
func (g *Gateway) deliverRotatedPair(c echo.Context, pair *auth.TokenPair) {
	if IsWebClient(c.Request().Header.Get(HeaderClientType)) {
		g.SetAuthCookies(c, pair)
		return
	}
	c.Response().Header().Set(HeaderAccessToken, pair.AccessToken)
	c.Response().Header().Set(HeaderRefreshToken, pair.RefreshToken)
}

// SetAuthCookies writes the token pair as httpOnly cookies using the
// environment-dependent policy: Secure and SameSite=None in production
// (cross-site deployment), SameSite=Lax otherwise; Domain only in
// production and only when configured.
func (g *Gateway) SetAuthCookies(c echo.Context, pair *auth.TokenPair) {
	g.setCookie(c, CookieAccessToken, pair.AccessToken, g.lifecycle.Codec().AccessTTL())
	g.setCookie(c, CookieRefreshToken, pair.RefreshToken, g.lifecycle.Codec().RefreshTTL())
}

// ClearAuthCookies expires both auth cookies.
func (g *Gateway) ClearAuthCookies(c echo.Context) {
	g.setCookie(c, CookieAccessToken, "", -time.Second)
	g.setCookie(c, CookieRefreshToken, "", -time.Second)
}

func (g *Gateway) setCookie(c echo.Context, name, value string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   g.cfg.Prod,
	}
	if g.cfg.Prod {
		cookie.SameSite = http.SameSiteNoneMode
		if g.cfg.CookieDomain != "" {
			cookie.Domain = g.cfg.CookieDomain
		}
	} else {
		cookie.SameSite = http.SameSiteLaxMode
	}
	c.SetCookie(cookie)
}

func (g *Gateway) denyErr(c echo.Context, err error) error {
	var ae *auth.Error
	if !errors.As(err, &ae) {
		ae = &auth.Error{Kind: auth.KindInternal, Message: "internal error"}
	}
	if ae.Kind == auth.KindInternal {
		g.log.Error().Err(err).Str("path", c.Path()).Msg("gateway failure")
	}
	g.rec.RecordAuthDenied(ae.Code())
	return RespondError(c, ae)
}

// IsWebClient reports whether the x-client-type header names a
// cookie-based web client.
func IsWebClient(clientType string) bool {
	switch clientType {
	case "nextjs-admin", "expo-web":
		return true
	}
	return false
}

// extractTokens pulls the credential pair from the request: cookies first,
// then Authorization bearer + x-refresh-token headers.
func extractTokens(r *http.Request) (accessToken, refreshToken string) {
	if ck, err := r.Cookie(CookieAccessToken); err == nil && ck.Value != "" {
		accessToken = ck.Value
	}
	if ck, err := r.Cookie(CookieRefreshToken); err == nil && ck.Value != "" {
		refreshToken = ck.Value
	}
	if accessToken == "" {
		if h := r.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
			accessToken = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if refreshToken == "" {
		refreshToken = r.Header.Get(HeaderRefreshToken)
	}
	return accessToken, refreshToken
}
