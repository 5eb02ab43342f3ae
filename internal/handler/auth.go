package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/voicecraft/speech-backend/internal/auth"
	"github.com/voicecraft/speech-backend/internal/middleware"
	"github.com/voicecraft/speech-backend/internal/model"
	"github.com/voicecraft/speech-backend/internal/oauth"
)

// AuthHandler serves the sign-in, sign-out and profile endpoints.
type AuthHandler struct {
	Verifier  oauth.Verifier
	Identity  *auth.Identity
	Lifecycle *auth.Lifecycle
	Gateway   *middleware.Gateway
	Log       zerolog.Logger
}

func NewAuthHandler(verifier oauth.Verifier, identity *auth.Identity, lifecycle *auth.Lifecycle, gateway *middleware.Gateway, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		Verifier:  verifier,
		Identity:  identity,
		Lifecycle: lifecycle,
		Gateway:   gateway,
		Log:       log.With().Str("component", "auth-handler").Logger(),
	}
}

type oauthReq struct {
	Provider string `json:"provider"`
	IDToken  string `json:"idToken"`
}

type oauthResp struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// OAuth verifies a provider id token, resolves the local user and issues a
// session. Web clients receive the pair as httpOnly cookies and empty
// strings in the body; everyone else gets the tokens in the body.
func (h *AuthHandler) OAuth(c echo.Context) error {
	var req oauthReq
	if err := c.Bind(&req); err != nil {
		return middleware.RespondError(c, auth.ErrValidation("invalid body"))
	}
	if req.Provider == "" || req.IDToken == "" {
		return middleware.RespondError(c, auth.ErrValidation("provider and idToken are required"))
	}

	ctx := c.Request().Context()
	ident, err := h.Verifier.Verify(ctx, req.Provider, req.IDToken)
	if err != nil {
		return h.respondErr(c, err)
	}
	user, err := h.Identity.Resolve(ctx, *ident, preferredLanguage(c))
	if err != nil {
		return h.respondErr(c, err)
	}
	pair, err := h.Lifecycle.Issue(ctx, user.ID, user.Email, user.Role)
	if err != nil {
		return h.respondErr(c, err)
	}

	resp := oauthResp{User: user, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	if middleware.IsWebClient(c.Request().Header.Get(middleware.HeaderClientType)) {
		h.Gateway.SetAuthCookies(c, pair)
		resp.AccessToken = ""
		resp.RefreshToken = ""
	}
	return c.JSON(http.StatusOK, resp)
}

// SignOut revokes every session of the authenticated user and clears web
// cookies. When the gateway could not authenticate the request, only the
// session behind the presented token (if any) is revoked. Always 204:
// signing out twice is fine.
func (h *AuthHandler) SignOut(c echo.Context) error {
	ctx := c.Request().Context()
	if user := middleware.UserFrom(c); user != nil {
		if _, err := h.Lifecycle.RevokeAll(ctx, user.ID); err != nil {
			h.Log.Warn().Err(err).Uint64("user_id", user.ID).Msg("revoke-all failed during sign-out")
		}
	} else if raw := rawAccessToken(c); raw != "" {
		if _, err := h.Lifecycle.Revoke(ctx, raw); err != nil {
			h.Log.Warn().Err(err).Msg("revoke failed during sign-out")
		}
	}
	if middleware.IsWebClient(c.Request().Header.Get(middleware.HeaderClientType)) {
		h.Gateway.ClearAuthCookies(c)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	user := middleware.UserFrom(c)
	if user == nil {
		return middleware.RespondError(c, auth.ErrUnauthorized())
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

func (h *AuthHandler) respondErr(c echo.Context, err error) error {
	var ae *auth.Error
	if !errors.As(err, &ae) {
		ae = &auth.Error{Kind: auth.KindInternal, Message: "internal error"}
	}
	if ae.Kind == auth.KindInternal {
		h.Log.Error().Err(err).Msg("auth operation failed")
	}
	return middleware.RespondError(c, ae)
}

// rawAccessToken re-extracts the access token for the sign-out path, where
// the gateway may not have authenticated the request.
func rawAccessToken(c echo.Context) string {
	if ck, err := c.Cookie(middleware.CookieAccessToken); err == nil && ck.Value != "" {
		return ck.Value
	}
	if hdr := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(hdr, "Bearer ") {
		return strings.TrimPrefix(hdr, "Bearer ")
	}
	return ""
}

// preferredLanguage extracts the primary subtag of the first
// accept-language entry ("en-US,en;q=0.9" -> "en").
func preferredLanguage(c echo.Context) string {
	raw := c.Request().Header.Get("Accept-Language")
	if raw == "" {
		return ""
	}
	first := strings.TrimSpace(strings.SplitN(raw, ",", 2)[0])
	first = strings.SplitN(first, ";", 2)[0]
	first = strings.SplitN(first, "-", 2)[0]
	return strings.ToLower(strings.TrimSpace(first))
}
