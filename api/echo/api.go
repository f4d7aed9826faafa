//nolint:varnamelen
package echo

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/middleware"
)

// IssueKeyHeader carries the shared secret of trusted issuing callers.
const IssueKeyHeader = "X-Issue-Key"

// AdminRole is required on the bearer token for user-wide revocation.
const AdminRole = "ADMIN"

// TokenAPI holds the engine and HTTP options.
type TokenAPI struct {
	engine   *goToken.Engine
	issueKey string
	logger   zerolog.Logger
}

// Options configures [NewTokenAPI].
type Options struct {
	// IssueKey enables the issuing routes. Empty disables them.
	IssueKey string
	Logger   zerolog.Logger
}

// NewTokenAPI initializes the token API.
func NewTokenAPI(engine *goToken.Engine, opts Options) *TokenAPI {
	return &TokenAPI{engine: engine, issueKey: opts.IssueKey, logger: opts.Logger}
}

// RegisterRoutes registers the token routes on e.
func (a *TokenAPI) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/v1")

	v1.POST("/tokens/refresh", a.RefreshHandler)
	v1.POST("/tokens/revoke", a.RevokeHandler)
	v1.POST("/tokens/introspect", a.IntrospectHandler)
	v1.POST("/one-time/redeem", a.RedeemOneTimeHandler)

	guard := Guard(a.engine)
	v1.GET("/tokens/me", a.MeHandler, guard)
	v1.POST("/users/:id/revoke-all", a.RevokeAllHandler, guard, RequireRole(AdminRole))

	if a.issueKey != "" {
		v1.POST("/tokens", a.IssueHandler, a.requireIssueKey)
		v1.POST("/one-time", a.IssueOneTimeHandler, a.requireIssueKey)
	}
}

type issueRequest struct {
	UserID      int64    `json:"user_id"`
	Subject     string   `json:"subject"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type oneTimeRequest struct {
	UserID  int64  `json:"user_id"`
	Subject string `json:"subject"`
	Purpose string `json:"purpose"`
}

type redeemRequest struct {
	Token   string `json:"token"`
	Purpose string `json:"purpose"`
}

// TokenResponse is the body of issue and refresh responses.
type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func tokenResponse(p goToken.TokenPair, now time.Time) TokenResponse {
	return TokenResponse{
		AccessToken:      p.AccessToken,
		TokenType:        "Bearer",
		ExpiresIn:        int(p.AccessExpiresAt.Sub(now).Seconds()),
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// IssueHandler mints a pair for an already authenticated account.
func (a *TokenAPI) IssueHandler(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	pair, err := a.engine.Issue(requestContext(c), goToken.Identity{
		UserID:      req.UserID,
		Subject:     req.Subject,
		Roles:       req.Roles,
		Permissions: req.Permissions,
	})
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusCreated, tokenResponse(pair, time.Now()))
}

// RefreshHandler rotates a refresh token.
func (a *TokenAPI) RefreshHandler(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return badRequest(c, "refresh_token is required")
	}
	pair, err := a.engine.Refresh(requestContext(c), req.RefreshToken)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, tokenResponse(pair, time.Now()))
}

// RevokeHandler revokes one token. Revoking twice answers revoked=false.
func (a *TokenAPI) RevokeHandler(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return badRequest(c, "token is required")
	}
	revoked, err := a.engine.Revoke(requestContext(c), req.Token)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"revoked": revoked})
}

// RevokeAllHandler revokes every refresh token of the user in the path.
func (a *TokenAPI) RevokeAllHandler(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		return badRequest(c, "invalid user id")
	}
	n, err := a.engine.RevokeAll(requestContext(c), userID)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"revoked": n})
}

// IntrospectHandler describes any token. Invalid tokens answer active=false.
func (a *TokenAPI) IntrospectHandler(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return badRequest(c, "token is required")
	}
	info, err := a.engine.Introspect(requestContext(c), req.Token)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, introspection(info))
}

// MeHandler returns the identity of the bearer access token.
func (a *TokenAPI) MeHandler(c echo.Context) error {
	id, ok := goToken.IdentityFromContext(c.Request().Context())
	if !ok {
		return a.fail(c, goToken.ErrTokenInvalid)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id":     id.UserID,
		"subject":     id.Subject,
		"roles":       nonNil(id.Roles),
		"permissions": nonNil(id.Permissions),
	})
}

// IssueOneTimeHandler mints a purpose-scoped single-use token.
func (a *TokenAPI) IssueOneTimeHandler(c echo.Context) error {
	var req oneTimeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	tok, err := a.engine.IssueOneTime(requestContext(c), req.UserID, req.Subject, goToken.Purpose(req.Purpose))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"token":      tok.Token,
		"purpose":    tok.Purpose,
		"expires_at": tok.ExpiresAt,
	})
}

// RedeemOneTimeHandler consumes a one-time token for the given purpose.
func (a *TokenAPI) RedeemOneTimeHandler(c echo.Context) error {
	var req redeemRequest
	if err := c.Bind(&req); err != nil || req.Token == "" || req.Purpose == "" {
		return badRequest(c, "token and purpose are required")
	}
	r, err := a.engine.RedeemOneTime(requestContext(c), req.Token, goToken.Purpose(req.Purpose))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id": r.UserID,
		"subject": r.Subject,
		"purpose": r.Purpose,
	})
}

func (a *TokenAPI) requireIssueKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		got := c.Request().Header.Get(IssueKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.issueKey)) != 1 {
			return c.JSON(http.StatusForbidden, middleware.ErrorBody{Error: "forbidden", Code: "issue_key"})
		}
		return next(c)
	}
}

func (a *TokenAPI) fail(c echo.Context, err error) error {
	status := middleware.StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", c.Path()).Msg("token request failed")
	}
	middleware.WriteError(c.Response(), err)
	return nil
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, middleware.ErrorBody{Error: msg, Code: "invalid_request"})
}

func requestContext(c echo.Context) context.Context {
	return goToken.WithClientIP(c.Request().Context(), c.RealIP())
}

type introspectionResponse struct {
	Active      bool      `json:"active"`
	Type        string    `json:"type,omitempty"`
	Subject     string    `json:"sub,omitempty"`
	UserID      *int64    `json:"user_id,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	Purpose     string    `json:"purpose,omitempty"`
	JTI         string    `json:"jti,omitempty"`
	IssuedAt    time.Time `json:"iat,omitzero"`
	ExpiresAt   time.Time `json:"exp,omitzero"`
	Blacklisted bool      `json:"blacklisted,omitempty"`
	State       string    `json:"state,omitempty"`
}

func introspection(info goToken.TokenInfo) introspectionResponse {
	out := introspectionResponse{
		Active:      info.Active,
		Type:        string(info.Type),
		Subject:     info.Subject,
		Roles:       info.Roles,
		Permissions: info.Permissions,
		Purpose:     string(info.Purpose),
		JTI:         info.JTI,
		IssuedAt:    info.IssuedAt,
		ExpiresAt:   info.ExpiresAt,
		Blacklisted: info.Blacklisted,
		State:       info.State,
	}
	if info.HasUserID {
		uid := info.UserID
		out.UserID = &uid
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
