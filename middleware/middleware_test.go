package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	goToken "github.com/MrEthical07/goToken"
)

type stubValidator struct {
	claims map[string]*goToken.Claims
	err    error
}

func (s stubValidator) Validate(_ context.Context, token string) (*goToken.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.claims[token]
	if !ok {
		return nil, goToken.ErrTokenSignatureInvalid
	}
	return c, nil
}

func claimsFor(typ goToken.TokenType, uid int64, roles ...string) *goToken.Claims {
	c := &goToken.Claims{UserID: &uid, Type: typ, Roles: roles}
	c.Subject = "alice@example.com"
	return c
}

func newStub() stubValidator {
	return stubValidator{claims: map[string]*goToken.Claims{
		"access":  claimsFor(goToken.TokenAccess, 42, "USER"),
		"admin":   claimsFor(goToken.TokenAccess, 1, "ADMIN"),
		"refresh": claimsFor(goToken.TokenRefresh, 42),
	}}
}

func identityHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := goToken.IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			t.Error("expected claims in context")
		}
		_ = json.NewEncoder(w).Encode(id)
	})
}

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuard(t *testing.T) {
	h := Guard(newStub())(identityHandler(t))

	tests := []struct {
		name   string
		authz  string
		status int
	}{
		{"valid access token", "Bearer access", http.StatusOK},
		{"lowercase scheme", "bearer access", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"refresh token as bearer", "Bearer refresh", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, tc.authz)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}

	rec := serve(h, "Bearer access")
	var id goToken.Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &id); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if id.UserID != 42 {
		t.Fatalf("expected user 42 in context, got %d", id.UserID)
	}
}

func TestGuardBackendFailure(t *testing.T) {
	h := Guard(stubValidator{err: goToken.ErrUnavailable})(identityHandler(t))
	rec := serve(h, "Bearer access")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "unavailable" {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func TestOptional(t *testing.T) {
	h := Optional(newStub())(identityHandler(t))

	if rec := serve(h, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected anonymous pass-through, got %d", rec.Code)
	}
	if rec := serve(h, "Bearer access"); rec.Code != http.StatusOK {
		t.Fatalf("expected identity, got %d", rec.Code)
	}
	if rec := serve(h, "Bearer nope"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected invalid token rejected, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	h := Guard(newStub())(RequireRole("ADMIN")(identityHandler(t)))

	if rec := serve(h, "Bearer admin"); rec.Code != http.StatusOK {
		t.Fatalf("expected admin allowed, got %d", rec.Code)
	}
	if rec := serve(h, "Bearer access"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for USER, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{goToken.ErrTokenExpired, http.StatusUnauthorized},
		{goToken.ErrTokenAlreadyUsedOrRevoked, http.StatusUnauthorized},
		{goToken.ErrAccountNotUsable, http.StatusForbidden},
		{goToken.ErrTokenNotFound, http.StatusNotFound},
		{goToken.ErrRateLimited, http.StatusTooManyRequests},
		{goToken.ErrEngineNotReady, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
