package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newHSManager(t *testing.T, now func() time.Time) *Manager {
	t.Helper()
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("test-secret-test-secret-test-secret"), Now: now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func sampleClaims(now time.Time) Claims {
	uid := int64(42)
	return Claims{
		UserID:      &uid,
		Type:        TypeRefresh,
		Roles:       ClaimList{"user", "admin"},
		Permissions: ClaimList{},
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "alice@example.com",
			ID:        "9b1f0c1e-4b43-4b0f-9e9c-1b1e3c0f0a11",
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	m := newHSManager(t, func() time.Time { return now })

	in := sampleClaims(now)
	token, err := m.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := strings.Count(token, "."); got != 2 {
		t.Fatalf("expected three segments, got %d separators", got+1)
	}

	out, err := m.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(*out, in) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", *out, in)
	}
}

func TestDecodeExpiredAtBoundary(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	clock := now
	m := newHSManager(t, func() time.Time { return clock })

	token, err := m.Encode(sampleClaims(now))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	clock = now.Add(time.Hour - time.Second)
	if _, err := m.Decode(token); err != nil {
		t.Fatalf("expected token to be valid before exp: %v", err)
	}

	clock = now.Add(time.Hour)
	if _, err := m.Decode(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at exp, got %v", err)
	}
}

func TestDecodeBadSignatureWinsOverExpiry(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	m := newHSManager(t, func() time.Time { return now.Add(2 * time.Hour) })

	other, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("another-secret-another-secret-xx")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	forged, err := other.Encode(sampleClaims(now))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := m.Decode(forged); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	m := newHSManager(t, nil)
	for _, input := range []string{"", "abc", "a.b", "a.b.c.d", "!!!.###.$$$"} {
		if _, err := m.Decode(input); !errors.Is(err, ErrMalformed) {
			t.Fatalf("input %q: expected ErrMalformed, got %v", input, err)
		}
	}
}

func TestDecodeRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.CanSign() {
		t.Fatal("verify-only manager must not report signing capability")
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, sampleClaims(time.Now()))
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Decode(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected as signature failure, got %v", err)
	}
}

func TestDecodeIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "gotoken",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	now := time.Now()
	token, err := m.Encode(sampleClaims(now))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	claims, err := m.Decode(token)
	if err != nil {
		t.Fatalf("expected valid token to decode: %v", err)
	}
	if claims.Issuer != "gotoken" || len(claims.Audience) != 1 || claims.Audience[0] != "api" {
		t.Fatalf("expected configured iss/aud to be stamped, got %q %v", claims.Issuer, claims.Audience)
	}

	wrongIssuer := sampleClaims(now)
	wrongIssuer.Issuer = "other"
	wrongIssuer.Audience = gjwt.ClaimStrings{"api"}
	signed, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer).SignedString(priv)
	if _, err := m.Decode(signed); !errors.Is(err, ErrClaimsInvalid) {
		t.Fatalf("expected wrong issuer to fail as claims invalid, got %v", err)
	}

	withinLeeway := sampleClaims(now.Add(-time.Hour - 15*time.Second))
	withinLeeway.Issuer = "gotoken"
	withinLeeway.Audience = gjwt.ClaimStrings{"api"}
	signed, _ = gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, withinLeeway).SignedString(priv)
	if _, err := m.Decode(signed); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
}

func TestDecodeUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, sampleClaims(time.Now()))
	tok.Header["kid"] = "k2"
	token, _ := tok.SignedString(priv1)
	if _, err := m.Decode(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected unknown kid failure, got %v", err)
	}

	good, err := m.Encode(sampleClaims(time.Now()))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := m.Decode(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}
}

func TestClaimListEncoding(t *testing.T) {
	raw, err := json.Marshal(struct {
		Roles ClaimList `json:"roles"`
	}{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"roles":[]}` {
		t.Fatalf("expected empty list as [], got %s", raw)
	}

	var joined ClaimList
	if err := json.Unmarshal([]byte(`"user, admin,,ops"`), &joined); err != nil {
		t.Fatalf("unmarshal joined: %v", err)
	}
	if !reflect.DeepEqual(joined, ClaimList{"user", "admin", "ops"}) {
		t.Fatalf("unexpected joined decode: %v", joined)
	}

	var decoded Claims
	if err := json.Unmarshal([]byte(`{"sub":"x","type":"ACCESS"}`), &decoded); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}
	if decoded.Roles != nil {
		t.Fatal("absent roles claim must decode as nil")
	}
	if _, ok := decoded.UserIDValue(); ok {
		t.Fatal("absent userId must be reported as missing")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{SigningMethod: MethodHS256},
		{SigningMethod: "rs256", PrivateKey: []byte("k")},
		{SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: 5 * time.Minute},
		{SigningMethod: MethodEd25519},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}
