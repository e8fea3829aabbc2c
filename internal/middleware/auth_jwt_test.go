package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{
		Sub:  "user-1",
		Plan: "pro",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("SignJWT error: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT error: %v", err)
	}
	if claims.Sub != "user-1" || claims.Plan != "pro" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyJWTRejectsBadSignature(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{Sub: "user-1"})
	if _, err := VerifyJWT("other-secret", token); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestVerifyJWTRejectsExpired(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{
		Sub: "user-1",
		Exp: time.Now().Add(-time.Minute).Unix(),
	})
	if _, err := VerifyJWT("secret", token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestAuthJWTSetsUserContext(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{
		Sub: "user-1",
		Exp: time.Now().Add(time.Hour).Unix(),
	})

	var got string
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got != "user-1" {
		t.Fatalf("user id = %q, want user-1", got)
	}
}

func TestAuthJWTRejectsMissingHeader(t *testing.T) {
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
