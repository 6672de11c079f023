package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

func TestJWTMiddlewareSetsIdentity(t *testing.T) {
	a := NewAuthService("0123456789abcdef0123456789abcdef")
	tok, err := a.IssueJWT("u1", "Ada", "student")
	if err != nil {
		t.Fatal(err)
	}

	var sub, name, role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = SubjectFromContext(r.Context())
		name = NameFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || sub != "u1" || name != "Ada" || role != "student" {
		t.Fatalf("code=%d sub=%q name=%q role=%q", rec.Code, sub, name, role)
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	a := NewAuthService("0123456789abcdef0123456789abcdef")
	other, _ := NewAuthService("another-secret-another-secret-xx").IssueJWT("u1", "", "admin")
	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Sub: "u1", Role: "admin"})
	noneTok, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached")
	}))
	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"wrong secret": "Bearer " + other,
		"alg none":     "Bearer " + noneTok,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("code = %d", rec.Code)
			}
		})
	}
}
