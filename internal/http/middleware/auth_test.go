package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/identity"
)

func signedToken(t *testing.T, secret, subject string, role identity.Role) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serve(mw func(http.Handler) http.Handler, req *http.Request, next http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateRejects(t *testing.T) {
	userID := uuid.NewString()
	tests := []struct {
		name   string
		secret string
		header string
	}{
		{name: "missing secret", secret: "", header: "Bearer " + signedToken(t, "secret", userID, identity.RolePatient)},
		{name: "missing header", secret: "secret"},
		{name: "wrong signature", secret: "secret", header: "Bearer " + signedToken(t, "wrong", userID, identity.RolePatient)},
		{name: "subject not uuid", secret: "secret", header: "Bearer " + signedToken(t, "secret", "patient-1", identity.RolePatient)},
		{name: "unknown role", secret: "secret", header: "Bearer " + signedToken(t, "secret", userID, identity.Role("superuser"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(Authenticate(tt.secret), req, func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler must not run")
			})
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
			}
		})
	}
}

func TestAuthenticateStoresPrincipal(t *testing.T) {
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", userID.String(), identity.RoleAttendant))

	called := false
	rec := serve(Authenticate("secret"), req, func(w http.ResponseWriter, r *http.Request) {
		called = true
		p, ok := identity.PrincipalFromContext(r.Context())
		if !ok {
			t.Fatalf("expected principal in context")
		}
		if p.UserID != userID || p.Role != identity.RoleAttendant {
			t.Fatalf("unexpected principal %+v", p)
		}
		w.WriteHeader(http.StatusOK)
	})
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected handler to run, got status %d", rec.Code)
	}
}

func TestAuthenticateAcceptsQueryToken(t *testing.T) {
	token := signedToken(t, "secret", uuid.NewString(), identity.RoleOwner)
	req := httptest.NewRequest(http.MethodGet, "/notifications/ws?access_token="+token, nil)

	rec := serve(Authenticate("secret"), req, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestRequireRoles(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	mw := RequireRoles(identity.RoleOwner, identity.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/owner/history", nil)
	if rec := serve(mw, req, ok); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d without principal, got %d", http.StatusUnauthorized, rec.Code)
	}

	patient := identity.WithPrincipal(req.Context(), identity.Principal{UserID: uuid.New(), Role: identity.RolePatient})
	if rec := serve(mw, req.WithContext(patient), ok); rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d for patient, got %d", http.StatusForbidden, rec.Code)
	}

	owner := identity.WithPrincipal(req.Context(), identity.Principal{UserID: uuid.New(), Role: identity.RoleOwner})
	if rec := serve(mw, req.WithContext(owner), ok); rec.Code != http.StatusOK {
		t.Fatalf("expected status %d for owner, got %d", http.StatusOK, rec.Code)
	}
}
