package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestJWTAuth(t *testing.T) *JWTAuthMiddleware {
	t.Helper()
	hash, err := HashPassword("correct-password")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return NewJWTAuthMiddleware(&JWTAuthConfig{
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    1,
		SkipPaths: []string{
			"/health",
			"/webhook",
			"/auth/login",
			"/ws/*",
		},
	})
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !CheckPassword("secret", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestValidateCredentials(t *testing.T) {
	m := newTestJWTAuth(t)

	tests := []struct {
		name     string
		username string
		password string
		expected bool
	}{
		{"valid", "admin", "correct-password", true},
		{"wrong password", "admin", "nope", false},
		{"wrong username", "root", "correct-password", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.ValidateCredentials(tt.username, tt.password); got != tt.expected {
				t.Errorf("ValidateCredentials(%q, ...) = %v, want %v", tt.username, got, tt.expected)
			}
		})
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := newTestJWTAuth(t)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("Username = %q, want admin", claims.Username)
	}
	if claims.Issuer != "poundcake" {
		t.Errorf("Issuer = %q, want poundcake", claims.Issuer)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	m := newTestJWTAuth(t)
	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewJWTAuthMiddleware(&JWTAuthConfig{
		JWTSecret:      "different-secret",
		JWTExpiryHours: 1,
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another secret should not validate")
	}
}

func TestJWTAuthMiddleware_Wrap(t *testing.T) {
	m := newTestJWTAuth(t)

	var seenUser string
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name           string
		path           string
		authHeader     string
		expectedStatus int
	}{
		{"skip path without token", "/health", "", http.StatusOK},
		{"skip path exact match", "/webhook", "", http.StatusOK},
		{"wildcard skip path", "/ws/events", "", http.StatusOK},
		{"protected path without token", "/api/alerts", "", http.StatusUnauthorized},
		{"protected path with valid token", "/api/alerts", "Bearer " + token, http.StatusOK},
		{"protected path with garbage token", "/api/alerts", "Bearer garbage", http.StatusUnauthorized},
		{"protected path with non-bearer header", "/api/alerts", "Basic abc", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}
			if tt.expectedStatus == http.StatusUnauthorized {
				if got := w.Header().Get("WWW-Authenticate"); got == "" {
					t.Error("expected WWW-Authenticate header on 401")
				}
			}
		})
	}

	// Authenticated requests expose the username to handlers.
	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seenUser != "admin" {
		t.Errorf("handler saw user %q, want admin", seenUser)
	}
}
