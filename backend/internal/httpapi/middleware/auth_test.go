package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"streamtracker/backend/internal/authservice"
)

func newTestRouter(issuer *authservice.TokenIssuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(issuer))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userId": c.GetUint64("userId"),
			"role":   c.GetString("role"),
		})
	})
	return r
}

func TestAuthRejectsMissingToken(t *testing.T) {
	issuer := authservice.NewTokenIssuer("test-secret", time.Minute, time.Hour)
	r := newTestRouter(issuer)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	issuer := authservice.NewTokenIssuer("test-secret", time.Minute, time.Hour)
	r := newTestRouter(issuer)

	token, _, err := issuer.SignAccess(42, "alice", "editor")
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	// Websocket handshakes cannot set headers from the browser.
	issuer := authservice.NewTokenIssuer("test-secret", time.Minute, time.Hour)
	r := newTestRouter(issuer)

	token, _, err := issuer.SignAccess(42, "alice", "editor")
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestAuthRejectsRefreshToken(t *testing.T) {
	issuer := authservice.NewTokenIssuer("test-secret", time.Minute, time.Hour)
	r := newTestRouter(issuer)

	token, _, err := issuer.SignRefresh(42, "alice", "editor")
	if err != nil {
		t.Fatalf("SignRefresh error: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for refresh token, got %d", w.Code)
	}
}
