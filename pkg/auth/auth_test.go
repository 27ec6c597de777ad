package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func newManager() *Manager {
	return NewManager(config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
}

func TestIssueAndParse(t *testing.T) {
	m := newManager()
	token, err := m.Issue("u1", RoleManager)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != RoleManager {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := m.Issue("u1", "root"); err == nil {
		t.Error("unknown role must not be issued")
	}
}

func TestParseRejects(t *testing.T) {
	m := newManager()

	expired := newManager()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Issue("u1", RoleCustomer)

	other := NewManager(config.AuthConfig{JWTSecret: "other", TokenTTL: time.Hour})
	forged, _ := other.Issue("u1", RoleAdmin)

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: "u1",
		Role:   RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", old},
		{"wrong secret", forged},
		{"alg none", unsigned},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Parse(tt.token); !errors.Is(err, apperr.ErrUnauthorized) {
				t.Errorf("err = %v, want unauthorized", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager()
	onError := func(c *gin.Context, err error) {
		c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"message": err.Error()})
	}

	r := gin.New()
	r.GET("/me", Authenticate(m, onError), func(c *gin.Context) {
		id, _ := FromContext(c)
		c.String(http.StatusOK, id.UserID)
	})
	r.GET("/admin", Authenticate(m, onError), RequireRole(onError, RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	customer, _ := m.Issue("u1", RoleCustomer)
	admin, _ := m.Issue("a1", RoleAdmin)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + customer, http.StatusUnauthorized},
		{"customer", "/me", "Bearer " + customer, http.StatusOK},
		{"customer on admin route", "/admin", "Bearer " + customer, http.StatusForbidden},
		{"admin", "/admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
