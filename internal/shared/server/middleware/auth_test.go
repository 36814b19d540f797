package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func identityRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity())
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userId": UserIDFromContext(c),
			"role":   UserRoleFromContext(c),
		})
	})
	return r
}

func TestIdentityRequiresHeaders(t *testing.T) {
	r := identityRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestIdentityReadsUserHeaders(t *testing.T) {
	r := identityRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-User-Role", "premium")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body := resp.Body.String(); body != `{"role":"premium","userId":"user-1"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestIdentityGuestDefaultsToMember(t *testing.T) {
	r := identityRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Guest-Id", "abc")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body := resp.Body.String(); body != `{"role":"member","userId":"guest:abc"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestIdentityUnknownRoleFallsBackToMember(t *testing.T) {
	r := identityRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-Id", "user-2")
	req.Header.Set("X-User-Role", "superuser")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if body := resp.Body.String(); body != `{"role":"member","userId":"user-2"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}
