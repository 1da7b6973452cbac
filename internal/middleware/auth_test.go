package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shellgate/bastion/internal/auth"
	"github.com/shellgate/bastion/internal/database"
)

func testTokenStore(t *testing.T) *auth.TokenStore {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "mw.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	rec := database.AccessToken{Token: "tok-alice", Username: "alice", ExpiresAt: time.Now().Add(time.Hour)}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed token: %v", err)
	}
	return auth.NewTokenStore(db)
}

func TestRequireAuth(t *testing.T) {
	tokens := testTokenStore(t)

	var sawOperator string
	handler := RequireAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawOperator = GetOperator(r)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantUser   string
	}{
		{"bearer header", "Bearer tok-alice", "", http.StatusOK, "alice"},
		{"query fallback", "", "tok-alice", http.StatusOK, "alice"},
		{"bad token", "Bearer tok-nope", "", http.StatusUnauthorized, ""},
		{"missing token", "", "", http.StatusUnauthorized, ""},
		{"malformed header", "tok-alice", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sawOperator = ""
			url := "/logs"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if sawOperator != tt.wantUser {
				t.Errorf("operator = %q, want %q", sawOperator, tt.wantUser)
			}
		})
	}
}

func TestBearerTokenPrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?token=from-query", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	if got := BearerToken(req); got != "from-header" {
		t.Errorf("BearerToken = %q, want from-header", got)
	}
}

func TestGetOperatorWithoutAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if got := GetOperator(req); got != "" {
		t.Errorf("GetOperator = %q, want empty", got)
	}
}
