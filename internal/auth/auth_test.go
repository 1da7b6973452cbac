package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shellgate/bastion/internal/database"
)

func testStore(t *testing.T) *TokenStore {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tokens := []database.AccessToken{
		{Token: "tok-valid", Username: "alice", ExpiresAt: now.Add(time.Hour)},
		{Token: "tok-expired", Username: "bob", ExpiresAt: now.Add(-time.Hour)},
		{Token: "tok-no-expiry", Username: "carol"},
	}
	for i := range tokens {
		if err := db.Create(&tokens[i]).Error; err != nil {
			t.Fatalf("seed token: %v", err)
		}
	}

	store := NewTokenStore(db)
	store.SetNowFunc(func() time.Time { return now })
	return store
}

func TestValidate(t *testing.T) {
	store := testStore(t)
	tests := []struct {
		name     string
		token    string
		wantUser string
		wantOK   bool
	}{
		{"valid", "tok-valid", "alice", true},
		{"expired", "tok-expired", "", false},
		{"no expiry set", "tok-no-expiry", "carol", true},
		{"unknown", "tok-nope", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, ok := store.Validate(tt.token)
			if ok != tt.wantOK || user != tt.wantUser {
				t.Errorf("Validate(%q) = (%q, %v), want (%q, %v)", tt.token, user, ok, tt.wantUser, tt.wantOK)
			}
		})
	}
}
