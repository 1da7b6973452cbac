package secrets

import (
	"testing"

	"github.com/fernet/fernet-go"
)

func TestDecrypt(t *testing.T) {
	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	token, err := fernet.EncryptAndSign([]byte("s3cret-password"), &key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	d, err := NewDecryptor(key.Encode())
	if err != nil {
		t.Fatalf("NewDecryptor: %v", err)
	}

	plain, err := d.Decrypt(string(token))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "s3cret-password" {
		t.Errorf("plain = %q, want s3cret-password", plain)
	}

	if got, err := d.Decrypt(""); err != nil || got != "" {
		t.Errorf("Decrypt(\"\") = (%q, %v), want empty and nil", got, err)
	}

	if _, err := d.Decrypt("not-a-fernet-token"); err == nil {
		t.Error("Decrypt of garbage: want error")
	}
}

func TestDecryptPassThrough(t *testing.T) {
	d, err := NewDecryptor("")
	if err != nil {
		t.Fatalf("NewDecryptor: %v", err)
	}
	got, err := d.Decrypt("plain-value")
	if err != nil || got != "plain-value" {
		t.Errorf("Decrypt = (%q, %v), want pass-through", got, err)
	}
}

func TestNewDecryptorBadKey(t *testing.T) {
	if _, err := NewDecryptor("%%%not-base64%%%"); err == nil {
		t.Error("want error for undecodable key")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "****"},
		{"abcdefgh", "****efgh"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
