package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPICredentials(t *testing.T) {
	key, secret, err := GenerateAPICredentials()
	if err != nil {
		t.Fatalf("GenerateAPICredentials error: %v", err)
	}
	if !strings.HasPrefix(key, "sk_") {
		t.Fatalf("expected sk_ prefix on key, got %q", key)
	}
	if len(key) != len("sk_")+32 {
		t.Fatalf("unexpected key length %d", len(key))
	}
	if len(secret) != 64 {
		t.Fatalf("unexpected secret length %d", len(secret))
	}

	key2, secret2, err := GenerateAPICredentials()
	if err != nil {
		t.Fatalf("GenerateAPICredentials error: %v", err)
	}
	if key == key2 || secret == secret2 {
		t.Fatalf("credentials must be unique per call")
	}
}
