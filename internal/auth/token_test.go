package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStatic(t *testing.T) {
	tests := []struct {
		name     string
		provider Static
		want     string
		wantOK   bool
	}{
		{"with token", Static("abc123"), "abc123", true},
		{"empty", Static(""), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.provider.Token()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Token() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("TABX_TEST_TOKEN", "env-secret")

	if tok, ok := Env("TABX_TEST_TOKEN").Token(); !ok || tok != "env-secret" {
		t.Errorf("Token() = (%q, %v), want env-secret", tok, ok)
	}
	if _, ok := Env("TABX_TEST_TOKEN_UNSET").Token(); ok {
		t.Error("expected no token for unset variable")
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  file-secret\n"), 0o600); err != nil {
		t.Fatalf("writing token file: %v", err)
	}

	if tok, ok := File(path).Token(); !ok || tok != "file-secret" {
		t.Errorf("Token() = (%q, %v), want trimmed file-secret", tok, ok)
	}
	if _, ok := File(filepath.Join(t.TempDir(), "missing")).Token(); ok {
		t.Error("expected no token for missing file")
	}
}

func TestChainOrder(t *testing.T) {
	chain := Chain{Static(""), Static("second"), Static("third")}
	tok, ok := chain.Token()
	if !ok || tok != "second" {
		t.Errorf("Token() = (%q, %v), want first non-empty provider", tok, ok)
	}

	if _, ok := (Chain{Static(""), Static("")}).Token(); ok {
		t.Error("expected empty chain result")
	}
}

func TestRequire(t *testing.T) {
	if _, err := Require(Static("")); err == nil {
		t.Error("expected error without token")
	}
	tok, err := Require(Static("x"))
	if err != nil || tok != "x" {
		t.Errorf("Require() = (%q, %v), want (x, nil)", tok, err)
	}
}
