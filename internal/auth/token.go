// Package auth provides bearer-token credential sources for the Data API.
// Handlers never read tokens from ambient storage directly; a TokenProvider
// is injected into the API client so tests can supply fixed credentials.
package auth

import (
	"fmt"
	"os"
	"strings"
)

// TokenProvider supplies the bearer token for Data API requests.
// Token returns ("", false) when no credential is available; the client
// then issues unauthenticated requests and the server decides.
type TokenProvider interface {
	Token() (string, bool)
}

// Static is a fixed in-memory token. The zero value provides no token.
type Static string

// Token implements TokenProvider.
func (s Static) Token() (string, bool) {
	return string(s), s != ""
}

// Env reads the token from an environment variable on every call, so a
// rotated credential takes effect without restarting long-lived sessions.
type Env string

// Token implements TokenProvider.
func (e Env) Token() (string, bool) {
	v := os.Getenv(string(e))
	return v, v != ""
}

// File reads the token from a file, trimming surrounding whitespace.
type File string

// Token implements TokenProvider.
func (f File) Token() (string, bool) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", false
	}
	tok := strings.TrimSpace(string(data))
	return tok, tok != ""
}

// Chain returns the token from the first provider that has one.
type Chain []TokenProvider

// Token implements TokenProvider.
func (c Chain) Token() (string, bool) {
	for _, p := range c {
		if tok, ok := p.Token(); ok {
			return tok, true
		}
	}
	return "", false
}

// FromConfig builds the standard provider chain: explicit token, then
// token file, then the given environment variable.
func FromConfig(token, tokenFile, envVar string) TokenProvider {
	var chain Chain
	if token != "" {
		chain = append(chain, Static(token))
	}
	if tokenFile != "" {
		chain = append(chain, File(tokenFile))
	}
	if envVar != "" {
		chain = append(chain, Env(envVar))
	}
	return chain
}

// Require returns the token or an error suitable for CLI display.
func Require(p TokenProvider) (string, error) {
	tok, ok := p.Token()
	if !ok {
		return "", fmt.Errorf("no API token configured: set api.token, api.token_file, or the TABX_TOKEN environment variable")
	}
	return tok, nil
}
