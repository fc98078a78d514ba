package server

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Authenticator verifies a client-supplied auth token and returns the
// stable user id it names. Token issuance and verification against an
// identity provider are outside this server's scope; the runtime only
// needs an answer to "who is this", so Authenticator is kept as a narrow
// interface a deployment wires to its own identity layer.
type Authenticator interface {
	Authenticate(token string) (userID string, err error)
}

// StaticAuthenticator is the default Authenticator: it trusts the token
// verbatim as the user id, after trimming whitespace and rejecting the
// empty string. It exists so the server is runnable out of the box in a
// development or single-tenant deployment; production deployments should
// supply their own Authenticator wrapping whatever token verification
// scheme their identity provider uses.
type StaticAuthenticator struct{}

// Authenticate implements Authenticator.
func (StaticAuthenticator) Authenticate(token string) (string, error) {
	userID := strings.TrimSpace(token)
	if userID == "" {
		return "", fmt.Errorf("server: empty auth token")
	}
	return userID, nil
}

// AnonymousAuthenticator mints a random user id for each distinct non-empty
// token, without interpreting the token's content. Useful for local demos and load generation where no
// identity provider is available at all.
type AnonymousAuthenticator struct {
	mu      sync.Mutex
	byToken map[string]string
}

// NewAnonymousAuthenticator constructs an AnonymousAuthenticator.
func NewAnonymousAuthenticator() *AnonymousAuthenticator {
	return &AnonymousAuthenticator{byToken: make(map[string]string)}
}

// Authenticate implements Authenticator, assigning the same minted user id
// to repeated calls with the same token so a reconnecting client keeps its
// identity for the lifetime of the process.
func (a *AnonymousAuthenticator) Authenticate(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("server: empty auth token")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if userID, ok := a.byToken[token]; ok {
		return userID, nil
	}
	userID := uuid.NewString()
	a.byToken[token] = userID
	return userID, nil
}
