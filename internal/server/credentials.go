package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"dilemma-server/internal/session"
	"dilemma-server/internal/waitingroom"
)

// Credential binds an opaque token to a participant within one scope. The
// scope is the waiting-room code until the session starts, then the session
// id. ConnID names the live transport currently holding the credential, or
// "" while detached.
type Credential struct {
	Token    string
	Scope    string
	Identity string
	Role     waitingroom.Role
	IssuedAt time.Time
	ConnID   string
}

// CredentialManager issues and validates reconnection credentials. Tokens
// expire after the configured TTL, measured from issue and refreshed on each
// successful attach.
type CredentialManager struct {
	ttl   time.Duration
	mu    sync.RWMutex
	creds map[string]*Credential
}

func NewCredentialManager(ttl time.Duration) *CredentialManager {
	return &CredentialManager{
		ttl:   ttl,
		creds: make(map[string]*Credential),
	}
}

// Issue creates a credential already attached to connID.
func (m *CredentialManager) Issue(scope, identity string, role waitingroom.Role, connID string) string {
	token := uuid.New().String()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[token] = &Credential{
		Token:    token,
		Scope:    scope,
		Identity: identity,
		Role:     role,
		IssuedAt: time.Now(),
		ConnID:   connID,
	}
	return token
}

// Validate looks a token up and checks expiry. Expired tokens are removed.
func (m *CredentialManager) Validate(token string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.creds[token]
	if !ok {
		return Credential{}, session.Unauthorized("unknown credential")
	}
	if time.Since(cred.IssuedAt) > m.ttl {
		delete(m.creds, token)
		return Credential{}, session.Unauthorized("credential expired")
	}
	return *cred, nil
}

// Attach binds a validated token to a new transport. Rejected when the
// credential is already held by another live connection.
func (m *CredentialManager) Attach(token, connID string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.creds[token]
	if !ok {
		return Credential{}, session.Unauthorized("unknown credential")
	}
	if time.Since(cred.IssuedAt) > m.ttl {
		delete(m.creds, token)
		return Credential{}, session.Unauthorized("credential expired")
	}
	if cred.ConnID != "" && cred.ConnID != connID {
		return Credential{}, session.Unauthorized("credential is bound to another live connection")
	}
	cred.ConnID = connID
	cred.IssuedAt = time.Now()
	return *cred, nil
}

// Detach releases the transport binding, keeping the credential valid for a
// later reconnect.
func (m *CredentialManager) Detach(connID string) (Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cred := range m.creds {
		if cred.ConnID == connID {
			cred.ConnID = ""
			return *cred, true
		}
	}
	return Credential{}, false
}

// ByConn returns the credential currently attached to a connection.
func (m *CredentialManager) ByConn(connID string) (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cred := range m.creds {
		if cred.ConnID == connID {
			return *cred, true
		}
	}
	return Credential{}, false
}

// Rebind moves every credential in oldScope to newScope. Called when a
// waiting room hands off to a session.
func (m *CredentialManager) Rebind(oldScope, newScope string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cred := range m.creds {
		if cred.Scope == oldScope {
			cred.Scope = newScope
		}
	}
}

// ForScope returns the credentials bound to a scope.
func (m *CredentialManager) ForScope(scope string) []Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Credential, 0)
	for _, cred := range m.creds {
		if cred.Scope == scope {
			out = append(out, *cred)
		}
	}
	return out
}

// InvalidateScope removes every credential in a scope. Called at session end
// and room closure so stale tokens cannot reconnect.
func (m *CredentialManager) InvalidateScope(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for token, cred := range m.creds {
		if cred.Scope == scope {
			delete(m.creds, token)
		}
	}
}

// Remove deletes a single credential, used when a participant leaves on
// purpose.
func (m *CredentialManager) Remove(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, token)
}
