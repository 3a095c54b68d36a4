package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dilemma-server/internal/session"
	"dilemma-server/internal/waitingroom"
)

func TestCredentialManager_IssueAndValidate(t *testing.T) {
	assert := assert.New(t)
	cm := NewCredentialManager(time.Minute)

	token := cm.Issue("ABCD", "alice", waitingroom.RolePlayer, "conn-1")
	assert.NotEmpty(token)

	cred, err := cm.Validate(token)
	assert.NoError(err)
	assert.Equal("ABCD", cred.Scope)
	assert.Equal("alice", cred.Identity)
	assert.Equal(waitingroom.RolePlayer, cred.Role)
	assert.Equal("conn-1", cred.ConnID)
}

func TestCredentialManager_UnknownToken(t *testing.T) {
	cm := NewCredentialManager(time.Minute)

	_, err := cm.Validate("no-such-token")
	assert.Error(t, err)
	assert.Equal(t, session.CodeUnauthorized, session.CodeOf(err))
}

func TestCredentialManager_Expiry(t *testing.T) {
	assert := assert.New(t)
	cm := NewCredentialManager(10 * time.Millisecond)

	token := cm.Issue("ABCD", "alice", waitingroom.RolePlayer, "conn-1")
	time.Sleep(30 * time.Millisecond)

	_, err := cm.Validate(token)
	assert.Error(err)
	assert.Equal(session.CodeUnauthorized, session.CodeOf(err))

	// Expired tokens are removed, not resurrected
	_, err = cm.Attach(token, "conn-2")
	assert.Error(err)
}

func TestCredentialManager_AttachRejectsLiveBinding(t *testing.T) {
	assert := assert.New(t)
	cm := NewCredentialManager(time.Minute)

	token := cm.Issue("ABCD", "alice", waitingroom.RolePlayer, "conn-1")

	// Still attached to conn-1: a second transport cannot steal it.
	_, err := cm.Attach(token, "conn-2")
	assert.Error(err)
	assert.Equal(session.CodeUnauthorized, session.CodeOf(err))

	// After detach, reattach succeeds.
	cred, had := cm.Detach("conn-1")
	assert.True(had)
	assert.Equal("alice", cred.Identity)

	cred, err = cm.Attach(token, "conn-2")
	assert.NoError(err)
	assert.Equal("conn-2", cred.ConnID)
}

func TestCredentialManager_AttachRefreshesTTL(t *testing.T) {
	assert := assert.New(t)
	cm := NewCredentialManager(50 * time.Millisecond)

	token := cm.Issue("ABCD", "alice", waitingroom.RolePlayer, "conn-1")
	cm.Detach("conn-1")

	time.Sleep(30 * time.Millisecond)
	_, err := cm.Attach(token, "conn-2")
	assert.NoError(err)

	// Without the refresh on attach this would now be past the TTL.
	time.Sleep(30 * time.Millisecond)
	_, err = cm.Validate(token)
	assert.NoError(err)
}

func TestCredentialManager_ByConn(t *testing.T) {
	assert := assert.New(t)
	cm := NewCredentialManager(time.Minute)

	cm.Issue("ABCD", "alice", waitingroom.RoleController, "conn-1")

	cred, ok := cm.ByConn("conn-1")
	assert.True(ok)
	assert.Equal("alice", cred.Identity)

	_, ok = cm.ByConn("conn-2")
	assert.False(ok)
}

func TestCredentialManager_RebindMovesScope(t *testing.T) {
	assert := assert.New(t)
	cm := NewCredentialManager(time.Minute)

	t1 := cm.Issue("ABCD", "alice", waitingroom.RoleController, "conn-1")
	t2 := cm.Issue("ABCD", "bob", waitingroom.RolePlayer, "conn-2")
	t3 := cm.Issue("WXYZ", "carol", waitingroom.RolePlayer, "conn-3")

	cm.Rebind("ABCD", "session-1")

	for _, token := range []string{t1, t2} {
		cred, err := cm.Validate(token)
		assert.NoError(err)
		assert.Equal("session-1", cred.Scope)
	}
	cred, err := cm.Validate(t3)
	assert.NoError(err)
	assert.Equal("WXYZ", cred.Scope)

	assert.Len(cm.ForScope("session-1"), 2)
}

func TestCredentialManager_InvalidateScope(t *testing.T) {
	assert := assert.New(t)
	cm := NewCredentialManager(time.Minute)

	t1 := cm.Issue("session-1", "alice", waitingroom.RolePlayer, "conn-1")
	t2 := cm.Issue("WXYZ", "bob", waitingroom.RolePlayer, "conn-2")

	cm.InvalidateScope("session-1")

	_, err := cm.Validate(t1)
	assert.Error(err)
	_, err = cm.Validate(t2)
	assert.NoError(err)
}
