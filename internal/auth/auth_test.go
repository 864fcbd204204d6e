package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_GenerateAndValidate(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken("alice", []string{RoleEditor, "viewer"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.True(t, claims.HasRole(RoleEditor))
	assert.False(t, claims.HasRole("admin"))
}

func TestService_RejectsBadTokens(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	other, err := NewService("other-secret", time.Hour).GenerateToken("bob", nil)
	require.NoError(t, err)
	_, err = svc.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewService("test-secret", -time.Minute).GenerateToken("bob", nil)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "eve"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type lockable struct{ locked bool }

func (l lockable) ReadOnly() bool { return l.locked }

func TestPolicies(t *testing.T) {
	assert.True(t, AllowAll.IsEditable(nil))
	assert.False(t, DenyAll.IsEditable(nil))

	assert.True(t, ReadOnlyPolicy.IsEditable(lockable{}))
	assert.False(t, ReadOnlyPolicy.IsEditable(lockable{locked: true}))
	assert.True(t, ReadOnlyPolicy.IsEditable("plain"))

	editor := &Claims{Subject: "alice", Roles: []string{RoleEditor}}
	viewer := &Claims{Subject: "bob", Roles: []string{"viewer"}}
	assert.True(t, ForClaims(editor).IsEditable(lockable{}))
	assert.False(t, ForClaims(editor).IsEditable(lockable{locked: true}))
	assert.False(t, ForClaims(viewer).IsEditable(lockable{}))
	assert.False(t, ForClaims(nil).IsEditable(lockable{}))
}

func TestClaimsContext(t *testing.T) {
	assert.Nil(t, ClaimsFrom(context.Background()))
	claims := &Claims{Subject: "alice"}
	assert.Same(t, claims, ClaimsFrom(WithClaims(context.Background(), claims)))
}
