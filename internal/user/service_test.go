package user

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService() *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	// Token operations never touch the repository or the notifier.
	return NewService(nil, nil, "test-secret", log)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTokenService()

	token, err := svc.issueToken(7, "alice")
	require.NoError(t, err)

	id, username, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	assert.Equal(t, "alice", username)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := newTokenService()

	token, err := svc.issueToken(7, "alice")
	require.NoError(t, err)

	_, _, err = svc.ValidateToken(token + "x")
	assert.Error(t, err)

	other := NewService(nil, nil, "different-secret", logrus.New())
	_, _, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTokenService()
	_, _, err := svc.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}
