package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPairKeyOrderIndependent(t *testing.T) {
	cases := []struct {
		a, b int
		want string
	}{
		{1, 2, "1:2"},
		{2, 1, "1:2"},
		{42, 7, "7:42"},
		{5, 5, "5:5"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PairKey(tc.a, tc.b))
		assert.Equal(t, PairKey(tc.a, tc.b), PairKey(tc.b, tc.a))
	}
}

func TestMessageExpired(t *testing.T) {
	now := time.Unix(1000, 0)

	ghost := &Message{IsGhost: true, DeletionTime: 999}
	assert.True(t, ghost.Expired(now))

	future := &Message{IsGhost: true, DeletionTime: 1001}
	assert.False(t, future.Expired(now))

	plain := &Message{IsGhost: false}
	assert.False(t, plain.Expired(now))
}
