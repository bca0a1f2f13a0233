package chat

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghosttalk/internal/crypto"
)

// ---- fakes -----------------------------------------------------------------

type fakeStore struct {
	mu       sync.Mutex
	messages map[string]*Message
	convs    map[string]string // pair key -> last message id
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string]*Message), convs: make(map[string]string)}
}

func (s *fakeStore) SaveMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *msg
	s.messages[msg.ID] = &stored
	return nil
}

func (s *fakeStore) TouchConversation(_ context.Context, userA, userB int, lastID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[PairKey(userA, userB)] = lastID
	return nil
}

func (s *fakeStore) MessagesBetween(_ context.Context, userA, userB int, now int64) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair := PairKey(userA, userB)
	var out []*Message
	for _, msg := range s.messages {
		if PairKey(msg.SenderID, msg.RecipientID) != pair {
			continue
		}
		if msg.DeletionTime > 0 && msg.DeletionTime <= now {
			continue
		}
		copied := *msg
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeStore) GetMessage(_ context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (s *fakeStore) MarkDelivered(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			msg.IsDelivered = true
		}
	}
	return nil
}

func (s *fakeStore) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[id]; ok {
		msg.IsRead = true
		msg.IsDelivered = true
	}
	return nil
}

func (s *fakeStore) DeleteExpired(_ context.Context, now int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reaped int64
	for id, msg := range s.messages {
		if msg.DeletionTime > 0 && msg.DeletionTime <= now {
			delete(s.messages, id)
			reaped++
		}
	}
	return reaped, nil
}

func (s *fakeStore) ListConversations(_ context.Context, userID int) ([]*Summary, error) {
	return nil, nil
}

type fakeIdentity struct {
	users   map[int]bool // user id -> requireApproval
	friends map[string]bool
}

func (f *fakeIdentity) UserSettings(_ context.Context, userID int) (bool, bool, error) {
	requireApproval, found := f.users[userID]
	return requireApproval, found, nil
}

func (f *fakeIdentity) IsFriend(_ context.Context, a, b int) (bool, error) {
	return f.friends[PairKey(a, b)], nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []*Message
	events    []string
}

func (f *fakeNotifier) DeliverMessage(_ int, msg *Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, msg)
}

func (f *fakeNotifier) Notify(_ int, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fixedKeys struct{ key []byte }

func (f fixedKeys) GetOrCreateKey(context.Context, string) []byte { return f.key }

// ---- harness ---------------------------------------------------------------

type harness struct {
	service  *Service
	store    *fakeStore
	identity *fakeIdentity
	notifier *fakeNotifier
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &harness{
		store: newFakeStore(),
		identity: &fakeIdentity{
			users:   map[int]bool{1: false, 2: false},
			friends: map[string]bool{},
		},
		notifier: &fakeNotifier{},
		clock:    time.Unix(1_700_000_000, 0),
	}
	h.service = NewService(h.store, h.identity, fixedKeys{key: testKey()}, h.notifier, log)
	h.service.now = func() time.Time { return h.clock }

	seq := 0
	h.service.newID = func() string {
		seq++
		return fmt.Sprintf("msg-%d", seq)
	}
	return h
}

func testKey() []byte {
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

// ---- tests -----------------------------------------------------------------

func TestSendMessageEncryptsAtRest(t *testing.T) {
	h := newHarness(t)
	h.identity.users[2] = false

	msg, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2,
		Content:     "hello",
	})
	require.NoError(t, err)

	// Caller and fan-out see plaintext; the store sees ciphertext.
	assert.Equal(t, "hello", msg.Content)
	stored := h.store.messages[msg.ID]
	require.NotNil(t, stored)
	assert.NotEqual(t, "hello", stored.Content)

	decoded, ok := crypto.Decrypt(stored.Content, testKey())
	assert.True(t, ok)
	assert.Equal(t, "hello", decoded)
}

func TestSendMessageGhostDeadline(t *testing.T) {
	h := newHarness(t)
	h.identity.users[2] = false

	msg, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID:   2,
		Content:       "vanishes",
		IsGhost:       true,
		GhostDuration: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, h.clock.Unix()+60, msg.DeletionTime)

	plain, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2,
		Content:     "stays",
	})
	require.NoError(t, err)
	assert.Zero(t, plain.DeletionTime)
}

func TestSendMessageGhostNeedsDuration(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2, Content: "x", IsGhost: true,
	})
	assert.Error(t, err)
}

func TestSendMessageApprovalGating(t *testing.T) {
	h := newHarness(t)
	h.identity.users[2] = true

	// Not friends: message is pending.
	msg, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2, Content: "hello",
	})
	require.NoError(t, err)
	assert.True(t, msg.PendingApproval)
	require.Len(t, h.notifier.delivered, 1)
	assert.True(t, h.notifier.delivered[0].PendingApproval)

	// Once friends, subsequent sends are not pending; the first message is
	// not re-evaluated.
	h.identity.friends[PairKey(1, 2)] = true
	second, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2, Content: "hello again",
	})
	require.NoError(t, err)
	assert.False(t, second.PendingApproval)
	assert.True(t, h.store.messages[msg.ID].PendingApproval)
}

func TestSendMessageRecipientNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 99, Content: "hello",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSendMessageMediaBypassesCodec(t *testing.T) {
	h := newHarness(t)
	msg, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2, Content: "uploads/clip.ogg", Type: TypeMedia, MediaRef: "uploads/clip.ogg",
	})
	require.NoError(t, err)
	assert.Equal(t, "uploads/clip.ogg", h.store.messages[msg.ID].Content)
}

func TestFetchHistoryWindowAndDecryption(t *testing.T) {
	h := newHarness(t)

	for i, text := range []string{"one", "two", "three"} {
		h.clock = time.Unix(1_700_000_000+int64(i), 0)
		_, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
			RecipientID: 2, Content: text,
		})
		require.NoError(t, err)
	}

	window, err := h.service.FetchHistory(context.Background(), 2, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "two", window[0].Content)
}

func TestFetchHistoryClampsWindow(t *testing.T) {
	h := newHarness(t)

	for _, text := range []string{"one", "two"} {
		_, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
			RecipientID: 2, Content: text,
		})
		require.NoError(t, err)
	}

	// Negative offset and limit come straight off the query string; they
	// mean "no window", never a panic.
	all, err := h.service.FetchHistory(context.Background(), 2, 1, -5, -1)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Offset past the end is an empty window, not an error.
	empty, err := h.service.FetchHistory(context.Background(), 2, 1, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFetchHistoryMarksDelivered(t *testing.T) {
	h := newHarness(t)

	msg, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2, Content: "hello",
	})
	require.NoError(t, err)
	assert.False(t, h.store.messages[msg.ID].IsDelivered)

	// The recipient fetching history is the delivery confirmation.
	history, err := h.service.FetchHistory(context.Background(), 2, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsDelivered)
	assert.True(t, h.store.messages[msg.ID].IsDelivered)

	// The sender fetching does not confirm delivery of their own messages.
	msg2, err := h.service.SendMessage(context.Background(), 2, &SendRequest{
		RecipientID: 1, Content: "reply",
	})
	require.NoError(t, err)
	_, err = h.service.FetchHistory(context.Background(), 2, 1, 0, 0)
	require.NoError(t, err)
	assert.False(t, h.store.messages[msg2.ID].IsDelivered)
}

func TestFetchHistoryHidesExpiredGhosts(t *testing.T) {
	h := newHarness(t)

	ghost, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2, Content: "boo", IsGhost: true, GhostDuration: 30,
	})
	require.NoError(t, err)

	visible, err := h.service.FetchHistory(context.Background(), 2, 1, 0, 0)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	// Past the deadline the row is invisible even though the reaper has
	// not run yet.
	h.clock = h.clock.Add(31 * time.Second)
	hidden, err := h.service.FetchHistory(context.Background(), 2, 1, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, hidden)
	assert.Contains(t, h.store.messages, ghost.ID)

	reaped, err := h.store.DeleteExpired(context.Background(), h.clock.Unix())
	require.NoError(t, err)
	assert.EqualValues(t, 1, reaped)
	assert.NotContains(t, h.store.messages, ghost.ID)
}

func TestMarkReadImpliesDelivered(t *testing.T) {
	h := newHarness(t)

	msg, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2, Content: "hello",
	})
	require.NoError(t, err)

	require.NoError(t, h.service.MarkRead(context.Background(), msg.ID, 2))
	stored := h.store.messages[msg.ID]
	assert.True(t, stored.IsRead)
	assert.True(t, stored.IsDelivered)

	// markDelivered after markRead is a no-op, never a downgrade.
	require.NoError(t, h.service.MarkDelivered(context.Background(), msg.ID, 2))
	assert.True(t, stored.IsRead)
	assert.True(t, stored.IsDelivered)

	// Idempotent.
	require.NoError(t, h.service.MarkRead(context.Background(), msg.ID, 2))
}

func TestMarkReadOnlyRecipient(t *testing.T) {
	h := newHarness(t)

	msg, err := h.service.SendMessage(context.Background(), 1, &SendRequest{
		RecipientID: 2, Content: "hello",
	})
	require.NoError(t, err)

	err = h.service.MarkRead(context.Background(), msg.ID, 1)
	require.Error(t, err)

	err = h.service.MarkRead(context.Background(), "missing", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
