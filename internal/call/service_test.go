package call

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghosttalk/internal/apperr"
)

type fakeStore struct {
	mu    sync.Mutex
	calls map[string]*Call
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[string]*Call)}
}

func (s *fakeStore) Create(_ context.Context, c *Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *c
	s.calls[c.ID] = &stored
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *fakeStore) End(_ context.Context, id string, endTime, duration int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calls[id]; ok {
		c.Status = StatusEnded
		c.EndTime = endTime
		c.Duration = duration
	}
	return nil
}

func (s *fakeStore) ListForUser(_ context.Context, userID int) ([]*Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Call
	for _, c := range s.calls {
		if c.Participant(userID) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeIdentity struct{ names map[int]string }

func (f *fakeIdentity) Username(_ context.Context, userID int) (string, error) {
	return f.names[userID], nil
}

type notifyCall struct {
	userID  int
	event   string
	payload any
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) Notify(userID int, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{userID: userID, event: event, payload: payload})
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeNotifier) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := NewService(store, &fakeIdentity{names: map[int]string{1: "alice", 2: "bob"}}, notifier, log)
	svc.now = func() time.Time { return time.Unix(5000, 0) }
	return svc, store, notifier
}

func TestInitiateRingsRecipient(t *testing.T) {
	svc, store, notifier := newTestService(t)

	c, err := svc.Initiate(context.Background(), 1, 2, TypeVideo)
	require.NoError(t, err)
	assert.Equal(t, StatusInitiating, c.Status)
	assert.EqualValues(t, 5000, c.StartTime)
	assert.Contains(t, store.calls, c.ID)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, 2, notifier.calls[0].userID)
	assert.Equal(t, "incoming_call", notifier.calls[0].event)
}

func TestInitiateUnknownRecipient(t *testing.T) {
	svc, _, notifier := newTestService(t)

	_, err := svc.Initiate(context.Background(), 1, 99, TypeAudio)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	assert.Empty(t, notifier.calls)
}

func TestEndComputesDurationAndNotifiesPeer(t *testing.T) {
	svc, store, notifier := newTestService(t)

	c, err := svc.Initiate(context.Background(), 1, 2, TypeAudio)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Unix(5042, 0) }
	duration, err := svc.End(context.Background(), c.ID, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 42, duration)
	assert.Equal(t, StatusEnded, store.calls[c.ID].Status)

	// incoming_call to recipient, then call_ended notification to caller.
	require.Len(t, notifier.calls, 2)
	assert.Equal(t, 1, notifier.calls[1].userID)
	assert.Equal(t, "notification", notifier.calls[1].event)
}

func TestEndByNonParticipantForbidden(t *testing.T) {
	svc, store, _ := newTestService(t)

	c, err := svc.Initiate(context.Background(), 1, 2, TypeAudio)
	require.NoError(t, err)

	_, err = svc.End(context.Background(), c.ID, 3)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
	assert.Equal(t, StatusInitiating, store.calls[c.ID].Status)
}

func TestEndTwiceIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)

	c, err := svc.Initiate(context.Background(), 1, 2, TypeAudio)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Unix(5010, 0) }
	first, err := svc.End(context.Background(), c.ID, 1)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Unix(6000, 0) }
	second, err := svc.End(context.Background(), c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEndUnknownCall(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.End(context.Background(), "nope", 1)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
