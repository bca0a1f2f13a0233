package call

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ghosttalk/internal/apperr"
	"ghosttalk/internal/hub"
)

// Store is the slice of the call table the service needs.
type Store interface {
	Create(ctx context.Context, c *Call) error
	Get(ctx context.Context, id string) (*Call, error)
	End(ctx context.Context, id string, endTime, duration int64) error
	ListForUser(ctx context.Context, userID int) ([]*Call, error)
}

// Identity validates recipients and resolves display names.
type Identity interface {
	Username(ctx context.Context, userID int) (string, error)
}

// Notifier is the real-time channel used to ring the recipient and to tell
// the other party a call ended. Fire-and-forget.
type Notifier interface {
	Notify(userID int, event string, payload any)
}

// Service creates call records and relays their lifecycle events. The
// actual media never touches this server; signaling payloads travel over
// the websocket relay as opaque blobs.
type Service struct {
	store    Store
	identity Identity
	notifier Notifier
	log      *logrus.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(store Store, identity Identity, notifier Notifier, log *logrus.Logger) *Service {
	return &Service{
		store:    store,
		identity: identity,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Initiate records the call and rings the recipient's channel.
func (s *Service) Initiate(ctx context.Context, callerID, recipientID int, callType string) (*Call, error) {
	if callType == "" {
		callType = TypeAudio
	}
	if callType != TypeAudio && callType != TypeVideo {
		return nil, apperr.Invalid("unknown call type")
	}

	recipientName, err := s.identity.Username(ctx, recipientID)
	if err != nil {
		return nil, apperr.Unavailable("could not look up recipient", err)
	}
	if recipientName == "" {
		return nil, apperr.NotFound("recipient not found")
	}

	callerName, err := s.identity.Username(ctx, callerID)
	if err != nil {
		return nil, apperr.Unavailable("could not look up caller", err)
	}

	c := &Call{
		ID:          s.newID(),
		CallerID:    callerID,
		RecipientID: recipientID,
		Type:        callType,
		Status:      StatusInitiating,
		StartTime:   s.now().Unix(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, apperr.Unavailable("could not record call", err)
	}

	s.notifier.Notify(recipientID, hub.EventIncomingCall, map[string]any{
		"callId":     c.ID,
		"callerId":   callerID,
		"callerName": callerName,
		"type":       callType,
	})
	return c, nil
}

// End closes the call. Only a participant may end it; anyone else gets
// Forbidden and the record stays untouched.
func (s *Service) End(ctx context.Context, callID string, userID int) (int64, error) {
	c, err := s.store.Get(ctx, callID)
	if err != nil {
		return 0, apperr.Unavailable("could not load call", err)
	}
	if c == nil {
		return 0, apperr.NotFound("call not found")
	}
	if !c.Participant(userID) {
		return 0, apperr.Forbidden("not a participant of this call")
	}
	if c.Status == StatusEnded {
		return c.Duration, nil
	}

	endTime := s.now().Unix()
	duration := endTime - c.StartTime
	if err := s.store.End(ctx, callID, endTime, duration); err != nil {
		return 0, apperr.Unavailable("could not end call", err)
	}

	s.notifier.Notify(c.Other(userID), hub.EventNotification, map[string]any{
		"type":      "call_ended",
		"callId":    callID,
		"endedBy":   userID,
		"timestamp": endTime,
	})
	return duration, nil
}

func (s *Service) History(ctx context.Context, userID int) ([]*Call, error) {
	calls, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Unavailable("could not load call history", err)
	}
	return calls, nil
}
