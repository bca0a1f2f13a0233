package chat

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ghosttalk/internal/apperr"
	"ghosttalk/internal/crypto"
)

// Store is what the lifecycle engine needs from persistence.
type Store interface {
	SaveMessage(ctx context.Context, msg *Message) error
	TouchConversation(ctx context.Context, userA, userB int, lastMessageID string) error
	MessagesBetween(ctx context.Context, userA, userB int, now int64) ([]*Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	MarkDelivered(ctx context.Context, ids []string) error
	MarkRead(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now int64) (int64, error)
	ListConversations(ctx context.Context, userID int) ([]*Summary, error)
}

// Identity is the slice of the identity provider the engine consults at
// send time.
type Identity interface {
	// UserSettings reports the recipient's approval policy; found is false
	// when the user does not exist.
	UserSettings(ctx context.Context, userID int) (requireApproval, found bool, err error)
	IsFriend(ctx context.Context, userA, userB int) (bool, error)
}

// Notifier is the real-time fan-out. Both calls are fire-and-forget: no
// delivery guarantee, and failures must never fail the send itself.
type Notifier interface {
	DeliverMessage(recipientID int, msg *Message)
	Notify(userID int, event string, payload any)
}

// Keys hands out the per-conversation symmetric key.
type Keys interface {
	GetOrCreateKey(ctx context.Context, pairKey string) []byte
}

// Service is the message lifecycle engine: approval gating, encryption,
// ghost deadlines, delivered/read transitions.
type Service struct {
	store    Store
	identity Identity
	keys     Keys
	notifier Notifier
	log      *logrus.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(store Store, identity Identity, keys Keys, notifier Notifier, log *logrus.Logger) *Service {
	return &Service{
		store:    store,
		identity: identity,
		keys:     keys,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

type SendRequest struct {
	RecipientID   int    `json:"recipientId"`
	Content       string `json:"content"`
	Type          string `json:"type"`
	MediaRef      string `json:"mediaRef"`
	IsGhost       bool   `json:"isGhost"`
	GhostDuration int64  `json:"ghostDuration"`
}

// SendMessage runs the full send path: recipient validation, approval
// gating, encryption, ghost deadline, persistence, then best-effort
// real-time delivery. The returned projection carries the plaintext.
func (s *Service) SendMessage(ctx context.Context, senderID int, req *SendRequest) (*Message, error) {
	if req.Type == "" {
		req.Type = TypeText
	}
	if req.Type != TypeText && req.Type != TypeMedia {
		return nil, apperr.Invalid("unknown message type")
	}
	if req.IsGhost && req.GhostDuration <= 0 {
		return nil, apperr.Invalid("ghost messages need a positive ghostDuration")
	}

	requireApproval, found, err := s.identity.UserSettings(ctx, req.RecipientID)
	if err != nil {
		return nil, apperr.Unavailable("could not look up recipient", err)
	}
	if !found {
		return nil, apperr.NotFound("recipient not found")
	}

	// pendingApproval is evaluated at send time only; a later friendship
	// change does not rewrite old messages.
	pending := false
	if requireApproval {
		friends, err := s.identity.IsFriend(ctx, senderID, req.RecipientID)
		if err != nil {
			return nil, apperr.Unavailable("could not check friendship", err)
		}
		pending = !friends
	}

	now := s.now().Unix()
	msg := &Message{
		ID:              s.newID(),
		SenderID:        senderID,
		RecipientID:     req.RecipientID,
		Timestamp:       now,
		Content:         req.Content,
		Type:            req.Type,
		MediaRef:        req.MediaRef,
		IsGhost:         req.IsGhost,
		PendingApproval: pending,
	}
	if req.IsGhost {
		msg.GhostDuration = req.GhostDuration
		msg.DeletionTime = now + req.GhostDuration
	}

	stored := *msg
	if msg.Type == TypeText {
		key := s.keys.GetOrCreateKey(ctx, PairKey(senderID, req.RecipientID))
		ciphertext, err := crypto.Encrypt(msg.Content, key)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "could not encrypt message", err)
		}
		stored.Content = ciphertext
	}

	if err := s.store.SaveMessage(ctx, &stored); err != nil {
		return nil, apperr.Unavailable("could not persist message", err)
	}
	if err := s.store.TouchConversation(ctx, senderID, req.RecipientID, msg.ID); err != nil {
		// The message is durable; the pointer catches up on the next send.
		s.log.WithError(err).WithField("message", msg.ID).
			Warn("could not update conversation pointer")
	}

	// Fan-out gets the plaintext projection, never ciphertext. Best-effort:
	// an offline recipient recovers the message via history.
	s.notifier.DeliverMessage(req.RecipientID, msg)

	return msg, nil
}

// FetchHistory returns the decrypted conversation window between userID and
// peerID, oldest first. Fetching marks the caller's undelivered inbound
// messages as delivered (write-on-read).
func (s *Service) FetchHistory(ctx context.Context, userID, peerID, limit, offset int) ([]*Message, error) {
	now := s.now()
	messages, err := s.store.MessagesBetween(ctx, userID, peerID, now.Unix())
	if err != nil {
		return nil, apperr.Unavailable("could not load history", err)
	}

	// The window is applied over the merged, time-sorted sequence, not
	// pushed down to the store. Query params arrive unvalidated, so both
	// bounds are clamped rather than trusted.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})
	if offset < 0 {
		offset = 0
	}
	if offset > len(messages) {
		offset = len(messages)
	}
	messages = messages[offset:]
	if limit > 0 && limit < len(messages) {
		messages = messages[:limit]
	}

	var key []byte
	var undelivered []string
	for _, msg := range messages {
		if msg.Type == TypeText {
			if key == nil {
				key = s.keys.GetOrCreateKey(ctx, PairKey(userID, peerID))
			}
			// Per-message failures render the placeholder; they never
			// abort the batch.
			msg.Content, _ = crypto.Decrypt(msg.Content, key)
		}
		if msg.RecipientID == userID && !msg.IsDelivered {
			undelivered = append(undelivered, msg.ID)
			msg.IsDelivered = true
		}
	}

	if len(undelivered) > 0 {
		if err := s.store.MarkDelivered(ctx, undelivered); err != nil {
			s.log.WithError(err).WithField("count", len(undelivered)).
				Warn("could not mark messages delivered")
		}
	}
	return messages, nil
}

// MarkRead flips a message to read (and therefore delivered). Only the
// recipient may do this; the transition is idempotent and monotonic.
func (s *Service) MarkRead(ctx context.Context, messageID string, userID int) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return apperr.Unavailable("could not load message", err)
	}
	if msg == nil {
		return apperr.NotFound("message not found")
	}
	if msg.RecipientID != userID {
		return apperr.Forbidden("only the recipient can mark a message read")
	}
	if msg.IsRead {
		return nil
	}
	if err := s.store.MarkRead(ctx, messageID); err != nil {
		return apperr.Unavailable("could not mark message read", err)
	}
	return nil
}

// MarkDelivered is the explicit delivery confirmation. A no-op once the
// message is delivered or read; it never downgrades state.
func (s *Service) MarkDelivered(ctx context.Context, messageID string, userID int) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return apperr.Unavailable("could not load message", err)
	}
	if msg == nil {
		return apperr.NotFound("message not found")
	}
	if msg.RecipientID != userID {
		return apperr.Forbidden("only the recipient can confirm delivery")
	}
	if msg.IsDelivered || msg.IsRead {
		return nil
	}
	if err := s.store.MarkDelivered(ctx, []string{messageID}); err != nil {
		return apperr.Unavailable("could not mark message delivered", err)
	}
	return nil
}

// ListConversations returns the caller's conversation list with decrypted
// last-message previews.
func (s *Service) ListConversations(ctx context.Context, userID int) ([]*Summary, error) {
	summaries, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, apperr.Unavailable("could not list conversations", err)
	}
	now := s.now()
	for _, summary := range summaries {
		msg := summary.LastMessage
		if msg == nil {
			continue
		}
		if msg.Expired(now) {
			summary.LastMessage = nil
			continue
		}
		if msg.Type == TypeText {
			key := s.keys.GetOrCreateKey(ctx, summary.PairKey)
			msg.Content, _ = crypto.Decrypt(msg.Content, key)
		}
	}
	return summaries, nil
}

// RunReaper deletes expired ghost messages on a ticker until ctx is done.
// Fetch paths filter expired rows regardless, so the reaper only reclaims
// storage; it is not a correctness gate.
func (s *Service) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := s.store.DeleteExpired(ctx, s.now().Unix())
			if err != nil {
				s.log.WithError(err).Warn("ghost reaper sweep failed")
				continue
			}
			if reaped > 0 {
				s.log.WithField("reaped", reaped).Info("removed expired ghost messages")
			}
		}
	}
}
