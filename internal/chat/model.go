package chat

import (
	"fmt"
	"time"
)

const (
	TypeText  = "text"
	TypeMedia = "media"
)

// Message is a private message between two users. Content holds ciphertext
// at rest for text messages; projections handed to the API and the real-time
// layer carry the decrypted form. Media references bypass the codec.
type Message struct {
	ID              string `json:"id"`
	SenderID        int    `json:"senderId"`
	RecipientID     int    `json:"recipientId"`
	Timestamp       int64  `json:"timestamp"`
	Content         string `json:"content"`
	Type            string `json:"type"`
	MediaRef        string `json:"mediaRef,omitempty"`
	IsGhost         bool   `json:"isGhost"`
	GhostDuration   int64  `json:"ghostDuration,omitempty"`
	DeletionTime    int64  `json:"deletionTime,omitempty"`
	IsDelivered     bool   `json:"isDelivered"`
	IsRead          bool   `json:"isRead"`
	PendingApproval bool   `json:"pendingApproval"`
}

// Expired reports whether a ghost message has passed its deadline.
func (m *Message) Expired(now time.Time) bool {
	return m.IsGhost && m.DeletionTime > 0 && now.Unix() >= m.DeletionTime
}

// Conversation tracks the lazily created chat between a pair of users.
type Conversation struct {
	PairKey       string    `json:"pairKey"`
	UserA         int       `json:"userA"`
	UserB         int       `json:"userB"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Summary is one row of a user's conversation list. LastMessage is a
// decrypted projection, never ciphertext.
type Summary struct {
	PairKey     string   `json:"pairKey"`
	PeerID      int      `json:"peerId"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}

// PairKey builds the order-independent conversation identifier for two
// users: the smaller id always comes first, so PairKey(a, b) == PairKey(b, a).
func PairKey(userA, userB int) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}
