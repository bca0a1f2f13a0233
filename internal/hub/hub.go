package hub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ghosttalk/internal/chat"
)

// PresenceStore persists the online flag and last-seen timestamp.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID int, online bool, lastSeen int64) error
}

const presenceWriteTimeout = 5 * time.Second

type controlKind int

const (
	ctrlJoinRoom controlKind = iota
	ctrlLeaveRoom
)

type controlMsg struct {
	kind   controlKind
	client *Client
	room   string
}

// Hub is the presence registry and fan-out router. A single goroutine
// (Run) owns the membership maps; everything reaches it through channels,
// so the maps need no locks. Delivery is at-most-once and best-effort:
// events for users with no connection on any instance are dropped, and
// durable state stays in the store.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	control    chan controlMsg
	local      chan BrokerMessage // loopback when the broker is unreachable

	users map[int]map[*Client]bool
	rooms map[string]map[*Client]bool

	broker   Broker
	presence PresenceStore
	log      *logrus.Logger
}

func New(broker Broker, presence PresenceStore, log *logrus.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		control:    make(chan controlMsg),
		local:      make(chan BrokerMessage, 256),
		users:      make(map[int]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broker:     broker,
		presence:   presence,
		log:        log,
	}
}

// Run owns the registry until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	inbound, err := h.broker.Subscribe(ctx, "user:*", "room:*")
	if err != nil {
		// Without the broker subscription only loopback delivery works;
		// keep running so single-instance deployments stay functional.
		h.log.WithError(err).Error("broker subscribe failed, running in loopback mode")
		inbound = nil
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			conns := h.users[client.userID]
			if conns == nil {
				conns = make(map[*Client]bool)
				h.users[client.userID] = conns
			}
			conns[client] = true
			// Only the first connection flips the user online; extra
			// devices just raise the count.
			if len(conns) == 1 {
				go h.writePresence(client.userID, true)
			}

		case client := <-h.unregister:
			h.dropClient(client)

		case msg := <-h.control:
			switch msg.kind {
			case ctrlJoinRoom:
				members := h.rooms[msg.room]
				if members == nil {
					members = make(map[*Client]bool)
					h.rooms[msg.room] = members
				}
				members[msg.client] = true
				msg.client.rooms[msg.room] = true
			case ctrlLeaveRoom:
				h.removeFromRoom(msg.client, msg.room)
				delete(msg.client.rooms, msg.room)
			}

		case bm := <-h.local:
			h.dispatch(bm)

		case bm, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			h.dispatch(bm)
		}
	}
}

// dispatch fans a broker payload out to the local connections subscribed to
// its channel. A full client buffer means a dead or hopelessly slow peer;
// the remedy is dropping the connection, not queueing.
func (h *Hub) dispatch(bm BrokerMessage) {
	var targets map[*Client]bool
	if userID, ok := parseUserChannel(bm.Channel); ok {
		targets = h.users[userID]
	} else if room, ok := parseRoomChannel(bm.Channel); ok {
		targets = h.rooms[room]
	}

	for client := range targets {
		select {
		case client.send <- bm.Payload:
		default:
			h.dropClient(client)
		}
	}
}

// dropClient takes a connection out of the user map and every room it joined,
// then closes its send channel. Shared by the unregister path and the
// slow-client drop in dispatch so presence accounting cannot diverge between
// the two: the offline flip happens exactly when the last connection goes,
// however it goes. Must run on the hub goroutine.
func (h *Hub) dropClient(client *Client) {
	conns, ok := h.users[client.userID]
	if !ok || !conns[client] {
		return
	}
	delete(conns, client)
	close(client.send)
	for room := range client.rooms {
		h.removeFromRoom(client, room)
	}
	if len(conns) == 0 {
		delete(h.users, client.userID)
		// Last device gone: now, and only now, the user is offline.
		go h.writePresence(client.userID, false)
	}
}

func (h *Hub) removeFromRoom(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) writePresence(userID int, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
	defer cancel()
	if err := h.presence.SetOnline(ctx, userID, online, time.Now().Unix()); err != nil {
		// Presence is a best-effort side channel; never let it fail a
		// connect or disconnect.
		h.log.WithError(err).WithField("user", userID).Warn("presence update failed")
	}
}

// emit publishes an event to a channel via the broker so every instance
// (including this one) delivers it. If the broker is down we loop the
// payload back locally: degraded to single-instance delivery, not silence.
func (h *Hub) emit(channel, eventType string, data any) {
	payload, err := MarshalEvent(eventType, data)
	if err != nil {
		h.log.WithError(err).WithField("event", eventType).Error("could not marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
	defer cancel()
	if err := h.broker.Publish(ctx, channel, payload); err != nil {
		h.log.WithError(err).WithField("channel", channel).Warn("broker publish failed, delivering locally")
		select {
		case h.local <- BrokerMessage{Channel: channel, Payload: payload}:
		default:
			// Loopback full: drop, per the at-most-once contract.
		}
	}
}

// DeliverMessage routes a freshly sent private message to its recipient.
// Pending-approval messages must not leak their body: the recipient gets a
// generic message_request notification instead.
func (h *Hub) DeliverMessage(recipientID int, msg *chat.Message) {
	if msg.PendingApproval {
		h.emit(userChannel(recipientID), EventMessageRequest, map[string]any{
			"senderId":  msg.SenderID,
			"messageId": msg.ID,
			"timestamp": msg.Timestamp,
		})
		return
	}
	h.emit(userChannel(recipientID), EventMessage, msg)
}

// Notify sends a typed fire-and-forget event to all of a user's devices.
func (h *Hub) Notify(userID int, event string, payload any) {
	h.emit(userChannel(userID), event, payload)
}

// handleClientEvent dispatches one inbound websocket frame. Relay events go
// straight to the broker; room membership changes go through the run loop.
func (h *Hub) handleClientEvent(c *Client, ev *clientEvent) {
	switch ev.Type {
	case EventJoin:
		if ev.Room != "" {
			h.control <- controlMsg{kind: ctrlJoinRoom, client: c, room: ev.Room}
		}
	case EventLeave:
		if ev.Room != "" {
			h.control <- controlMsg{kind: ctrlLeaveRoom, client: c, room: ev.Room}
		}
	case EventRoomMessage:
		if ev.Room != "" {
			h.emit(roomChannel(ev.Room), EventRoomMessage, map[string]any{
				"room":     ev.Room,
				"senderId": c.userID,
				"sender":   c.username,
				"data":     ev.Data,
			})
		}
	case EventTyping:
		if ev.PeerID != 0 {
			h.emit(userChannel(ev.PeerID), EventTyping, map[string]any{
				"userId":   c.userID,
				"isTyping": ev.IsTyping,
			})
		}
	case EventRTCOffer, EventRTCAnswer, EventRTCICECandidate, EventRTCCallEnd:
		// Opaque signaling relay: no inspection of the payload.
		if ev.TargetID != 0 {
			h.emit(userChannel(ev.TargetID), ev.Type, map[string]any{
				"senderId": c.userID,
				"data":     ev.Data,
			})
		}
	default:
		h.log.WithFields(logrus.Fields{"type": ev.Type, "user": c.userID}).
			Debug("ignoring unknown client event")
	}
}
