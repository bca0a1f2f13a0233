package hub

import "encoding/json"

// Wire event types. Server → client unless noted.
const (
	EventMessage        = "message"
	EventMessageRequest = "message_request"
	EventNotification   = "notification"
	EventIncomingCall   = "incoming_call"
	EventFriendRequest  = "friend_request"
	EventTyping         = "typing" // both directions
	EventRoomMessage    = "room_message"

	// WebRTC signaling, relayed opaquely in both directions.
	EventRTCOffer        = "rtc_offer"
	EventRTCAnswer       = "rtc_answer"
	EventRTCICECandidate = "rtc_ice_candidate"
	EventRTCCallEnd      = "rtc_call_end"

	// Client → server room control.
	EventJoin  = "join"
	EventLeave = "leave"
)

// Envelope is the JSON frame on the websocket: {"type": ..., "data": ...}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func MarshalEvent(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Data: raw})
}

// clientEvent is what we accept from the browser. Unknown fields for a given
// type are simply ignored.
type clientEvent struct {
	Type     string          `json:"type"`
	Room     string          `json:"room,omitempty"`
	TargetID int             `json:"targetId,omitempty"`
	PeerID   int             `json:"peerId,omitempty"`
	IsTyping bool            `json:"isTyping,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}
