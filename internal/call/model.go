package call

const (
	StatusInitiating = "initiating"
	StatusEnded      = "ended"

	TypeAudio = "audio"
	TypeVideo = "video"
)

// Call is one call attempt between two users. Created on initiate, mutated
// exactly once on end, never deleted.
type Call struct {
	ID          string `json:"callId"`
	CallerID    int    `json:"callerId"`
	RecipientID int    `json:"recipientId"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	StartTime   int64  `json:"startTime"`
	EndTime     int64  `json:"endTime,omitempty"`
	Duration    int64  `json:"duration,omitempty"`
}

// Participant reports whether userID is on either side of the call.
func (c *Call) Participant(userID int) bool {
	return c.CallerID == userID || c.RecipientID == userID
}

// Other returns the counterpart of userID in the call.
func (c *Call) Other(userID int) int {
	if userID == c.CallerID {
		return c.RecipientID
	}
	return c.CallerID
}
