package user

type User struct {
	ID              int    `json:"id"`
	Username        string `json:"username"`
	Password        string `json:"-"`
	RequireApproval bool   `json:"requireApproval"`
	Online          bool   `json:"online"`
	LastSeen        int64  `json:"lastSeen"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int    `json:"id"`
	Username    string `json:"username"`
}

type FriendRequest struct {
	ID          int    `json:"id"`
	SenderID    int    `json:"senderId"`
	Sender      string `json:"sender,omitempty"`
	RecipientID int    `json:"recipientId"`
}
