package user

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"ghosttalk/internal/apperr"
	"ghosttalk/internal/hub"
)

// Notifier pushes friend-request events to the real-time channel.
// Best-effort: a failed notification never fails the request itself.
type Notifier interface {
	Notify(userID int, event string, payload any)
}

// Service is the identity provider: token issuance and verification,
// friendship, approval settings, presence. The chat and call engines
// consume it through their own narrow interfaces.
type Service struct {
	repo      *Repository
	notifier  Notifier
	log       *logrus.Logger
	jwtSecret string
}

type MyJWTClaims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, notifier Notifier, secret string, log *logrus.Logger) *Service {
	return &Service{
		repo:      repo,
		notifier:  notifier,
		jwtSecret: secret,
		log:       log,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*RegisterRequest, error) {
	if req.Username == "" || req.Password == "" {
		return nil, apperr.Invalid("username and password are required")
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username: req.Username,
		Password: string(hashedPwd),
	}

	if _, err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	return &RegisterRequest{Username: u.Username}, nil
}

func (s *Service) Login(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, err
	}

	ss, err := s.issueToken(u.ID, u.Username)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Username:    u.Username,
	}, nil
}

func (s *Service) issueToken(id int, username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       id,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ghosttalk",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return 0, "", err
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, query)
}

// UserSettings implements the lifecycle engine's identity lookup.
func (s *Service) UserSettings(ctx context.Context, userID int) (bool, bool, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return false, false, err
	}
	if u == nil {
		return false, false, nil
	}
	return u.RequireApproval, true, nil
}

// Username returns "" for unknown users; the call relay treats that as
// recipient-not-found.
func (s *Service) Username(ctx context.Context, userID int) (string, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", nil
	}
	return u.Username, nil
}

func (s *Service) IsFriend(ctx context.Context, userA, userB int) (bool, error) {
	return s.repo.AreFriends(ctx, userA, userB)
}

func (s *Service) SetRequireApproval(ctx context.Context, userID int, required bool) error {
	return s.repo.SetRequireApproval(ctx, userID, required)
}

// SendFriendRequest records the request and pings the recipient's channel.
func (s *Service) SendFriendRequest(ctx context.Context, senderID int, recipientUsername string) error {
	recipient, err := s.repo.GetUserByUsername(ctx, recipientUsername)
	if err != nil {
		return apperr.NotFound("recipient not found")
	}
	if recipient.ID == senderID {
		return apperr.Invalid("cannot befriend yourself")
	}

	already, err := s.repo.AreFriends(ctx, senderID, recipient.ID)
	if err != nil {
		return apperr.Unavailable("could not check friendship", err)
	}
	if already {
		return apperr.Invalid("already friends")
	}

	requestID, err := s.repo.CreateFriendRequest(ctx, senderID, recipient.ID)
	if err != nil {
		return apperr.Unavailable("could not create friend request", err)
	}

	senderName, _ := s.Username(ctx, senderID)
	s.notifier.Notify(recipient.ID, hub.EventFriendRequest, map[string]any{
		"requestId":  requestID,
		"senderId":   senderID,
		"senderName": senderName,
		"timestamp":  time.Now().Unix(),
	})
	return nil
}

// AcceptFriendRequest turns a pending request into a mutual friendship and
// notifies the original sender.
func (s *Service) AcceptFriendRequest(ctx context.Context, requestID, userID int) error {
	req, err := s.repo.GetFriendRequest(ctx, requestID)
	if err != nil {
		return apperr.Unavailable("could not load friend request", err)
	}
	if req == nil {
		return apperr.NotFound("friend request not found")
	}
	if req.RecipientID != userID {
		return apperr.Forbidden("not the recipient of this request")
	}

	if err := s.repo.AcceptFriendRequest(ctx, requestID); err != nil {
		return apperr.Unavailable("could not accept friend request", err)
	}

	accepterName, _ := s.Username(ctx, userID)
	s.notifier.Notify(req.SenderID, hub.EventNotification, map[string]any{
		"category":  "friend_request_accepted",
		"userId":    userID,
		"userName":  accepterName,
		"timestamp": time.Now().Unix(),
	})
	return nil
}

func (s *Service) PendingRequests(ctx context.Context, userID int) ([]FriendRequest, error) {
	return s.repo.ListPendingRequests(ctx, userID)
}
