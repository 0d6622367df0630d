package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/websocket"
	"github.com/thereayou/roomchat/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token is revoked")
	ErrPasswordTooLong    = errors.New("password exceeds 72 bytes")
)

// bcrypt refuses passwords longer than this many bytes.
const maxPasswordBytes = 72

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Group    string
}

// AuthService issues tokens and resolves them back into identities.
// The blacklist is optional; without it tokens are valid until expiry.
type AuthService struct {
	users      UserStore
	jwtManager *auth.JWTManager
	blacklist  TokenBlacklist
	log        *slog.Logger
	hashCost   int
}

func NewAuthService(users UserStore, jwtManager *auth.JWTManager, blacklist TokenBlacklist, log *slog.Logger) *AuthService {
	return &AuthService{
		users:      users,
		jwtManager: jwtManager,
		blacklist:  blacklist,
		log:        log,
		hashCost:   bcrypt.DefaultCost,
	}
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, string, error) {
	if len(req.Password) > maxPasswordBytes {
		return nil, "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, "", fmt.Errorf("cannot hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Group:        req.Group,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.jwtManager.Generate(user.ID.String())
	if err != nil {
		return nil, "", fmt.Errorf("cannot issue token: %w", err)
	}
	s.log.Info("User registered", "user", user.ID, "group", user.Group)
	return user, token, nil
}

// Login never says whether the email or the password was wrong.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwtManager.Generate(user.ID.String())
	if err != nil {
		return nil, "", fmt.Errorf("cannot issue token: %w", err)
	}
	return user, token, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	exp, err := s.jwtManager.Expiry(token)
	if err != nil {
		return fmt.Errorf("%w: %v", websocket.ErrAuthenticationFailed, err)
	}
	if s.blacklist == nil {
		return nil
	}
	return s.blacklist.Revoke(ctx, token, time.Until(exp))
}

// Verify resolves a bearer token into the identity of an existing user.
func (s *AuthService) Verify(ctx context.Context, token string) (models.Identity, error) {
	user, err := s.Authenticate(ctx, token)
	if err != nil {
		return models.Identity{}, err
	}
	return user.Identity(), nil
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if s.blacklist != nil {
		revoked, err := s.blacklist.IsRevoked(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%w: blacklist lookup: %v", websocket.ErrAuthenticationFailed, err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: %v", websocket.ErrAuthenticationFailed, ErrTokenRevoked)
		}
	}

	claims, err := s.jwtManager.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", websocket.ErrAuthenticationFailed, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", websocket.ErrAuthenticationFailed)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", websocket.ErrAuthenticationFailed, err)
	}
	return user, nil
}
