package authsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/taskcase-michael/internal/domain"
	"github.com/mkrupp/taskcase-michael/internal/infra/logging"
	"github.com/mkrupp/taskcase-michael/internal/repo/user"
)

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// SessionKeyFile is the path to the session signing key file
	SessionKeyFile string `env:"SESSION_KEY_FILE" default:"var/storage/todosvc.key"`

	// SessionDuration is the validity duration of sessions in seconds
	SessionDuration int64 `env:"SESSION_DURATION" default:"3600"` // 1h
}

// AuthService provides account management and session handling.
// It handles user signup, credential verification, and session token
// issue and validation.
type AuthService struct {
	Config     AuthConfig
	UserRepo   user.Repository
	Log        logging.Logger
	SessionKey []byte
}

// NewAuthService creates a new AuthService with the given user repository factory and configuration.
// Returns an error if the session key cannot be loaded or the user repository cannot be created.
func NewAuthService(repoFactory user.RepositoryFactory, cfg AuthConfig) (*AuthService, error) {
	log := logging.GetLogger("svc.authsvc.auth_service")

	sessionKey, err := GetSessionKey(cfg.SessionKeyFile)
	if err != nil {
		return nil, fmt.Errorf("get session key: %w", err)
	}

	userRepo, err := repoFactory()
	if err != nil {
		return nil, fmt.Errorf("new user repo: %w", err)
	}

	return &AuthService{
		Config:     cfg,
		UserRepo:   userRepo,
		Log:        log,
		SessionKey: sessionKey,
	}, nil
}

// RegisterUser creates a new user account with the given username, email and password.
// The password is hashed with bcrypt before storage. No session is started;
// the user logs in separately.
// Returns domain.ErrUserAlreadyExists if the username is already taken.
func (s *AuthService) RegisterUser(ctx context.Context, username, email, password string) (err error) {
	log := s.Log.With(logging.Group("user", "username", username))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "register user failed", "error", err)
		} else {
			log.DebugContext(ctx, "user registered")
		}
	}()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.UserRepo.CreateUser(ctx, username, email, passwordHash); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// Login verifies the given credentials and establishes a session,
// returning the signed session token.
// Returns domain.ErrInvalidCredentials for an unknown username as well as
// for a wrong password; callers cannot distinguish the two.
func (s *AuthService) Login(ctx context.Context, username, password string) (_ string, err error) {
	log := s.Log

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "login failed", "error", err)
		} else {
			log.DebugContext(ctx, "login successful")
		}
	}()

	// Authenticate user
	account, ok, err := s.UserRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", errors.Join(domain.ErrInvalidCredentials, err)
		} else {
			return "", fmt.Errorf("get user: %w", err)
		}
	} else if !ok {
		return "", domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return "", errors.Join(domain.ErrInvalidCredentials, err)
	}

	// Establish session
	now := time.Now()
	expiry := now.Add(time.Duration(s.Config.SessionDuration * int64(time.Second)))
	session := domain.Session{
		UserID:    account.ID,
		Username:  account.Username,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiry.Unix(),
	}

	log = log.With(logging.Group("session",
		"username", session.Username,
		"exp", expiry.UTC().Format(time.RFC3339),
		"iat", now.UTC().Format(time.RFC3339),
	))

	token, err := EncodeSession(s.SessionKey, session)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	return token, nil
}

// ValidateSession verifies a session token's signature and expiration.
// Returns the decoded session if valid, or an error if validation fails.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (session domain.Session, err error) {
	log := s.Log

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "validate session failed", "error", err)
		} else {
			log.DebugContext(ctx, "session validated")
		}
	}()

	session, err = DecodeSession(s.SessionKey, token)
	if err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}

	log = log.With(logging.Group("session",
		"username", session.Username,
		"exp", time.Unix(session.ExpiresAt, 0).UTC().Format(time.RFC3339),
		"iat", time.Unix(session.IssuedAt, 0).UTC().Format(time.RFC3339),
	))

	return session, nil
}

// Close releases resources held by the service, such as database connections.
// Returns an error if cleanup fails.
func (s *AuthService) Close() error {
	if err := s.UserRepo.Close(); err != nil {
		return fmt.Errorf("close user repo: %w", err)
	}

	return nil
}
