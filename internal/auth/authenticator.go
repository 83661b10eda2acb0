package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"wisp/internal/core"
	"wisp/internal/storage"
)

const minPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrUsernameTaken      = errors.New("username already taken")
)

// Authenticator registers users and verifies logins against the store,
// issuing JWTs on success.
type Authenticator struct {
	store *storage.SQLiteRepository
	jwt   *JWTManager
}

func NewAuthenticator(store *storage.SQLiteRepository, jwt *JWTManager) *Authenticator {
	return &Authenticator{store: store, jwt: jwt}
}

// Register creates a user with a bcrypt-hashed password and returns a
// session token.
func (a *Authenticator) Register(ctx context.Context, username, password string) (storage.User, string, error) {
	if username == "" {
		return storage.User{}, "", errors.New("username is required")
	}
	if len(password) < minPasswordLength {
		return storage.User{}, "", ErrWeakPassword
	}

	if _, err := a.store.UserByUsername(ctx, username); err == nil {
		return storage.User{}, "", ErrUsernameTaken
	} else if !errors.Is(err, core.ErrNotFound) {
		return storage.User{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return storage.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := a.store.CreateUser(ctx, username, string(hash))
	if err != nil {
		return storage.User{}, "", err
	}

	token, err := a.jwt.Generate(user.ID, user.Username)
	if err != nil {
		return storage.User{}, "", err
	}
	return user, token, nil
}

// Login verifies a username/password pair and returns a session token.
// A wrong username and a wrong password produce the same error.
func (a *Authenticator) Login(ctx context.Context, username, password string) (storage.User, string, error) {
	user, err := a.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return storage.User{}, "", ErrInvalidCredentials
		}
		return storage.User{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return storage.User{}, "", ErrInvalidCredentials
	}

	token, err := a.jwt.Generate(user.ID, user.Username)
	if err != nil {
		return storage.User{}, "", err
	}
	return user, token, nil
}
