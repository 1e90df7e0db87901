package db

import (
	"encoding/json"
	"fmt"

	"nanofeed/models"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

type storedUser struct {
	Username string `json:"username"`
	PassHash string `json:"pass_hash"`
}

// CreateUser provisions an account. Usernames are unique; provisioning an
// existing one fails with ErrUsernameTaken.
func (store *Store) CreateUser(username string, password string) (*models.User, error) {
	taken, err := store.Has(nsUsers, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := storedUser{Username: username, PassHash: string(hash)}
	value, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encode error: %w", err)
	}

	if err := store.Put(nsUsers, username, value); err != nil {
		return nil, err
	}

	return &models.User{Username: user.Username, PassHash: user.PassHash}, nil
}

func (store *Store) getUser(username string) (*storedUser, error) {
	value, ok, err := store.Get(nsUsers, username)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var user storedUser
	if err := json.Unmarshal(value, &user); err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	return &user, nil
}

// TryLogin validates credentials against the stored hash.
func (store *Store) TryLogin(username string, password string) (*models.User, error) {
	user, err := store.getUser(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(password)); err != nil {
		return nil, ErrPasswordIncorrect
	}

	return &models.User{Username: user.Username, PassHash: user.PassHash}, nil
}

// ListUsernames returns every provisioned username in order.
func (store *Store) ListUsernames() ([]string, error) {
	items, err := store.List(nsUsers)
	if err != nil {
		return nil, err
	}

	usernames := make([]string, 0, len(items))
	for _, item := range items {
		usernames = append(usernames, item.Key)
	}
	return usernames, nil
}
