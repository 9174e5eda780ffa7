//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"time"

	apperrors "chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(username, hashedPassword string) (string, error)
	GetUserByUsername(username string) (User, error)
	SaveAvatar(username, contentType string, data []byte) error
	GetAvatar(username string) (Avatar, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the durable account record. The username doubles as the chat
// identity, so it is the storage key.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// Avatar is a profile image, stored verbatim with its sniffed content type.
type Avatar struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

func userKey(username string) []byte   { return []byte("user:" + username) }
func avatarKey(username string) []byte { return []byte("avatar:" + username) }

// CreateUser persists a new account and returns its generated ID.
// The write is rejected when the username is already taken.
func (u UserRepository) CreateUser(username, hashedPassword string) (string, error) {
	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(user)
	if err != nil {
		return "", err
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(username)); err == nil {
			return apperrors.ErrUserAlreadyExists
		}
		return txn.Set(userKey(username), data)
	})
	return user.ID, err
}

func (u UserRepository) GetUserByUsername(username string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.ErrUserNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	return user, err
}

// SaveAvatar overwrites the profile image of an existing user.
func (u UserRepository) SaveAvatar(username, contentType string, data []byte) error {
	avatar := Avatar{ContentType: contentType, Data: data}
	encoded, err := json.Marshal(avatar)
	if err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(username)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.ErrUserNotFound
			}
			return err
		}
		return txn.Set(avatarKey(username), encoded)
	})
}

func (u UserRepository) GetAvatar(username string) (Avatar, error) {
	var avatar Avatar
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(avatarKey(username))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.ErrUserNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &avatar)
		})
	})
	return avatar, err
}
