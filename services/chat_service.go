//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"strings"
	"time"

	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/search"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

type IChatService interface {
	History(room string, cursor *string) ([]HistoryMessage, *string, error)
	Search(ctx context.Context, query, room string, limit int) ([]search.Hit, error)
	SaveAvatar(username string, data []byte) error
	GetAvatar(username string) (repositories.Avatar, error)
}

// HistoryMessage is the REST-facing shape of a stored message.
type HistoryMessage struct {
	ID       string    `json:"id"`
	Room     string    `json:"room"`
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
	Content  string    `json:"content"`
	Lang     string    `json:"lang,omitempty"`
	At       time.Time `json:"at"`
}

// ChatService serves the read side of conversations: paginated history,
// full-text search, and profile avatars.
type ChatService struct {
	messages repositories.IMessageRepository
	users    repositories.IUserRepository
	index    search.IMessageIndex
}

func NewChatService(
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	index search.IMessageIndex,
) IChatService {
	return &ChatService{messages: messages, users: users, index: index}
}

// History returns one page of a room's messages, most recent first, with a
// cursor resuming the scan where this page ended.
func (s *ChatService) History(room string, cursor *string) ([]HistoryMessage, *string, error) {
	stored, next, err := s.messages.GetMessages(room, cursor)
	if err != nil {
		return nil, nil, err
	}
	page := lo.Map(stored, func(msg repositories.DiskMessage, _ int) HistoryMessage {
		return HistoryMessage{
			ID:       msg.ID.String(),
			Room:     msg.Room,
			Sender:   msg.Sender,
			Receiver: msg.Receiver,
			Content:  msg.Content,
			Lang:     msg.Lang,
			At:       msg.At,
		}
	})
	return page, next, nil
}

func (s *ChatService) Search(ctx context.Context, query, room string, limit int) ([]search.Hit, error) {
	return s.index.Search(ctx, query, room, limit)
}

// SaveAvatar sniffs the actual content type of the upload. The client's
// declared type is ignored; only real images are stored.
func (s *ChatService) SaveAvatar(username string, data []byte) error {
	kind := mimetype.Detect(data)
	if !strings.HasPrefix(kind.String(), "image/") {
		return errors.ErrNotAnImage
	}
	return s.users.SaveAvatar(username, kind.String(), data)
}

func (s *ChatService) GetAvatar(username string) (repositories.Avatar, error) {
	return s.users.GetAvatar(username)
}
