package services_test

import (
	"testing"
	"time"

	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// Minimal valid PNG header, enough for content sniffing.
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func TestChatService_History(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMessages := mocks.NewMockIMessageRepository(ctrl)
	svc := services.NewChatService(mockMessages, nil, nil)

	id := uuid.New()
	at := time.Now().UTC()
	next := "cursor-token"
	mockMessages.EXPECT().
		GetMessages("alice_bob", nil).
		Return([]repositories.DiskMessage{{
			ID:       id,
			Room:     "alice_bob",
			Sender:   "alice",
			Receiver: "bob",
			Content:  "hi",
			Lang:     "eng",
			At:       at,
		}}, &next, nil).
		Times(1)

	page, cursor, err := svc.History("alice_bob", nil)

	req.NoError(err)
	req.Equal(&next, cursor)
	req.Len(page, 1)
	req.Equal(id.String(), page[0].ID)
	req.Equal("hi", page[0].Content)
	req.Equal("bob", page[0].Receiver)
}

func TestChatService_SaveAvatar(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockUsers := mocks.NewMockIUserRepository(ctrl)
	svc := services.NewChatService(nil, mockUsers, nil)

	t.Run("stores a real image with its sniffed type", func(t *testing.T) {
		req := require.New(t)

		mockUsers.EXPECT().
			SaveAvatar("alice", "image/png", pngBytes).
			Return(nil).
			Times(1)

		req.NoError(svc.SaveAvatar("alice", pngBytes))
	})

	t.Run("rejects non-image content regardless of what the client claims", func(t *testing.T) {
		req := require.New(t)

		mockUsers.EXPECT().SaveAvatar(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		err := svc.SaveAvatar("alice", []byte("#!/bin/sh\nrm -rf /"))
		req.ErrorIs(err, errors.ErrNotAnImage)
	})
}
