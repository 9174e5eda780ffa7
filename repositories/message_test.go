package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func storedMessage(room, sender, content string, at time.Time) DiskMessage {
	return DiskMessage{
		ID:       uuid.New(),
		Room:     room,
		Sender:   sender,
		Receiver: "bob",
		Content:  content,
		Lang:     "eng",
		At:       at,
	}
}

func TestMessageRepository_StoreAndGet(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, logs.GetLoggerFromString("ERROR"), nil)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		msg := storedMessage("alice_bob", "alice", fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second))
		req.NoError(repo.StoreMessage(msg))
	}

	messages, cursor, err := repo.GetMessages("alice_bob", nil)
	req.NoError(err)
	req.NotNil(cursor)
	req.Len(messages, 3)

	// Reverse scan: most recent first.
	req.Equal("msg-2", messages[0].Content)
	req.Equal("msg-0", messages[2].Content)
}

func TestMessageRepository_RoomIsolation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, logs.GetLoggerFromString("ERROR"), nil)

	now := time.Now().UTC()
	req.NoError(repo.StoreMessage(storedMessage("alice_bob", "alice", "for ab", now)))
	req.NoError(repo.StoreMessage(storedMessage("carol_dan", "carol", "for cd", now)))

	messages, _, err := repo.GetMessages("alice_bob", nil)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("for ab", messages[0].Content)
}

func TestMessageRepository_CursorPagination(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, logs.GetLoggerFromString("ERROR"), lo.ToPtr(2))

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		msg := storedMessage("alice_bob", "alice", fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second))
		req.NoError(repo.StoreMessage(msg))
	}

	// First page: the two most recent.
	page1, cursor, err := repo.GetMessages("alice_bob", nil)
	req.NoError(err)
	req.Len(page1, 2)
	req.Equal("msg-4", page1[0].Content)
	req.Equal("msg-3", page1[1].Content)
	req.NotNil(cursor)

	// Second page resumes after the cursor.
	page2, cursor, err := repo.GetMessages("alice_bob", cursor)
	req.NoError(err)
	req.Len(page2, 2)
	req.Equal("msg-2", page2[0].Content)
	req.Equal("msg-1", page2[1].Content)
	req.NotNil(cursor)

	// Last page.
	page3, _, err := repo.GetMessages("alice_bob", cursor)
	req.NoError(err)
	req.Len(page3, 1)
	req.Equal("msg-0", page3[0].Content)
}

func TestMessageRepository_EmptyRoom(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, logs.GetLoggerFromString("ERROR"), nil)

	messages, cursor, err := repo.GetMessages("nobody_here", nil)
	req.NoError(err)
	req.Empty(messages)
	req.Nil(cursor)
}
