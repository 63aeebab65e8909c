package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation. It backs tests and
// single-process development runs; data is lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User
	chats map[string]*memChat
}

type memChat struct {
	chat     Chat
	messages []Message
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]User),
		chats: make(map[string]*memChat),
	}
}

// AddUser seeds a user record.
func (m *MemoryStore) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[u.ID] = u
}

// FindUser implements Store.
func (m *MemoryStore) FindUser(_ context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// FindChat implements Store.
func (m *MemoryStore) FindChat(_ context.Context, userA, userB string) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.chats[ChatID(userA, userB)]
	if !ok {
		return Chat{}, ErrNotFound
	}
	return mc.chat, nil
}

// AppendMessage implements Store.
func (m *MemoryStore) AppendMessage(_ context.Context, authorID, receiverID, text string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chatID := ChatID(authorID, receiverID)
	mc, ok := m.chats[chatID]
	if !ok {
		a, b := SortedPair(authorID, receiverID)
		mc = &memChat{
			chat: Chat{
				ID:        chatID,
				Users:     [2]string{a, b},
				CreatedAt: time.Now().UTC(),
			},
		}
		m.chats[chatID] = mc
	}

	msg := Message{
		ID:         uuid.NewString(),
		Author:     authorID,
		AuthorName: m.users[authorID].Name,
		Text:       text,
		SentAt:     time.Now().UTC(),
	}
	mc.messages = append(mc.messages, msg)

	return copyMessage(msg), nil
}

// Messages implements Store.
func (m *MemoryStore) Messages(_ context.Context, chatID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]Message, 0, len(mc.messages))
	for _, msg := range mc.messages {
		out = append(out, copyMessage(msg))
	}
	return out, nil
}

// StampRead implements Store.
func (m *MemoryStore) StampRead(_ context.Context, chatID, messageID, readerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.chats[chatID]
	if !ok {
		return ErrNotFound
	}
	if !mc.chat.HasParticipant(readerID) {
		return ErrNotFound
	}

	for i := range mc.messages {
		msg := &mc.messages[i]
		if msg.ID != messageID {
			continue
		}

		// Reading one's own message is indistinguishable from a missing one.
		if msg.Author == readerID {
			return ErrNotFound
		}

		if msg.ReadStatus == nil {
			msg.ReadStatus = make(map[string]time.Time)
		}
		if _, read := msg.ReadStatus[readerID]; !read {
			msg.ReadStatus[readerID] = time.Now().UTC()
		}
		return nil
	}

	return ErrNotFound
}

// StampAllUnread implements Store.
func (m *MemoryStore) StampAllUnread(_ context.Context, chatID, readerID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	if !mc.chat.HasParticipant(readerID) {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	var stamped []Message

	for i := range mc.messages {
		msg := &mc.messages[i]
		if msg.Author == readerID {
			continue
		}
		if _, read := msg.ReadStatus[readerID]; read {
			continue
		}

		if msg.ReadStatus == nil {
			msg.ReadStatus = make(map[string]time.Time)
		}
		msg.ReadStatus[readerID] = now
		stamped = append(stamped, copyMessage(*msg))
	}

	return stamped, nil
}

func copyMessage(msg Message) Message {
	out := msg
	if msg.ReadStatus != nil {
		out.ReadStatus = make(map[string]time.Time, len(msg.ReadStatus))
		for reader, at := range msg.ReadStatus {
			out.ReadStatus[reader] = at
		}
	}
	return out
}
