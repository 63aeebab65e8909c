/*
Package store defines the storage collaborator for the messaging core.

A chat is the durable conversation between an unordered pair of users and
owns an ordered message sequence. The presence-and-delivery core only
reads and mutates chats through the Store contract.
*/
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"
)

// ErrNotFound is returned when the requested user, chat or message does not
// exist — or when the caller is not allowed to see that it exists. Callers
// translate it into their own not-found-or-forbidden signal.
var ErrNotFound = errors.New("store: not found")

// User is the identity record exposed by the user collaborator.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is one entry of a chat's ordered message sequence.
// ReadStatus maps reader identity to the time that reader read the message;
// the author never appears as a key in its own message's ReadStatus.
type Message struct {
	ID         string               `json:"id"`
	Author     string               `json:"author"`
	AuthorName string               `json:"authorName,omitempty"`
	Text       string               `json:"text"`
	SentAt     time.Time            `json:"sentAt"`
	ReadStatus map[string]time.Time `json:"readStatus,omitempty"`
}

// Chat is the durable two-party conversation record.
type Chat struct {
	ID        string    `json:"id"`
	Users     [2]string `json:"users"`
	CreatedAt time.Time `json:"createdAt"`
}

// Participants returns the chat's user identities as a slice.
func (c Chat) Participants() []string {
	return []string{c.Users[0], c.Users[1]}
}

// HasParticipant reports whether userID is one of the chat's two users.
func (c Chat) HasParticipant(userID string) bool {
	return c.Users[0] == userID || c.Users[1] == userID
}

// ChatID derives the chat identity for an unordered pair of users.
// Both orderings of the pair yield the same id, which makes lazy chat
// creation race-free under concurrent first-contact sends.
func ChatID(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)

	sum := sha256.Sum256([]byte(pair[0] + "\x00" + pair[1]))
	return hex.EncodeToString(sum[:16])
}

// SortedPair returns the two user ids in canonical order.
func SortedPair(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}

// Store is the storage collaborator contract consumed by the delivery
// coordinator. Implementations must return messages in stored order.
type Store interface {
	// FindUser resolves a user identity to its record, or ErrNotFound.
	FindUser(ctx context.Context, userID string) (User, error)

	// FindChat looks up the chat between an unordered pair of users.
	// A missing chat is ErrNotFound; it is a valid outcome, not a failure.
	FindChat(ctx context.Context, userA, userB string) (Chat, error)

	// AppendMessage appends a message authored by authorID to the chat
	// between author and receiver, creating the chat lazily.
	AppendMessage(ctx context.Context, authorID, receiverID, text string) (Message, error)

	// Messages returns the chat's full ordered message sequence.
	Messages(ctx context.Context, chatID string) ([]Message, error)

	// StampRead idempotently records that readerID read the message.
	// A missing chat or message, a reader outside the chat, and the
	// author reading its own message all yield ErrNotFound.
	StampRead(ctx context.Context, chatID, messageID, readerID string) error

	// StampAllUnread stamps readerID on every message in the chat not
	// authored by readerID and not yet read by readerID, returning the
	// messages that just transitioned. Already-read messages are untouched.
	StampAllUnread(ctx context.Context, chatID, readerID string) ([]Message, error)
}
