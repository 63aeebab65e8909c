/*
Package rooms tracks which live connections are interested in which chat's
events. A connection joins a chat's room when it retrieves that chat's
history or sends into it, and is removed from every room at once on
disconnect. Rooms exist only for targeted notification; they store nothing.
*/
package rooms

import (
	"sync"

	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
)

// Conn is a live connection that can be targeted with chat events.
type Conn interface {
	UserID() string
	Push(event string, payload any) bool
}

// Tracker is the mutex-guarded chat → connection-set mapping.
type Tracker struct {
	mu     sync.RWMutex
	rooms  map[string]map[Conn]struct{}
	logger zerolog.Logger
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		rooms:  make(map[string]map[Conn]struct{}),
		logger: logx.Logger().With().Str("component", "Rooms").Logger(),
	}
}

// Join adds the connection to the chat's room. Idempotent; the room entry
// is created lazily on first join.
func (t *Tracker) Join(chatID string, conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[chatID]
	if !ok {
		members = make(map[Conn]struct{})
		t.rooms[chatID] = members
	}

	if _, joined := members[conn]; joined {
		return
	}

	members[conn] = struct{}{}
	t.logger.Debug().Str("chat_id", chatID).Str("user_id", conn.UserID()).
		Int("members", len(members)).Msg("Connection joined room.")
}

// Leave removes the connection from every room it belongs to and deletes
// any room entry left empty. Called once, globally, on disconnect; the
// caller does not need to remember which chats it joined.
func (t *Tracker) Leave(conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for chatID, members := range t.rooms {
		if _, ok := members[conn]; !ok {
			continue
		}

		delete(members, conn)
		if len(members) == 0 {
			delete(t.rooms, chatID)
		}
	}
}

// MembersOf returns a snapshot of the connections currently in the chat's room.
func (t *Tracker) MembersOf(chatID string) []Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	members, ok := t.rooms[chatID]
	if !ok {
		return nil
	}

	conns := make([]Conn, 0, len(members))
	for conn := range members {
		conns = append(conns, conn)
	}
	return conns
}
