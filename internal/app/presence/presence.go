/*
Package presence maintains the process-wide online-user directory.

One entry exists per authenticated user identity at any instant; a user
authenticating on a new connection overwrites any stale entry
(last-connected-wins). Entries are removed only on explicit disconnect —
last activity is tracked but never used to expire anyone.
*/
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
)

// EventUserStatus is the wire event broadcast on every presence change.
const EventUserStatus = "userStatus"

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusPayload is the payload of a userStatus event.
type StatusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// Conn is a live connection the directory can push events to.
// Push must not block; delivery to a dead connection is a silent no-op.
type Conn interface {
	Push(event string, payload any) bool
}

type entry struct {
	conn         Conn
	lastActivity time.Time
}

// Directory is the mutex-guarded online-user directory.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  zerolog.Logger
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		entries: make(map[string]*entry),
		logger:  logx.Logger().With().Str("component", "Presence").Logger(),
	}
}

// Register inserts or overwrites the user's presence entry and broadcasts
// an online status change to every registered connection, the new one included.
func (d *Directory) Register(userID string, conn Conn) {
	d.mu.Lock()
	d.entries[userID] = &entry{conn: conn, lastActivity: time.Now()}
	total := len(d.entries)
	targets := d.connsLocked()
	d.mu.Unlock()

	d.logger.Info().Str("user_id", userID).Int("online_users", total).Msg("User registered as online.")

	broadcast(targets, StatusPayload{UserID: userID, Status: StatusOnline})
}

// Deregister removes the user's entry if it still belongs to conn and
// broadcasts an offline status change. A stale connection (already replaced
// by a reconnect) deregisters nothing, so the reconnected user stays online.
func (d *Directory) Deregister(userID string, conn Conn) {
	d.mu.Lock()
	current, ok := d.entries[userID]
	if ok && current.conn == conn {
		delete(d.entries, userID)
	} else {
		ok = false
	}
	total := len(d.entries)
	targets := d.connsLocked()
	d.mu.Unlock()

	if !ok {
		d.logger.Info().Str("user_id", userID).Msg("Ignoring deregister for stale or unknown connection.")
		return
	}

	d.logger.Info().Str("user_id", userID).Int("online_users", total).Msg("User deregistered.")

	broadcast(targets, StatusPayload{UserID: userID, Status: StatusOffline})
}

// Touch refreshes the user's last-activity timestamp. No-op when the user
// has no presence entry.
func (d *Directory) Touch(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[userID]; ok {
		e.lastActivity = time.Now()
	}
}

// IsOnline reports whether the user currently has a presence entry.
func (d *Directory) IsOnline(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.entries[userID]
	return ok
}

// Online returns a sorted snapshot of the currently online user identities.
func (d *Directory) Online() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users := make([]string, 0, len(d.entries))
	for userID := range d.entries {
		users = append(users, userID)
	}
	sort.Strings(users)

	return users
}

// LastActivity returns the user's last-activity timestamp, if online.
func (d *Directory) LastActivity(userID string) (time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActivity, true
}

// connsLocked snapshots the registered connections. Callers must hold mu.
func (d *Directory) connsLocked() []Conn {
	conns := make([]Conn, 0, len(d.entries))
	for _, e := range d.entries {
		conns = append(conns, e.conn)
	}
	return conns
}

// broadcast pushes the status change to every connection in the snapshot.
// Pushes happen outside the directory lock; a full or closed connection
// simply drops the event.
func broadcast(targets []Conn, payload StatusPayload) {
	for _, conn := range targets {
		conn.Push(EventUserStatus, payload)
	}
}
