package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeConn struct {
	events   []string
	payloads []StatusPayload
}

func (f *fakeConn) Push(event string, payload any) bool {
	f.events = append(f.events, event)
	if sp, ok := payload.(StatusPayload); ok {
		f.payloads = append(f.payloads, sp)
	}
	return true
}

func TestRegisterAndIsOnline(t *testing.T) {
	d := NewDirectory()
	conn := &fakeConn{}

	assert.False(t, d.IsOnline("alice"))

	d.Register("alice", conn)

	assert.True(t, d.IsOnline("alice"))
	assert.Equal(t, []string{"alice"}, d.Online())

	// The new connection itself receives the online broadcast.
	assert.Equal(t, []string{EventUserStatus}, conn.events)
	assert.Equal(t, StatusPayload{UserID: "alice", Status: StatusOnline}, conn.payloads[0])
}

func TestRegisterReplacesStaleEntry(t *testing.T) {
	d := NewDirectory()
	first := &fakeConn{}
	second := &fakeConn{}

	d.Register("alice", first)
	d.Register("alice", second)

	// Exactly one entry per identity: last connected wins.
	assert.Equal(t, []string{"alice"}, d.Online())

	// The stale connection's deregister must not knock the user offline.
	d.Deregister("alice", first)
	assert.True(t, d.IsOnline("alice"))

	d.Deregister("alice", second)
	assert.False(t, d.IsOnline("alice"))
}

func TestDeregisterBroadcastsOffline(t *testing.T) {
	d := NewDirectory()
	alice := &fakeConn{}
	bob := &fakeConn{}

	d.Register("alice", alice)
	d.Register("bob", bob)

	d.Deregister("alice", alice)

	last := bob.payloads[len(bob.payloads)-1]
	assert.Equal(t, StatusPayload{UserID: "alice", Status: StatusOffline}, last)
}

func TestDeregisterUnknownIsNoop(t *testing.T) {
	d := NewDirectory()
	bob := &fakeConn{}
	d.Register("bob", bob)

	sent := len(bob.events)
	d.Deregister("alice", &fakeConn{})

	// No offline broadcast for a user who was never online.
	assert.Len(t, bob.events, sent)
}

func TestTouchRefreshesLastActivity(t *testing.T) {
	d := NewDirectory()
	d.Register("alice", &fakeConn{})

	before, ok := d.LastActivity("alice")
	assert.True(t, ok)

	d.Touch("alice")

	after, ok := d.LastActivity("alice")
	assert.True(t, ok)
	assert.False(t, after.Before(before))

	// Touching an unknown identity is a no-op.
	d.Touch("ghost")
	_, ok = d.LastActivity("ghost")
	assert.False(t, ok)
}

func TestOnlineSnapshotIsSorted(t *testing.T) {
	d := NewDirectory()
	d.Register("carol", &fakeConn{})
	d.Register("alice", &fakeConn{})
	d.Register("bob", &fakeConn{})

	assert.Equal(t, []string{"alice", "bob", "carol"}, d.Online())
}
