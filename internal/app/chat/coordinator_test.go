package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"dmchat/internal/app/store"
)

// frame is a decoded outbound envelope pulled from a client's send queue.
type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func newTestCoordinator(t *testing.T) (*Coordinator, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	st.AddUser(store.User{ID: "alice", Name: "Alice"})
	st.AddUser(store.User{ID: "bob", Name: "Bob"})

	return NewCoordinator(st), st
}

// newTestClient builds a Client without a WebSocket connection; pushed
// frames accumulate in the send queue for inspection.
func newTestClient(co *Coordinator, userID string) *Client {
	return &Client{
		coord:  co,
		userID: userID,
		send:   make(chan []byte, sendQueueSize),
		stop:   make(chan struct{}),
	}
}

// drain empties the client's send queue into decoded frames.
func drain(t *testing.T, c *Client) []frame {
	t.Helper()

	var frames []frame
	for {
		select {
		case data := <-c.send:
			var f frame
			assert.NoError(t, json.Unmarshal(data, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func byEvent(frames []frame, event string) []frame {
	var out []frame
	for _, f := range frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func decodePayload(t *testing.T, f frame, into any) {
	t.Helper()
	assert.NoError(t, json.Unmarshal(f.Payload, into))
}

func TestAttachAnnouncesPresence(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	co.Attach(alice)

	frames := drain(t, alice)

	// The new connection sees its own online broadcast, then the snapshot.
	statuses := byEvent(frames, "userStatus")
	assert.Len(t, statuses, 1)

	var status struct {
		UserID string `json:"userId"`
		Status string `json:"status"`
	}
	decodePayload(t, statuses[0], &status)
	assert.Equal(t, "alice", status.UserID)
	assert.Equal(t, "online", status.Status)

	snapshots := byEvent(frames, EventOnlineUsers)
	assert.Len(t, snapshots, 1)

	var online []string
	decodePayload(t, snapshots[0], &online)
	assert.Equal(t, []string{"alice"}, online)

	// A second user's attach is broadcast to the first.
	bob := newTestClient(co, "bob")
	co.Attach(bob)

	var bobOnline []string
	bobFrames := drain(t, bob)
	decodePayload(t, byEvent(bobFrames, EventOnlineUsers)[0], &bobOnline)
	assert.Equal(t, []string{"alice", "bob"}, bobOnline)

	aliceFrames := drain(t, alice)
	decodePayload(t, byEvent(aliceFrames, "userStatus")[0], &status)
	assert.Equal(t, "bob", status.UserID)
	assert.Equal(t, "online", status.Status)
}

func TestReconnectKeepsSinglePresenceEntry(t *testing.T) {
	co, _ := newTestCoordinator(t)

	first := newTestClient(co, "alice")
	co.Attach(first)

	second := newTestClient(co, "alice")
	co.Attach(second)

	assert.Equal(t, []string{"alice"}, co.Presence().Online())

	// The stale connection's disconnect must not take alice offline.
	co.Detach(first)
	assert.True(t, co.Presence().IsOnline("alice"))

	co.Detach(second)
	assert.False(t, co.Presence().IsOnline("alice"))
}

func TestSendMessageDeliversWithoutEcho(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	co.Attach(alice)
	co.Attach(bob)
	drain(t, alice)
	drain(t, bob)

	co.sendMessage(alice, SendMessagePayload{Receiver: "bob", Text: "hello"})

	// The sender gets an ack on the event name it used, and no echo.
	aliceFrames := drain(t, alice)
	acks := byEvent(aliceFrames, EventSendMessage)
	assert.Len(t, acks, 1)

	var ackBody struct {
		Status string `json:"status"`
	}
	decodePayload(t, acks[0], &ackBody)
	assert.Equal(t, "ok", ackBody.Status)
	assert.Empty(t, byEvent(aliceFrames, EventNewMessage))

	// The recipient gets exactly one newMessage push.
	bobFrames := drain(t, bob)
	pushes := byEvent(bobFrames, EventNewMessage)
	assert.Len(t, pushes, 1)

	var push NewMessagePayload
	decodePayload(t, pushes[0], &push)
	assert.Equal(t, store.ChatID("alice", "bob"), push.ChatID)
	assert.Equal(t, "alice", push.Message.Author)
	assert.Equal(t, "hello", push.Message.Text)
}

func TestSendMessageOnlyReachesParticipants(t *testing.T) {
	co, st := newTestCoordinator(t)
	st.AddUser(store.User{ID: "carol", Name: "Carol"})

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	carol := newTestClient(co, "carol")
	co.Attach(alice)
	co.Attach(bob)
	co.Attach(carol)
	drain(t, alice)
	drain(t, bob)
	drain(t, carol)

	co.sendMessage(alice, SendMessagePayload{Receiver: "bob", Text: "private"})

	assert.Len(t, byEvent(drain(t, bob), EventNewMessage), 1)
	assert.Empty(t, byEvent(drain(t, carol), EventNewMessage))
}

func TestSendMessageValidation(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	co.Attach(alice)
	drain(t, alice)

	co.sendMessage(alice, SendMessagePayload{Receiver: "bob"})

	var errBody ErrorPayload
	decodePayload(t, byEvent(drain(t, alice), EventError)[0], &errBody)
	assert.Equal(t, "Missing receiver or text", errBody.Error)
	assert.Equal(t, "error", errBody.Status)

	co.sendMessage(alice, SendMessagePayload{Receiver: "ghost", Text: "hello"})

	decodePayload(t, byEvent(drain(t, alice), EventError)[0], &errBody)
	assert.Equal(t, "Recipient not found", errBody.Error)
}

func TestGetHistoryUnknownRecipient(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	co.Attach(alice)
	drain(t, alice)

	co.getHistory(alice, "ghost")

	var history HistoryPayload
	decodePayload(t, byEvent(drain(t, alice), EventChatHistory)[0], &history)
	assert.Equal(t, "error", history.Status)
	assert.Equal(t, "Recipient not found", history.Error)
}

func TestGetHistoryBeforeFirstMessage(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	co.Attach(alice)
	drain(t, alice)

	co.getHistory(alice, "bob")

	var history HistoryPayload
	decodePayload(t, byEvent(drain(t, alice), EventChatHistory)[0], &history)
	assert.Equal(t, "ok", history.Status)
	assert.Empty(t, history.Data)
}

func TestGetHistoryMarksReadAndNotifiesAuthorOnce(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	co.Attach(alice)
	co.Attach(bob)
	drain(t, alice)
	drain(t, bob)

	// Sending joins alice to the chat's room, so she can receive receipts.
	co.sendMessage(alice, SendMessagePayload{Receiver: "bob", Text: "hello"})
	drain(t, alice)
	drain(t, bob)

	co.getHistory(bob, "alice")

	var history HistoryPayload
	decodePayload(t, byEvent(drain(t, bob), EventChatHistory)[0], &history)
	assert.Equal(t, "ok", history.Status)
	assert.Len(t, history.Data, 1)

	// The returned history already reflects bob's read mark.
	assert.Contains(t, history.Data[0].ReadStatus, "bob")

	// The author is told exactly which message transitioned.
	receipts := byEvent(drain(t, alice), EventMessageRead)
	assert.Len(t, receipts, 1)

	var receipt MessageReadPayload
	decodePayload(t, receipts[0], &receipt)
	assert.Equal(t, history.Data[0].ID, receipt.MessageID)
	assert.Equal(t, "bob", receipt.ReaderID)
	assert.False(t, receipt.ReadAt.IsZero())

	// Retrieval is idempotent: same sequence back, no second receipt.
	co.getHistory(bob, "alice")

	var again HistoryPayload
	decodePayload(t, byEvent(drain(t, bob), EventChatHistory)[0], &again)
	assert.Equal(t, history.Data, again.Data)
	assert.Empty(t, byEvent(drain(t, alice), EventMessageRead))
}

func TestSendAfterHistoryAppendsLast(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	co.Attach(alice)
	co.Attach(bob)

	co.sendMessage(alice, SendMessagePayload{Receiver: "bob", Text: "first"})
	co.sendMessage(bob, SendMessagePayload{Receiver: "alice", Text: "second"})
	drain(t, alice)
	drain(t, bob)

	co.getHistory(alice, "bob")

	var history HistoryPayload
	decodePayload(t, byEvent(drain(t, alice), EventChatHistory)[0], &history)
	assert.Len(t, history.Data, 2)
	assert.Equal(t, "first", history.Data[0].Text)
	assert.Equal(t, "second", history.Data[1].Text)
}

func TestMarkAsRead(t *testing.T) {
	co, st := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	co.Attach(alice)
	co.Attach(bob)

	msg, err := st.AppendMessage(context.Background(), "alice", "bob", "hello")
	assert.NoError(t, err)
	chatID := store.ChatID("alice", "bob")
	drain(t, alice)
	drain(t, bob)

	co.markAsRead(bob, MarkAsReadPayload{ChatID: chatID, MessageID: msg.ID})

	bobFrames := drain(t, bob)
	acks := byEvent(bobFrames, EventMarkAsRead)
	assert.Len(t, acks, 1)

	var ackBody struct {
		Status string `json:"status"`
	}
	decodePayload(t, acks[0], &ackBody)
	assert.Equal(t, "ok", ackBody.Status)

	// Direct mark-read emits no receipt to the author.
	assert.Empty(t, byEvent(drain(t, alice), EventMessageRead))

	// Marking again acks again without changing anything.
	co.markAsRead(bob, MarkAsReadPayload{ChatID: chatID, MessageID: msg.ID})
	assert.Len(t, byEvent(drain(t, bob), EventMarkAsRead), 1)
}

func TestMarkAsReadRejections(t *testing.T) {
	co, st := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	co.Attach(alice)

	msg, err := st.AppendMessage(context.Background(), "alice", "bob", "hello")
	assert.NoError(t, err)
	chatID := store.ChatID("alice", "bob")
	drain(t, alice)

	// Missing fields.
	co.markAsRead(alice, MarkAsReadPayload{ChatID: chatID})

	var errBody ErrorPayload
	decodePayload(t, byEvent(drain(t, alice), EventError)[0], &errBody)
	assert.Equal(t, "Missing chatId or messageId", errBody.Error)

	// Marking one's own message reads like a missing message.
	co.markAsRead(alice, MarkAsReadPayload{ChatID: chatID, MessageID: msg.ID})

	decodePayload(t, byEvent(drain(t, alice), EventError)[0], &errBody)
	assert.Equal(t, "Message not found or you are not a participant", errBody.Error)

	// Unknown message id.
	co.markAsRead(alice, MarkAsReadPayload{ChatID: chatID, MessageID: "no-such-message"})

	decodePayload(t, byEvent(drain(t, alice), EventError)[0], &errBody)
	assert.Equal(t, "Message not found or you are not a participant", errBody.Error)
}

func TestUserStatusQuery(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	co.Attach(alice)
	drain(t, alice)

	var status struct {
		UserID string `json:"userId"`
		Status string `json:"status"`
	}

	// A known but disconnected user is offline.
	co.userStatus(alice, "bob")
	decodePayload(t, byEvent(drain(t, alice), "userStatus")[0], &status)
	assert.Equal(t, "bob", status.UserID)
	assert.Equal(t, "offline", status.Status)

	bob := newTestClient(co, "bob")
	co.Attach(bob)
	drain(t, alice)

	co.userStatus(alice, "bob")
	decodePayload(t, byEvent(drain(t, alice), "userStatus")[0], &status)
	assert.Equal(t, "online", status.Status)

	// An identity nobody has ever seen is offline, never an error.
	co.userStatus(alice, "ghost")
	frames := drain(t, alice)
	decodePayload(t, byEvent(frames, "userStatus")[0], &status)
	assert.Equal(t, "ghost", status.UserID)
	assert.Equal(t, "offline", status.Status)
	assert.Empty(t, byEvent(frames, EventError))
}

func TestDetachCleansUpEverything(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	co.Attach(alice)
	co.Attach(bob)

	co.sendMessage(alice, SendMessagePayload{Receiver: "bob", Text: "hello"})
	drain(t, alice)
	drain(t, bob)

	co.Detach(alice)

	// Others observe the offline transition.
	var status struct {
		UserID string `json:"userId"`
		Status string `json:"status"`
	}
	decodePayload(t, byEvent(drain(t, bob), "userStatus")[0], &status)
	assert.Equal(t, "alice", status.UserID)
	assert.Equal(t, "offline", status.Status)
	assert.Equal(t, []string{"bob"}, co.Presence().Online())

	// The fan-out subscription is gone.
	co.sendMessage(bob, SendMessagePayload{Receiver: "alice", Text: "anyone there?"})
	assert.Empty(t, byEvent(drain(t, alice), EventNewMessage))

	// Room membership is gone: bob reading the chat notifies no one.
	co.getHistory(bob, "alice")
	assert.Empty(t, byEvent(drain(t, alice), EventMessageRead))
}
