/*
Package chat contains the delivery coordinator for the two-party messaging
core.

This file defines the Coordinator, which owns the shared directories
(presence, room membership, message bus), the storage collaborator, and the
per-chat mutation locks, and implements the protocol operations invoked by
connected clients.
*/
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dmchat/internal/app/bus"
	"dmchat/internal/app/presence"
	"dmchat/internal/app/rooms"
	"dmchat/internal/app/store"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
)

// opTimeout bounds every storage call made on behalf of one inbound operation.
const opTimeout = 10 * time.Second

// Coordinator orchestrates the request/response protocol across all live
// connections. All of its state is single-process and in-memory except the
// storage collaborator.
type Coordinator struct {
	presence *presence.Directory
	rooms    *rooms.Tracker
	bus      *bus.Bus
	store    store.Store

	// chatLocks serializes message-mutating operations (send, mark-read,
	// mark-all-read) per chat. Entries are never evicted; the map grows
	// with the set of chats touched by this process.
	chatMu    sync.Mutex
	chatLocks map[string]*sync.Mutex

	// clients tracks every attached connection for shutdown.
	clientsMu sync.Mutex
	clients   map[*Client]struct{}

	logger zerolog.Logger
}

// NewCoordinator constructs a Coordinator over the given storage collaborator.
func NewCoordinator(st store.Store) *Coordinator {
	return &Coordinator{
		presence:  presence.NewDirectory(),
		rooms:     rooms.NewTracker(),
		bus:       bus.New(),
		store:     st,
		chatLocks: make(map[string]*sync.Mutex),
		clients:   make(map[*Client]struct{}),
		logger:    logx.Logger().With().Str("component", "Coordinator").Logger(),
	}
}

// Presence exposes the online-user directory.
func (co *Coordinator) Presence() *presence.Directory {
	return co.presence
}

// Attach wires an authenticated connection into the delivery machinery:
// it installs the fan-out handler, registers presence (which broadcasts
// the online status change), and pushes the current online-user snapshot
// to the new connection.
func (co *Coordinator) Attach(c *Client) {
	co.clientsMu.Lock()
	co.clients[c] = struct{}{}
	co.clientsMu.Unlock()

	c.sub = co.bus.Subscribe(func(event bus.Event) {
		// Never echo a message back to its author's own connection, and
		// only push to connections whose user participates in the chat.
		if event.Message.Author == c.userID {
			return
		}
		if !participant(event.Participants, c.userID) {
			return
		}

		c.Push(EventNewMessage, NewMessagePayload{
			ChatID:  event.ChatID,
			Message: event.Message,
		})
	})

	co.presence.Register(c.userID, c)

	c.Push(EventOnlineUsers, co.presence.Online())

	co.logger.Info().Str("user_id", c.userID).Msg("Connection attached.")
}

// Detach runs the disconnect cleanup sequence: room membership leave,
// presence deregistration (which broadcasts the offline status change),
// and bus unsubscription. It always runs in full, even when an in-flight
// operation on the connection has not completed.
func (co *Coordinator) Detach(c *Client) {
	co.rooms.Leave(c)
	co.presence.Deregister(c.userID, c)
	co.bus.Unsubscribe(c.sub)

	co.clientsMu.Lock()
	delete(co.clients, c)
	co.clientsMu.Unlock()

	co.logger.Info().Str("user_id", c.userID).Msg("Connection detached.")
}

// Shutdown closes every attached connection.
func (co *Coordinator) Shutdown() {
	co.clientsMu.Lock()
	clients := make([]*Client, 0, len(co.clients))
	for c := range co.clients {
		clients = append(clients, c)
	}
	co.clientsMu.Unlock()

	for _, c := range clients {
		c.Close()
	}

	co.logger.Info().Int("connections", len(clients)).Msg("Coordinator shutdown complete.")
}

// getHistory implements the retrieve-history operation. It returns the full
// ordered message sequence of the chat with receiverID, marking every
// not-yet-read message from the other party as read and notifying each such
// message's author over the chat's room.
func (co *Coordinator) getHistory(c *Client, receiverID string) {
	ctx, cancel := opCtx()
	defer cancel()

	if _, err := co.store.FindUser(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.Push(EventChatHistory, HistoryPayload{
				Error:  errs.NewError(errs.ErrRecipientNotFound).Message,
				Status: statusError,
			})
			return
		}

		co.logger.Error().Err(err).Str("user_id", c.userID).Msg("getHistory: receiver lookup failed.")
		c.Push(EventChatHistory, HistoryPayload{
			Error:  errs.NewError(errs.ErrUnknown, err).Message,
			Status: statusError,
		})
		return
	}

	chat, err := co.store.FindChat(ctx, c.userID, receiverID)
	if errors.Is(err, store.ErrNotFound) {
		// No chat yet is a valid outcome: empty history, no room join.
		c.Push(EventChatHistory, HistoryPayload{Data: []store.Message{}, Status: statusOK})
		return
	}
	if err != nil {
		co.logger.Error().Err(err).Str("user_id", c.userID).Msg("getHistory: chat lookup failed.")
		c.Push(EventChatHistory, HistoryPayload{
			Error:  errs.NewError(errs.ErrUnknown, err).Message,
			Status: statusError,
		})
		return
	}

	unlock := co.lockChat(chat.ID)
	stamped, err := co.store.StampAllUnread(ctx, chat.ID, c.userID)
	if err != nil {
		unlock()
		co.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("getHistory: mark-all-read failed.")
		c.Push(EventChatHistory, HistoryPayload{
			Error:  errs.NewError(errs.ErrUnknown, err).Message,
			Status: statusError,
		})
		return
	}

	// History is fetched after stamping so repeated calls return identical
	// sequences.
	history, err := co.store.Messages(ctx, chat.ID)
	unlock()
	if err != nil {
		co.logger.Error().Err(err).Str("chat_id", chat.ID).Msg("getHistory: message fetch failed.")
		c.Push(EventChatHistory, HistoryPayload{
			Error:  errs.NewError(errs.ErrUnknown, err).Message,
			Status: statusError,
		})
		return
	}

	co.rooms.Join(chat.ID, c)

	co.notifyRead(chat.ID, c.userID, stamped)

	c.Push(EventChatHistory, HistoryPayload{Data: history, Status: statusOK})
}

// notifyRead pushes a read receipt for every just-transitioned message to
// the connections of that message's author currently in the chat's room.
func (co *Coordinator) notifyRead(chatID, readerID string, stamped []store.Message) {
	if len(stamped) == 0 {
		return
	}

	members := co.rooms.MembersOf(chatID)

	for _, msg := range stamped {
		readAt, ok := msg.ReadStatus[readerID]
		if !ok {
			continue
		}

		for _, member := range members {
			if member.UserID() != msg.Author {
				continue
			}

			member.Push(EventMessageRead, MessageReadPayload{
				ChatID:    chatID,
				MessageID: msg.ID,
				ReadAt:    readAt,
				ReaderID:  readerID,
			})
		}
	}
}

// sendMessage implements the send-message operation: append to the lazily
// created chat, join the sender to the chat's room, and publish the
// delivery event. The sender's ack does not carry the message back; the
// bus handler on the sender's own connection suppresses the echo.
func (co *Coordinator) sendMessage(c *Client, payload SendMessagePayload) {
	if payload.Receiver == "" || payload.Text == "" {
		c.SendError(errs.NewError(errs.ErrMissingMessageFields))
		return
	}

	ctx, cancel := opCtx()
	defer cancel()

	if _, err := co.store.FindUser(ctx, payload.Receiver); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.SendError(errs.NewError(errs.ErrRecipientNotFound))
			return
		}

		co.logger.Error().Err(err).Str("user_id", c.userID).Msg("sendMessage: receiver lookup failed.")
		c.SendError(errs.NewError(errs.ErrUnknown, err))
		return
	}

	chatID := store.ChatID(c.userID, payload.Receiver)

	unlock := co.lockChat(chatID)
	msg, err := co.store.AppendMessage(ctx, c.userID, payload.Receiver, payload.Text)
	unlock()
	if err != nil {
		co.logger.Error().Err(err).Str("chat_id", chatID).Msg("sendMessage: append failed.")
		c.SendError(errs.NewError(errs.ErrUnknown, err))
		return
	}

	co.rooms.Join(chatID, c)

	userA, userB := store.SortedPair(c.userID, payload.Receiver)
	co.bus.Publish(bus.Event{
		ChatID:       chatID,
		Message:      msg,
		Participants: []string{userA, userB},
	})

	c.Push(EventSendMessage, ack())
}

// markAsRead implements the mark-read operation. It stamps the caller's
// read timestamp idempotently; unlike retrieve-history it emits no
// read-receipt notification.
func (co *Coordinator) markAsRead(c *Client, payload MarkAsReadPayload) {
	if payload.ChatID == "" || payload.MessageID == "" {
		c.SendError(errs.NewError(errs.ErrMissingReadFields))
		return
	}

	ctx, cancel := opCtx()
	defer cancel()

	unlock := co.lockChat(payload.ChatID)
	err := co.store.StampRead(ctx, payload.ChatID, payload.MessageID, c.userID)
	unlock()

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.SendError(errs.NewError(errs.ErrMessageNotFoundOrForbidden))
			return
		}

		co.logger.Error().Err(err).Str("chat_id", payload.ChatID).Msg("markAsRead: stamp failed.")
		c.SendError(errs.NewError(errs.ErrUnknown, err))
		return
	}

	c.Push(EventMarkAsRead, ack())
}

// userStatus implements the query-presence operation. Unknown identities
// are simply offline; the query never errors.
func (co *Coordinator) userStatus(c *Client, targetID string) {
	status := presence.StatusOffline
	if co.presence.IsOnline(targetID) {
		status = presence.StatusOnline
	}

	c.Push(presence.EventUserStatus, presence.StatusPayload{
		UserID: targetID,
		Status: status,
	})
}

// lockChat acquires the chat's mutation lock, creating it on first use,
// and returns the unlock function.
func (co *Coordinator) lockChat(chatID string) func() {
	co.chatMu.Lock()
	l, ok := co.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		co.chatLocks[chatID] = l
	}
	co.chatMu.Unlock()

	l.Lock()
	return l.Unlock
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func participant(participants []string, userID string) bool {
	for _, p := range participants {
		if p == userID {
			return true
		}
	}
	return false
}
