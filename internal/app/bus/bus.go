/*
Package bus is the in-process publish/subscribe channel that decouples
message persistence from delivery. The delivery coordinator publishes one
event per successfully stored message; each live connection's handler
decides whether to push it to its client. Events are ephemeral and never
persisted.
*/
package bus

import (
	"sync"

	"github.com/rs/zerolog"

	"dmchat/internal/app/store"
	"dmchat/internal/pkg/logx"
)

// Event describes a newly stored message.
type Event struct {
	ChatID       string
	Message      store.Message
	Participants []string
}

// Handler consumes a delivery event. Handlers run synchronously on the
// publisher's goroutine, in registration order.
type Handler func(Event)

// Token identifies a subscription for later revocation.
type Token uint64

type subscription struct {
	token   Token
	handler Handler
}

// Bus is the mutex-guarded subscriber list.
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	next   Token
	logger zerolog.Logger
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		logger: logx.Logger().With().Str("component", "Bus").Logger(),
	}
}

// Subscribe registers a handler for every future event and returns its
// revocation token.
func (b *Bus) Subscribe(h Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.subs = append(b.subs, subscription{token: b.next, handler: h})
	return b.next
}

// Unsubscribe removes the subscription. Idempotent; unknown tokens are ignored.
func (b *Bus) Unsubscribe(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.token == token {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish invokes every currently subscribed handler once, in registration
// order. A panicking handler must not prevent delivery to the rest.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		b.invoke(sub, event)
	}
}

func (b *Bus) invoke(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("chat_id", event.ChatID).
				Msg("Subscriber panicked during delivery. Continuing fan-out.")
		}
	}()

	sub.handler(event)
}
