package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable Store implementation backed by pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an initialized connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// FindUser implements Store.
func (p *PostgresStore) FindUser(ctx context.Context, userID string) (User, error) {
	var u User
	err := p.pool.QueryRow(ctx,
		`SELECT id, name FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Name)

	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// FindChat implements Store.
func (p *PostgresStore) FindChat(ctx context.Context, userA, userB string) (Chat, error) {
	var c Chat
	err := p.pool.QueryRow(ctx,
		`SELECT id, user_a, user_b, created_at FROM chats WHERE id = $1`,
		ChatID(userA, userB),
	).Scan(&c.ID, &c.Users[0], &c.Users[1], &c.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("find chat: %w", err)
	}
	return c, nil
}

// AppendMessage implements Store. The chat row is created lazily; the
// deterministic chat id makes the insert race-free for concurrent
// first-contact sends from both directions.
func (p *PostgresStore) AppendMessage(ctx context.Context, authorID, receiverID, text string) (Message, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("append message: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	chatID := ChatID(authorID, receiverID)
	a, b := SortedPair(authorID, receiverID)

	if _, err := tx.Exec(ctx,
		`INSERT INTO chats (id, user_a, user_b) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		chatID, a, b,
	); err != nil {
		return Message{}, fmt.Errorf("append message: ensure chat: %w", err)
	}

	msg := Message{
		ID:     uuid.NewString(),
		Author: authorID,
		Text:   text,
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO messages (id, chat_id, author_id, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING sent_at`,
		msg.ID, chatID, authorID, text,
	).Scan(&msg.SentAt); err != nil {
		return Message{}, fmt.Errorf("append message: insert: %w", err)
	}

	if err := tx.QueryRow(ctx,
		`SELECT name FROM users WHERE id = $1`, authorID,
	).Scan(&msg.AuthorName); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, fmt.Errorf("append message: author name: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("append message: commit: %w", err)
	}

	return msg, nil
}

// Messages implements Store.
func (p *PostgresStore) Messages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT m.id, m.author_id, COALESCE(u.name, ''), m.body, m.sent_at
		 FROM messages m
		 LEFT JOIN users u ON u.id = m.author_id
		 WHERE m.chat_id = $1
		 ORDER BY m.seq`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	index := make(map[string]int)

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Author, &m.AuthorName, &m.Text, &m.SentAt); err != nil {
			return nil, fmt.Errorf("messages: scan: %w", err)
		}
		index[m.ID] = len(messages)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messages: rows: %w", err)
	}

	readRows, err := p.pool.Query(ctx,
		`SELECT r.message_id, r.reader_id, r.read_at
		 FROM message_reads r
		 JOIN messages m ON m.id = r.message_id
		 WHERE m.chat_id = $1`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("messages: reads: %w", err)
	}
	defer readRows.Close()

	for readRows.Next() {
		var messageID, readerID string
		var readAt time.Time
		if err := readRows.Scan(&messageID, &readerID, &readAt); err != nil {
			return nil, fmt.Errorf("messages: reads scan: %w", err)
		}

		if i, ok := index[messageID]; ok {
			if messages[i].ReadStatus == nil {
				messages[i].ReadStatus = make(map[string]time.Time)
			}
			messages[i].ReadStatus[readerID] = readAt
		}
	}
	if err := readRows.Err(); err != nil {
		return nil, fmt.Errorf("messages: reads rows: %w", err)
	}

	return messages, nil
}

// StampRead implements Store.
func (p *PostgresStore) StampRead(ctx context.Context, chatID, messageID, readerID string) error {
	if err := p.checkParticipant(ctx, chatID, readerID); err != nil {
		return err
	}

	var authorID string
	err := p.pool.QueryRow(ctx,
		`SELECT author_id FROM messages WHERE id = $1 AND chat_id = $2`,
		messageID, chatID,
	).Scan(&authorID)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("stamp read: %w", err)
	}

	// Reading one's own message is indistinguishable from a missing one.
	if authorID == readerID {
		return ErrNotFound
	}

	if _, err := p.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, reader_id)
		 VALUES ($1, $2)
		 ON CONFLICT (message_id, reader_id) DO NOTHING`,
		messageID, readerID,
	); err != nil {
		return fmt.Errorf("stamp read: insert: %w", err)
	}

	return nil
}

// StampAllUnread implements Store.
func (p *PostgresStore) StampAllUnread(ctx context.Context, chatID, readerID string) ([]Message, error) {
	if err := p.checkParticipant(ctx, chatID, readerID); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`INSERT INTO message_reads (message_id, reader_id)
		 SELECT m.id, $2 FROM messages m
		 WHERE m.chat_id = $1
		   AND m.author_id <> $2
		   AND NOT EXISTS (
		       SELECT 1 FROM message_reads r
		       WHERE r.message_id = m.id AND r.reader_id = $2)
		 RETURNING message_id, read_at`,
		chatID, readerID,
	)
	if err != nil {
		return nil, fmt.Errorf("stamp all unread: %w", err)
	}
	defer rows.Close()

	readAt := make(map[string]time.Time)
	for rows.Next() {
		var messageID string
		var at time.Time
		if err := rows.Scan(&messageID, &at); err != nil {
			return nil, fmt.Errorf("stamp all unread: scan: %w", err)
		}
		readAt[messageID] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stamp all unread: rows: %w", err)
	}

	if len(readAt) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(readAt))
	for id := range readAt {
		ids = append(ids, id)
	}

	msgRows, err := p.pool.Query(ctx,
		`SELECT id, author_id, body, sent_at FROM messages
		 WHERE id = ANY($1)
		 ORDER BY seq`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("stamp all unread: fetch: %w", err)
	}
	defer msgRows.Close()

	var stamped []Message
	for msgRows.Next() {
		var m Message
		if err := msgRows.Scan(&m.ID, &m.Author, &m.Text, &m.SentAt); err != nil {
			return nil, fmt.Errorf("stamp all unread: fetch scan: %w", err)
		}
		m.ReadStatus = map[string]time.Time{readerID: readAt[m.ID]}
		stamped = append(stamped, m)
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("stamp all unread: fetch rows: %w", err)
	}

	return stamped, nil
}

// checkParticipant verifies the chat exists and the user is one of its two
// participants, collapsing both failures into ErrNotFound.
func (p *PostgresStore) checkParticipant(ctx context.Context, chatID, userID string) error {
	var userA, userB string
	err := p.pool.QueryRow(ctx,
		`SELECT user_a, user_b FROM chats WHERE id = $1`, chatID,
	).Scan(&userA, &userB)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}

	if userA != userID && userB != userID {
		return ErrNotFound
	}
	return nil
}
