package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/chat-relay/internal/types"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) driverName() string {
	return string(d)
}

// Open returns a store for the named driver, either "postgres" or "sqlite".
func Open(driver, dsn string) (*SQLStore, error) {
	switch Dialect(driver) {
	case DialectPostgres:
		return OpenPostgres(dsn)
	case DialectSQLite:
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// SQLStore implements Store on database/sql. Queries are written with '?'
// placeholders and rebound for PostgreSQL.
type SQLStore struct {
	conn    *sql.DB
	dialect Dialect
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}

	return b.String()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return storeErr("ping", s.conn.PingContext(ctx))
}

func (s *SQLStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, msg NewMessage) (Message, error) {
	if msg.MessageType == "" {
		msg.MessageType = types.MessageTypeText
	}

	created := Message{
		SourceId:      msg.SourceId,
		TargetId:      msg.TargetId,
		Body:          msg.Body,
		MessageType:   msg.MessageType,
		Path:          msg.Path,
		DeliveryState: types.DeliveryCreated,
		CreatedAt:     fromMillis(toMillis(time.Now())),
	}

	row := s.conn.QueryRowContext(ctx, s.rebind(
		"INSERT INTO messages (source_id, target_id, body, message_type, path, delivery_state, is_read, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, 0, ?) RETURNING id"),
		created.SourceId,
		created.TargetId,
		created.Body,
		string(created.MessageType),
		created.Path,
		string(created.DeliveryState),
		toMillis(created.CreatedAt),
	)

	if err := row.Scan(&created.Id); err != nil {
		return Message{}, storeErr("append message", err)
	}

	return created, nil
}

func (s *SQLStore) UpdateDeliveryState(ctx context.Context, id int64, state types.DeliveryState) error {
	_, err := s.conn.ExecContext(ctx, s.rebind(
		"UPDATE messages SET delivery_state = ? WHERE id = ?"),
		string(state),
		id,
	)

	return storeErr("update delivery state", err)
}

func (s *SQLStore) MarkRead(ctx context.Context, id int64, readerId string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, s.rebind(
		"UPDATE messages SET is_read = 1 WHERE id = ? AND target_id = ? AND message_type <> ?"),
		id,
		readerId,
		string(types.MessageTypeRoom),
	)
	if err != nil {
		return false, storeErr("mark read", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("mark read", err)
	}

	return n > 0, nil
}

func (s *SQLStore) UpsertConversation(ctx context.Context, key PairKey, lastMessage string, at time.Time) error {
	_, err := s.conn.ExecContext(ctx, s.rebind(
		"INSERT INTO conversations (user_a, user_b, last_message, last_message_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (user_a, user_b) DO UPDATE SET "+
			"last_message = excluded.last_message, last_message_at = excluded.last_message_at "+
			"WHERE conversations.last_message_at <= excluded.last_message_at"),
		key.UserA,
		key.UserB,
		lastMessage,
		toMillis(at),
	)

	return storeErr("upsert conversation", err)
}

func (s *SQLStore) QueryUnreadCount(ctx context.Context, viewerId, otherId string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, s.rebind(
		"SELECT COUNT(*) FROM messages "+
			"WHERE target_id = ? AND source_id = ? AND is_read = 0 AND message_type <> ?"),
		viewerId,
		otherId,
		string(types.MessageTypeRoom),
	).Scan(&count)
	if err != nil {
		return 0, storeErr("query unread count", err)
	}

	return count, nil
}

// QueryHistory returns up to limit messages exchanged between the two users,
// skipping the offset most recent ones, in ascending time order.
func (s *SQLStore) QueryHistory(ctx context.Context, userA, userB string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.conn.QueryContext(ctx, s.rebind(
		"SELECT id, source_id, target_id, body, message_type, path, delivery_state, is_read, created_at FROM ("+
			"SELECT id, source_id, target_id, body, message_type, path, delivery_state, is_read, created_at FROM messages "+
			"WHERE message_type <> ? AND ((source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)) "+
			"ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"+
			") recent ORDER BY created_at ASC, id ASC"),
		string(types.MessageTypeRoom),
		userA, userB,
		userB, userA,
		limit,
		offset,
	)
	if err != nil {
		return nil, storeErr("query history", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var (
			msg       Message
			msgType   string
			state     string
			isRead    int
			createdAt int64
		)
		if err := rows.Scan(
			&msg.Id,
			&msg.SourceId,
			&msg.TargetId,
			&msg.Body,
			&msgType,
			&msg.Path,
			&state,
			&isRead,
			&createdAt,
		); err != nil {
			return nil, storeErr("query history", err)
		}

		msg.MessageType = types.MessageType(msgType)
		msg.DeliveryState = types.DeliveryState(state)
		msg.IsRead = isRead != 0
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("query history", err)
	}

	return messages, nil
}

func (s *SQLStore) ListConversations(ctx context.Context, userId string) ([]Conversation, error) {
	rows, err := s.conn.QueryContext(ctx, s.rebind(
		"SELECT user_a, user_b, last_message, last_message_at FROM conversations "+
			"WHERE user_a = ? OR user_b = ? ORDER BY last_message_at DESC"),
		userId,
		userId,
	)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var (
			c  Conversation
			at int64
		)
		if err := rows.Scan(&c.Key.UserA, &c.Key.UserB, &c.LastMessage, &at); err != nil {
			return nil, storeErr("list conversations", err)
		}

		c.LastMessageTime = fromMillis(at)
		conversations = append(conversations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("list conversations", err)
	}

	return conversations, nil
}

func (s *SQLStore) SetPresence(ctx context.Context, userId string, online bool, at time.Time) error {
	var isOnline int
	if online {
		isOnline = 1
	}

	_, err := s.conn.ExecContext(ctx, s.rebind(
		"INSERT INTO user_presence (user_id, is_online, last_seen) VALUES (?, ?, ?) "+
			"ON CONFLICT (user_id) DO UPDATE SET is_online = excluded.is_online, last_seen = excluded.last_seen"),
		userId,
		isOnline,
		toMillis(at),
	)

	return storeErr("set presence", err)
}

func (s *SQLStore) ListPresence(ctx context.Context) ([]Presence, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT user_id, is_online, last_seen FROM user_presence ORDER BY user_id")
	if err != nil {
		return nil, storeErr("list presence", err)
	}
	defer rows.Close()

	var users []Presence
	for rows.Next() {
		var (
			p        Presence
			isOnline int
			lastSeen int64
		)
		if err := rows.Scan(&p.UserId, &isOnline, &lastSeen); err != nil {
			return nil, storeErr("list presence", err)
		}

		p.IsOnline = isOnline != 0
		p.LastSeen = fromMillis(lastSeen)
		users = append(users, p)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("list presence", err)
	}

	return users, nil
}
