package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	userColumns         = "id, name, email, role, created_at"
	conversationColumns = "id, participant_a, participant_b, user_lo, user_hi, created_at, last_activity_at"
	messageColumns      = "id, conversation_id, sender_id, content, read, created_at"

	// summarySelect joins each conversation with its newest message. The
	// unread count expression is filled in per query.
	summarySelect = "SELECT c.id, c.participant_a, c.participant_b, c.user_lo, c.user_hi, " +
		"c.created_at, c.last_activity_at, " +
		"m.id, m.sender_id, m.content, m.read, m.created_at, %s " +
		"FROM conversations c " +
		"LEFT JOIN messages m ON m.id = (" +
		"SELECT l.id FROM messages l WHERE l.conversation_id = c.id " +
		"ORDER BY l.created_at DESC, l.id DESC LIMIT 1) "
)

type scanner interface {
	Scan(dest ...any) error
}

func (db *SQLRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(&u.Id, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, err
}

func scanConversation(row scanner) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.Id,
		&c.ParticipantA,
		&c.ParticipantB,
		&c.UserLo,
		&c.UserHi,
		&c.CreatedAt,
		&c.LastActivityAt,
	)
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastActivityAt = c.LastActivityAt.UTC()
	return c, err
}

func scanMessage(row scanner) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.ConversationId,
		&m.SenderId,
		&m.Content,
		&m.Read,
		&m.CreatedAt,
	)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func scanSummary(row scanner) (ConversationSummary, error) {
	var (
		s         ConversationSummary
		msgId     sql.NullInt64
		sender    sql.NullString
		content   sql.NullString
		read      sql.NullBool
		createdAt sql.NullTime
	)
	err := row.Scan(
		&s.Id,
		&s.ParticipantA,
		&s.ParticipantB,
		&s.UserLo,
		&s.UserHi,
		&s.CreatedAt,
		&s.LastActivityAt,
		&msgId,
		&sender,
		&content,
		&read,
		&createdAt,
		&s.UnreadCount,
	)
	if err != nil {
		return s, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.LastActivityAt = s.LastActivityAt.UTC()

	if msgId.Valid {
		s.LastMessage = &Message{
			Id:             msgId.Int64,
			ConversationId: s.Id,
			SenderId:       sender.String,
			Content:        content.String,
			Read:           read.Bool,
			CreatedAt:      createdAt.Time.UTC(),
		}
	}

	return s, nil
}

func (db *SQLRepository) GetUser(ctx context.Context, id string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1"),
		id,
	)

	return scanUser(row)
}

func (db *SQLRepository) HasAcceptedConnection(ctx context.Context, a, b string) (bool, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT COUNT(*) FROM connections WHERE status = ? AND "+
			"((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))"),
		ConnectionAccepted, a, b, b, a,
	)

	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}

	return n > 0, nil
}

func (db *SQLRepository) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT "+conversationColumns+" FROM conversations WHERE id = ? LIMIT 1"),
		id,
	)

	return scanConversation(row)
}

func (db *SQLRepository) FindConversationByPair(ctx context.Context, userLo, userHi string) (Conversation, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT "+conversationColumns+" FROM conversations "+
			"WHERE user_lo = ? AND user_hi = ? LIMIT 1"),
		userLo, userHi,
	)

	return scanConversation(row)
}

// CreateConversation inserts a conversation row. A concurrent insert of the
// same participant pair surfaces as ErrConflict.
func (db *SQLRepository) CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("INSERT INTO conversations ("+conversationColumns+") "+
			"VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING "+conversationColumns),
		params.Id,
		params.ParticipantA,
		params.ParticipantB,
		params.UserLo,
		params.UserHi,
		params.CreatedAt,
		params.CreatedAt,
	)

	c, err := scanConversation(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Conversation{}, fmt.Errorf("conversation %s/%s: %w", params.UserLo, params.UserHi, ErrConflict)
		}
		return Conversation{}, err
	}

	return c, nil
}

func (db *SQLRepository) ListConversationsForUser(ctx context.Context, userId string) ([]ConversationSummary, error) {
	query := fmt.Sprintf(summarySelect,
		"(SELECT COUNT(*) FROM messages u WHERE u.conversation_id = c.id AND u.sender_id <> ? AND u.read = ?)") +
		"WHERE c.participant_a = ? OR c.participant_b = ? " +
		"ORDER BY c.last_activity_at DESC, c.id"

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), userId, false, userId, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSummaries(rows)
}

// ListAllConversations returns every conversation, optionally filtered by a
// case-insensitive match on either participant's name or email.
func (db *SQLRepository) ListAllConversations(ctx context.Context, search string) ([]ConversationSummary, error) {
	query := fmt.Sprintf(summarySelect,
		"(SELECT COUNT(*) FROM messages u WHERE u.conversation_id = c.id AND u.read = ?)")
	args := []any{false}

	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query += "LEFT JOIN users ua ON ua.id = c.participant_a " +
			"LEFT JOIN users ub ON ub.id = c.participant_b " +
			"WHERE LOWER(ua.name) LIKE ? OR LOWER(ua.email) LIKE ? " +
			"OR LOWER(ub.name) LIKE ? OR LOWER(ub.email) LIKE ? "
		args = append(args, pattern, pattern, pattern, pattern)
	}
	query += "ORDER BY c.last_activity_at DESC, c.id"

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSummaries(rows)
}

func collectSummaries(rows *sql.Rows) ([]ConversationSummary, error) {
	summaries := []ConversationSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// DeleteConversation removes a conversation and all of its messages in one
// transaction. It returns sql.ErrNoRows when the conversation does not exist.
func (db *SQLRepository) DeleteConversation(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			db.rebind("DELETE FROM messages WHERE conversation_id = ?"), id,
		); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}

		res, err := tx.ExecContext(ctx, db.rebind("DELETE FROM conversations WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}

		return nil
	})
}

// CreateMessage appends a message and advances the conversation's
// last_activity_at in the same transaction. It returns sql.ErrNoRows when the
// conversation does not exist.
func (db *SQLRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	var m Message
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			db.rebind("UPDATE conversations SET last_activity_at = ? WHERE id = ?"),
			params.CreatedAt, params.ConversationId,
		)
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}

		row := tx.QueryRowContext(ctx,
			db.rebind("INSERT INTO messages (conversation_id, sender_id, content, read, created_at) "+
				"VALUES (?, ?, ?, ?, ?) RETURNING "+messageColumns),
			params.ConversationId,
			params.SenderId,
			params.Content,
			false,
			params.CreatedAt,
		)

		m, err = scanMessage(row)
		return err
	})

	return m, err
}

func (db *SQLRepository) GetMessage(ctx context.Context, id int64) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT "+messageColumns+" FROM messages WHERE id = ? LIMIT 1"),
		id,
	)

	return scanMessage(row)
}

// ListMessages returns a conversation's messages ordered oldest first.
func (db *SQLRepository) ListMessages(ctx context.Context, conversationId string) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		db.rebind("SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? "+
			"ORDER BY created_at ASC, id ASC"),
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkMessagesRead flags every message in the conversation not sent by
// readerId as read and reports how many rows changed.
func (db *SQLRepository) MarkMessagesRead(ctx context.Context, conversationId, readerId string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		db.rebind("UPDATE messages SET read = ? WHERE conversation_id = ? AND sender_id <> ? AND read = ?"),
		true, conversationId, readerId, false,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *SQLRepository) DeleteMessage(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM messages WHERE id = ?"), id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *SQLRepository) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&stats.Conversations); err != nil {
		return stats, fmt.Errorf("count conversations: %w", err)
	}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&stats.Messages); err != nil {
		return stats, fmt.Errorf("count messages: %w", err)
	}

	return stats, nil
}

func (db *SQLRepository) UpsertUser(ctx context.Context, params UpsertUserParams) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("INSERT INTO users (id, name, email, role, created_at) VALUES (?, ?, ?, ?, ?) "+
			"ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email, role = excluded.role "+
			"RETURNING "+userColumns),
		params.Id,
		params.Name,
		params.Email,
		params.Role,
		time.Now().UTC(),
	)

	return scanUser(row)
}

// UpsertConnection records the status between two users regardless of which
// of them sent the original request.
func (db *SQLRepository) UpsertConnection(ctx context.Context, params UpsertConnectionParams) (Connection, error) {
	var c Connection
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			db.rebind("UPDATE connections SET status = ? WHERE "+
				"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?) "+
				"RETURNING id, sender_id, receiver_id, status, created_at"),
			params.Status,
			params.SenderId, params.ReceiverId,
			params.ReceiverId, params.SenderId,
		)

		err := row.Scan(&c.Id, &c.SenderId, &c.ReceiverId, &c.Status, &c.CreatedAt)
		if err != sql.ErrNoRows {
			return err
		}

		row = tx.QueryRowContext(ctx,
			db.rebind("INSERT INTO connections (id, sender_id, receiver_id, status, created_at) "+
				"VALUES (?, ?, ?, ?, ?) RETURNING id, sender_id, receiver_id, status, created_at"),
			params.Id,
			params.SenderId,
			params.ReceiverId,
			params.Status,
			time.Now().UTC(),
		)

		return row.Scan(&c.Id, &c.SenderId, &c.ReceiverId, &c.Status, &c.CreatedAt)
	})

	return c, err
}
