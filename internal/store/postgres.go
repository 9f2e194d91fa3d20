package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wuwenbin0122/lovelens/internal/models"
)

// Postgres stores timestamps with microsecond precision.
const postgresResolution = time.Microsecond

// PostgresStore keeps conversations and messages in two tables; see db.Postgres.EnsureSchema.
type PostgresStore struct {
	pool *pgxpool.Pool

	now   func() time.Time
	newID func() string
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now, newID: uuid.NewString}
}

const selectConversationColumns = "SELECT id, title, summary, insights, created_at, updated_at FROM conversations"

func (s *PostgresStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, selectConversationColumns+" ORDER BY created_at DESC, seq ASC")
	if err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}

	conversations := make([]models.Conversation, 0)
	index := make(map[string]int)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan conversation: %w", err)
		}
		index[conv.ID] = len(conversations)
		conversations = append(conversations, conv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}

	msgRows, err := s.pool.Query(ctx, "SELECT conversation_id, id, content, sender, timestamp FROM messages ORDER BY conversation_id, id")
	if err != nil {
		return nil, fmt.Errorf("postgres: list messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		msg, err := scanMessage(msgRows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		if i, ok := index[msg.ConversationID]; ok {
			conversations[i].Messages = append(conversations[i].Messages, msg)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list messages: %w", err)
	}

	return conversations, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, selectConversationColumns+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get conversation: %w", err)
	}

	rows, err := s.pool.Query(ctx, "SELECT conversation_id, id, content, sender, timestamp FROM messages WHERE conversation_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("postgres: get messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get messages: %w", err)
	}

	return &conv, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, input CreateInput) (*models.Conversation, error) {
	input = normalizeCreate(input, s.newID)
	created := nextStamp(s.now(), time.Time{}, postgresResolution)

	const query = "INSERT INTO conversations (id, title, summary, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)"
	if _, err := s.pool.Exec(ctx, query, input.ID, input.Title, input.Summary, created); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("postgres: create conversation: %w", err)
	}

	return &models.Conversation{
		ID:        input.ID,
		Title:     input.Title,
		Summary:   input.Summary,
		CreatedAt: created,
		UpdatedAt: created,
		Messages:  []models.Message{},
	}, nil
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, id string, update Update) (*models.Conversation, error) {
	var insights any
	if update.Insights != nil {
		insights = string(update.Insights)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		updatedAt, err := lockConversation(ctx, tx, id)
		if err != nil {
			return err
		}

		const query = `UPDATE conversations
SET title = COALESCE($2, title),
    summary = COALESCE($3, summary),
    insights = COALESCE($4::jsonb, insights),
    updated_at = $5
WHERE id = $1`
		_, err = tx.Exec(ctx, query, id, update.Title, update.Summary, insights, nextStamp(s.now(), updatedAt, postgresResolution))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: update conversation: %w", err)
	}

	return s.GetConversation(ctx, id)
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM conversations WHERE id = $1", id); err != nil {
		return fmt.Errorf("postgres: delete conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, conversationID, content string, sender models.Sender) (*models.Message, error) {
	if !sender.Valid() {
		return nil, ErrInvalidSender
	}

	var msg models.Message
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		updatedAt, err := lockConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}

		var lastID int
		if err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) FROM messages WHERE conversation_id = $1", conversationID).Scan(&lastID); err != nil {
			return err
		}

		msg = models.Message{
			ID:             lastID + 1,
			ConversationID: conversationID,
			Content:        content,
			Sender:         sender,
			Timestamp:      nextStamp(s.now(), updatedAt, postgresResolution),
		}

		const insert = "INSERT INTO messages (conversation_id, id, content, sender, timestamp) VALUES ($1, $2, $3, $4, $5)"
		if _, err := tx.Exec(ctx, insert, msg.ConversationID, msg.ID, msg.Content, string(msg.Sender), msg.Timestamp); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, "UPDATE conversations SET updated_at = $2 WHERE id = $1", conversationID, msg.Timestamp)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: add message: %w", err)
	}

	return &msg, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func lockConversation(ctx context.Context, tx pgx.Tx, id string) (time.Time, error) {
	var updatedAt time.Time
	err := tx.QueryRow(ctx, "SELECT updated_at FROM conversations WHERE id = $1 FOR UPDATE", id).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	return updatedAt.UTC(), err
}

func scanConversation(row pgx.Row) (models.Conversation, error) {
	var (
		conv     models.Conversation
		insights []byte
	)
	if err := row.Scan(&conv.ID, &conv.Title, &conv.Summary, &insights, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return models.Conversation{}, err
	}
	if len(insights) > 0 {
		conv.Insights = insights
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	conv.Messages = []models.Message{}
	return conv, nil
}

func scanMessage(row pgx.Row) (models.Message, error) {
	var (
		msg    models.Message
		sender string
	)
	if err := row.Scan(&msg.ConversationID, &msg.ID, &msg.Content, &sender, &msg.Timestamp); err != nil {
		return models.Message{}, err
	}
	msg.Sender = models.Sender(sender)
	msg.Timestamp = msg.Timestamp.UTC()
	return msg, nil
}
