package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
)

// msgCols: колонки сообщения; readBy собирается из message_reads в jsonb {user_id: read_at}.
const msgCols = `m.id, m.chat_id, m.sender_id, m.content, m.message_type, m.attachments, m.reply_to_id,
	m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.created_at, m.updated_at,
	COALESCE((SELECT jsonb_object_agg(r.user_id, r.read_at) FROM message_reads r WHERE r.message_id = m.id), '{}'::jsonb)`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	if err := s.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.MessageType, &m.Attachments, &m.ReplyToID,
		&m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt, &m.CreatedAt, &m.UpdatedAt, &m.ReadBy); err != nil {
		return err
	}
	if m.Attachments == nil {
		m.Attachments = []model.Attachment{}
	}
	if m.ReadBy == nil {
		m.ReadBy = map[string]time.Time{}
	}
	return nil
}

// Create вставляет сообщение и в той же транзакции продвигает указатель последнего сообщения чата.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	attachments := m.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, chat_id, sender_id, content, message_type, attachments, reply_to_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, m.ChatID, m.SenderID, m.Content, m.MessageType, attachments, m.ReplyToID, m.CreatedAt, m.UpdatedAt,
		); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE chats SET last_message_id = $2, last_message_at = $3, updated_at = $3 WHERE id = $1`,
			m.ChatID, m.ID, m.CreatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+msgCols+` FROM messages m WHERE m.id = $1`, id), m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) ListByChat(ctx context.Context, chatID string, limit, offset int) ([]model.Message, int, error) {
	defer logger.DeferLogDuration("msg.ListByChat", time.Now())()
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = $1 AND NOT is_deleted`, chatID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("msgRepo.ListByChat count: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+msgCols+`
		 FROM messages m
		 WHERE m.chat_id = $1 AND NOT m.is_deleted
		 ORDER BY m.created_at DESC, m.seq DESC
		 LIMIT $2 OFFSET $3`, chatID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("msgRepo.ListByChat query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, 0, fmt.Errorf("msgRepo.ListByChat scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("msgRepo.ListByChat rows: %w", err)
	}
	return messages, total, nil
}

func (r *MessageRepository) Latest(ctx context.Context, chatID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Latest", time.Now())()
	m := &model.Message{}
	err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+msgCols+`
		 FROM messages m
		 WHERE m.chat_id = $1 AND NOT m.is_deleted
		 ORDER BY m.created_at DESC, m.seq DESC
		 LIMIT 1`, chatID), m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Latest: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, at time.Time) error {
	defer logger.DeferLogDuration("msg.UpdateContent", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET content = $2, is_edited = true, edited_at = $3, updated_at = $3 WHERE id = $1`,
		id, content, at,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateContent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete идемпотентен: повторный вызов не меняет deleted_at.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	defer logger.DeferLogDuration("msg.SoftDelete", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages
		 SET is_deleted = true, deleted_at = COALESCE(deleted_at, $2), updated_at = CASE WHEN is_deleted THEN updated_at ELSE $2 END
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.SoftDelete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, chatID, userID string, at time.Time) (int64, error) {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at)
		 SELECT m.id, $2, $3 FROM messages m
		 WHERE m.chat_id = $1 AND m.sender_id <> $2
		 ON CONFLICT DO NOTHING`,
		chatID, userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	defer logger.DeferLogDuration("msg.CountUnread", time.Now())()
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN chat_participants p ON p.chat_id = m.chat_id AND p.user_id = $1
		 WHERE m.sender_id <> $1 AND NOT m.is_deleted
		   AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $1)`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.CountUnread: %w", err)
	}
	return n, nil
}
