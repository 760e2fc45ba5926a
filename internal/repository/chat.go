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

// chatCols: колонки чата; участники и archivedBy собираются из chat_participants.
const chatCols = `c.id, c.chat_type, c.last_message_id, c.last_message_at, c.is_active, c.created_by, c.created_at, c.updated_at,
	COALESCE((SELECT array_agg(p.user_id ORDER BY p.joined_at, p.user_id) FROM chat_participants p WHERE p.chat_id = c.id), '{}'::text[]),
	COALESCE((SELECT array_agg(p.user_id ORDER BY p.archived_at, p.user_id) FROM chat_participants p WHERE p.chat_id = c.id AND p.archived_at IS NOT NULL), '{}'::text[])`

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func scanChat(s interface{ Scan(dest ...any) error }, c *model.Chat) error {
	return s.Scan(&c.ID, &c.ChatType, &c.LastMessageID, &c.LastMessageAt, &c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		&c.Participants, &c.ArchivedBy)
}

func getChat(ctx context.Context, q querier, id string) (*model.Chat, error) {
	c := &model.Chat{}
	if err := scanChat(q.QueryRow(ctx, `SELECT `+chatCols+` FROM chats c WHERE c.id = $1`, id), c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c, err := getChat(ctx, r.pool, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return c, err
}

func findDirect(ctx context.Context, q querier, a, b string) (*model.Chat, error) {
	c := &model.Chat{}
	err := scanChat(q.QueryRow(ctx,
		`SELECT `+chatCols+`
		 FROM chats c
		 WHERE c.chat_type = 'direct'
		   AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = $1)
		   AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = $2)
		 ORDER BY c.created_at
		 LIMIT 1`, a, b), c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChatRepository) FindDirect(ctx context.Context, a, b string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.FindDirect", time.Now())()
	c, err := findDirect(ctx, r.pool, a, b)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("chatRepo.FindDirect: %w", err)
	}
	return c, err
}

// pairKey не зависит от порядка пользователей.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "direct:" + a + ":" + b
}

// CreateDirect под транзакционной advisory-блокировкой пары повторяет поиск и только потом вставляет,
// поэтому два одновременных запроса A→B и B→A получают один и тот же чат.
func (r *ChatRepository) CreateDirect(ctx context.Context, c *model.Chat) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.CreateDirect", time.Now())()
	if len(c.Participants) != 2 {
		return nil, fmt.Errorf("chatRepo.CreateDirect: direct chat needs 2 participants, got %d", len(c.Participants))
	}
	var out *model.Chat
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		a, b := c.Participants[0], c.Participants[1]
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, pairKey(a, b)); err != nil {
			return err
		}
		existing, err := findDirect(ctx, tx, a, b)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO chats (id, chat_type, is_active, created_by, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.ChatType, c.IsActive, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return err
		}
		for i, p := range c.Participants {
			// участники упорядочены по joined_at; второй на микросекунду позже
			joined := c.CreatedAt.Add(time.Duration(i) * time.Microsecond)
			if _, err := tx.Exec(ctx,
				`INSERT INTO chat_participants (chat_id, user_id, joined_at) VALUES ($1, $2, $3)`,
				c.ID, p, joined,
			); err != nil {
				return err
			}
		}
		out, err = getChat(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chatRepo.CreateDirect: %w", err)
	}
	return out, nil
}

func (r *ChatRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]model.Chat, int, error) {
	defer logger.DeferLogDuration("chat.ListForUser", time.Now())()
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chats c
		 JOIN chat_participants me ON me.chat_id = c.id AND me.user_id = $1 AND me.archived_at IS NULL
		 WHERE c.is_active`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("chatRepo.ListForUser count: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+chatCols+`
		 FROM chats c
		 JOIN chat_participants me ON me.chat_id = c.id AND me.user_id = $1 AND me.archived_at IS NULL
		 WHERE c.is_active
		 ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("chatRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	chats := make([]model.Chat, 0, limit)
	for rows.Next() {
		var c model.Chat
		if err := scanChat(rows, &c); err != nil {
			return nil, 0, fmt.Errorf("chatRepo.ListForUser scan: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("chatRepo.ListForUser rows: %w", err)
	}
	return chats, total, nil
}

func (r *ChatRepository) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	defer logger.DeferLogDuration("chat.IsParticipant", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)`,
		chatID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("chatRepo.IsParticipant: %w", err)
	}
	return exists, nil
}

// RemoveParticipant удаляет строку участника (вместе с archived_at) и гасит чат, если участников не осталось.
func (r *ChatRepository) RemoveParticipant(ctx context.Context, chatID, userID string, at time.Time) error {
	defer logger.DeferLogDuration("chat.RemoveParticipant", time.Now())()
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE chats SET updated_at = $2 WHERE id = $1`, chatID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM chat_participants WHERE chat_id = $1 AND user_id = $2`, chatID, userID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE chats SET is_active = false
			 WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = $1)`, chatID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("chatRepo.RemoveParticipant: %w", err)
	}
	return nil
}

func (r *ChatRepository) SetArchived(ctx context.Context, chatID, userID string, archived bool, at time.Time) error {
	defer logger.DeferLogDuration("chat.SetArchived", time.Now())()
	var archivedAt *time.Time
	if archived {
		archivedAt = &at
	}
	// COALESCE сохраняет исходный момент архивации при повторном вызове
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_participants
		 SET archived_at = CASE WHEN $3::timestamptz IS NULL THEN NULL ELSE COALESCE(archived_at, $3) END
		 WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID, archivedAt,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.SetArchived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := r.pool.Exec(ctx, `UPDATE chats SET updated_at = $2 WHERE id = $1`, chatID, at); err != nil {
		return fmt.Errorf("chatRepo.SetArchived touch: %w", err)
	}
	return nil
}

func (r *ChatRepository) SetLastMessage(ctx context.Context, chatID string, messageID *string, at *time.Time) error {
	defer logger.DeferLogDuration("chat.SetLastMessage", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE chats SET last_message_id = $2, last_message_at = $3 WHERE id = $1`,
		chatID, messageID, at,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.SetLastMessage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
