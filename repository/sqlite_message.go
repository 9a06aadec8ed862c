package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akinalp/relay/database"
	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/pkg/crypto"
)

// searchBatchSize, arama sırasında her turda çözülen mesaj sayısı.
// Gövdeler şifreli olduğu için eşleştirme SQL'de değil Go'da yapılır.
const searchBatchSize = 200

type sqliteMessageRepo struct {
	db    database.TxQuerier
	codec crypto.BodyCodec
}

// NewSQLiteMessageRepo, constructor. codec body'nin at-rest dönüşümünü yapar.
func NewSQLiteMessageRepo(db database.TxQuerier, codec crypto.BodyCodec) MessageRepository {
	return &sqliteMessageRepo{db: db, codec: codec}
}

const messageSelect = `
		SELECT m.id, m.chat_id, m.user_id, m.body, m.created_at, m.deleted_for_all_at,
		       m.forward_from_message_id, m.forward_from_user_id, m.forward_from_chat_id,
		       u.id, u.nickname, u.name, u.email
		FROM messages m
		INNER JOIN users u ON u.id = m.user_id`

// visibleFilter, iki parametre bekler: chat_id, viewer user_id.
const visibleFilter = `
		WHERE m.chat_id = ?
		  AND m.deleted_for_all_at IS NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM message_user_deletions d
		      WHERE d.message_id = m.id AND d.user_id = ?
		  )`

func (r *sqliteMessageRepo) scanMessage(row interface{ Scan(dest ...any) error }) (*models.Message, error) {
	m := &models.Message{}
	sender := &models.UserSummary{}
	var stored string

	if err := row.Scan(
		&m.ID, &m.ChatID, &m.UserID, &stored, &m.CreatedAt, &m.DeletedForAllAt,
		&m.ForwardFromMessageID, &m.ForwardFromUserID, &m.ForwardFromChatID,
		&sender.ID, &sender.Nickname, &sender.Name, &sender.Email,
	); err != nil {
		return nil, err
	}

	body, err := r.codec.Open(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message %d: %w", m.ID, err)
	}
	m.Body = body
	m.Sender = sender
	return m, nil
}

func (r *sqliteMessageRepo) collect(rows *sql.Rows) ([]models.Message, error) {
	messages := []models.Message{}
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func (r *sqliteMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	sealed, err := r.codec.Seal(msg.Body)
	if err != nil {
		return fmt.Errorf("failed to encode message body: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO messages (chat_id, user_id, body, created_at,
		                      forward_from_message_id, forward_from_user_id, forward_from_chat_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		msg.ChatID, msg.UserID, sealed, msg.CreatedAt,
		msg.ForwardFromMessageID, msg.ForwardFromUserID, msg.ForwardFromChatID,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	m, err := r.scanMessage(r.db.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

func (r *sqliteMessageRepo) ListVisible(ctx context.Context, chatID, viewerID int64, limit, offset int) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, messageSelect+visibleFilter+`
		ORDER BY m.id DESC
		LIMIT ? OFFSET ?`, chatID, viewerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

func (r *sqliteMessageRepo) CountVisible(ctx context.Context, chatID, viewerID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m`+visibleFilter,
		chatID, viewerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *sqliteMessageRepo) SearchVisible(ctx context.Context, chatID, viewerID int64, term string, limit int) ([]models.Message, error) {
	needle := strings.ToLower(term)
	results := []models.Message{}

	// Keyset pagination: her batch bir öncekinin en küçük ID'sinden başlar.
	var before int64 = -1
	for len(results) < limit {
		query := messageSelect + visibleFilter
		args := []any{chatID, viewerID}
		if before >= 0 {
			query += ` AND m.id < ?`
			args = append(args, before)
		}
		query += ` ORDER BY m.id DESC LIMIT ?`
		args = append(args, searchBatchSize)

		batch, err := r.queryBatch(ctx, query, args...)
		if err != nil {
			return nil, err
		}

		for _, m := range batch {
			if strings.Contains(strings.ToLower(m.Body), needle) {
				results = append(results, m)
				if len(results) == limit {
					break
				}
			}
		}

		if len(batch) < searchBatchSize {
			break
		}
		before = batch[len(batch)-1].ID
	}

	return results, nil
}

func (r *sqliteMessageRepo) queryBatch(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

func (r *sqliteMessageRepo) LastVisible(ctx context.Context, chatID, viewerID int64) (*models.Message, error) {
	m, err := r.scanMessage(r.db.QueryRowContext(ctx,
		messageSelect+visibleFilter+` ORDER BY m.id DESC LIMIT 1`, chatID, viewerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last message: %w", err)
	}
	return m, nil
}

func (r *sqliteMessageRepo) CountUnread(ctx context.Context, chatID, userID int64, cursor *int64) (int, error) {
	var after int64
	if cursor != nil {
		after = *cursor
	}

	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m`+visibleFilter+`
		  AND m.user_id != ?
		  AND m.id > ?`, chatID, userID, userID, after).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

func (r *sqliteMessageRepo) MaxIncomingID(ctx context.Context, chatID, userID int64) (int64, error) {
	var id sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM messages WHERE chat_id = ? AND user_id != ?`,
		chatID, userID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get max incoming id: %w", err)
	}
	return id.Int64, nil
}

func (r *sqliteMessageRepo) HideForUser(ctx context.Context, messageID, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_user_deletions (message_id, user_id, deleted_at)
		VALUES (?, ?, ?)
		ON CONFLICT (message_id, user_id) DO UPDATE SET deleted_at = excluded.deleted_at`,
		messageID, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to hide message: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) MarkDeletedForAll(ctx context.Context, messageID int64, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_for_all_at = ? WHERE id = ? AND deleted_for_all_at IS NULL`,
		at.UTC(), messageID)
	if err != nil {
		return false, fmt.Errorf("failed to delete message for all: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected > 0, nil
}
