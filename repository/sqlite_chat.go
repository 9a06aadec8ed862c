package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/relay/database"
	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
)

type sqliteChatRepo struct {
	db database.TxQuerier
}

// NewSQLiteChatRepo, constructor.
func NewSQLiteChatRepo(db database.TxQuerier) ChatRepository {
	return &sqliteChatRepo{db: db}
}

func (r *sqliteChatRepo) Create(ctx context.Context, chat *models.Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO chats (type, title, created_at) VALUES (?, ?, ?) RETURNING id`,
		chat.Type, chat.Title, chat.CreatedAt,
	).Scan(&chat.ID)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (r *sqliteChatRepo) GetByID(ctx context.Context, id int64) (*models.Chat, error) {
	chat := &models.Chat{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, type, title, created_at FROM chats WHERE id = ?`, id,
	).Scan(&chat.ID, &chat.Type, &chat.Title, &chat.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chat", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

func (r *sqliteChatRepo) GetWithMembers(ctx context.Context, id int64) (*models.ChatWithMembers, error) {
	chat, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	members, err := r.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.ChatWithMembers{Chat: *chat, Users: members}, nil
}

func (r *sqliteChatRepo) ListForUser(ctx context.Context, userID int64) ([]models.ChatWithMembers, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.type, c.title, c.created_at
		FROM chats c
		INNER JOIN chat_user cu ON cu.chat_id = c.id
		WHERE cu.user_id = ?
		ORDER BY c.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []models.ChatWithMembers{}
	index := make(map[int64]int)
	for rows.Next() {
		var c models.ChatWithMembers
		if err := rows.Scan(&c.ID, &c.Type, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		c.Users = []models.ChatMember{}
		index[c.ID] = len(chats)
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	if len(chats) == 0 {
		return chats, nil
	}

	// Üyeleri tek sorguda çek (N+1 yerine).
	ids := make([]int64, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	placeholders, args := inClause(ids)
	memberRows, err := r.db.QueryContext(ctx, memberSelect+`
		WHERE cu.chat_id IN (`+placeholders+`)
		ORDER BY cu.chat_id, cu.joined_at, u.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var chatID int64
		var m models.ChatMember
		if err := scanMember(memberRows, &chatID, &m); err != nil {
			return nil, err
		}
		if i, ok := index[chatID]; ok {
			chats[i].Users = append(chats[i].Users, m)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return chats, nil
}

func (r *sqliteChatRepo) ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT chat_id FROM chat_user WHERE user_id = ? ORDER BY chat_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat ids: %w", err)
	}
	defer rows.Close()

	return collectIDs(rows)
}

func (r *sqliteChatRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: chat", pkg.ErrNotFound)
	}
	return nil
}

func (r *sqliteChatRepo) FindPrivateBetween(ctx context.Context, userA, userB int64) (*models.Chat, error) {
	low, high := orderedPair(userA, userB)

	chat := &models.Chat{}
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.type, c.title, c.created_at
		FROM private_chat_pairs p
		INNER JOIN chats c ON c.id = p.chat_id
		WHERE p.user_low = ? AND p.user_high = ?`, low, high,
	).Scan(&chat.ID, &chat.Type, &chat.Title, &chat.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: private chat", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find private chat: %w", err)
	}
	return chat, nil
}

func (r *sqliteChatRepo) ReservePrivatePair(ctx context.Context, chatID, userA, userB int64) error {
	low, high := orderedPair(userA, userB)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO private_chat_pairs (chat_id, user_low, user_high) VALUES (?, ?, ?)`,
		chatID, low, high)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: private chat", pkg.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to reserve private pair: %w", err)
	}
	return nil
}

func (r *sqliteChatRepo) AddMember(ctx context.Context, chatID, userID int64, role models.MemberRole, joinedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO chat_user (chat_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)`, chatID, userID, role, joinedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to add chat member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *sqliteChatRepo) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_user WHERE chat_id = ? AND user_id = ?)`,
		chatID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists == 1, nil
}

func (r *sqliteChatRepo) GetMembership(ctx context.Context, chatID, userID int64) (*models.Membership, error) {
	m := &models.Membership{}
	err := r.db.QueryRowContext(ctx, `
		SELECT chat_id, user_id, role, joined_at, last_read_message_id, last_seen_at
		FROM chat_user WHERE chat_id = ? AND user_id = ?`, chatID, userID,
	).Scan(&m.ChatID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadMessageID, &m.LastSeenAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotAMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

func (r *sqliteChatRepo) MemberIDs(ctx context.Context, chatID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM chat_user WHERE chat_id = ? ORDER BY user_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member ids: %w", err)
	}
	defer rows.Close()

	return collectIDs(rows)
}

func (r *sqliteChatRepo) ListMembers(ctx context.Context, chatID int64) ([]models.ChatMember, error) {
	rows, err := r.db.QueryContext(ctx, memberSelect+`
		WHERE cu.chat_id = ?
		ORDER BY cu.joined_at, u.id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat members: %w", err)
	}
	defer rows.Close()

	members := []models.ChatMember{}
	for rows.Next() {
		var chatID int64
		var m models.ChatMember
		if err := scanMember(rows, &chatID, &m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return members, nil
}

// UpdateReadCursor: tek UPDATE içinde MAX ile clamp: eşzamanlı iki istek
// imleci asla geri taşıyamaz.
func (r *sqliteChatRepo) UpdateReadCursor(ctx context.Context, chatID, userID, messageID int64, seenAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_user
		SET last_read_message_id = MAX(COALESCE(last_read_message_id, 0), ?),
		    last_seen_at = ?
		WHERE chat_id = ? AND user_id = ?`,
		messageID, seenAt.UTC(), chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to update read cursor: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotAMember
	}
	return nil
}

const memberSelect = `
		SELECT cu.chat_id, u.id, u.nickname, u.name, u.last_name, u.email, u.last_seen_at,
		       cu.role, cu.joined_at, cu.last_read_message_id, cu.last_seen_at
		FROM chat_user cu
		INNER JOIN users u ON u.id = cu.user_id`

func scanMember(rows *sql.Rows, chatID *int64, m *models.ChatMember) error {
	if err := rows.Scan(
		chatID, &m.ID, &m.Nickname, &m.Name, &m.LastName, &m.Email, &m.LastSeenAt,
		&m.Role, &m.JoinedAt, &m.LastReadMessageID, &m.ChatLastSeenAt,
	); err != nil {
		return fmt.Errorf("failed to scan member row: %w", err)
	}
	return nil
}

func orderedPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}
