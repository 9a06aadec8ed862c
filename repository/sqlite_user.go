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
)

// sqliteUserRepo, UserRepository interface'inin SQLite implementasyonu.
type sqliteUserRepo struct {
	db database.TxQuerier
}

// NewSQLiteUserRepo, constructor. Concrete struct yerine interface döner.
func NewSQLiteUserRepo(db database.TxQuerier) UserRepository {
	return &sqliteUserRepo{db: db}
}

const userColumns = `id, nickname, name, last_name, email, password_hash, last_seen_at, created_at`

func scanUser(row interface{ Scan(dest ...any) error }, u *models.User) error {
	return row.Scan(
		&u.ID, &u.Nickname, &u.Name, &u.LastName, &u.Email,
		&u.PasswordHash, &u.LastSeenAt, &u.CreatedAt,
	)
}

func (r *sqliteUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (nickname, name, last_name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		user.Nickname,
		user.Name,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
	).Scan(&user.ID)

	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "email") {
				return pkg.NewValidationError("email", "email has already been taken")
			}
			return pkg.NewValidationError("nickname", "nickname has already been taken")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *sqliteUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id), user)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return user, nil
}

func (r *sqliteUserRepo) GetByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}

	placeholders, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users by ids: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func (r *sqliteUserRepo) GetByNickname(ctx context.Context, nickname string) (*models.User, error) {
	user := &models.User{}
	err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE nickname = ? COLLATE NOCASE`, nickname), user)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by nickname: %w", err)
	}

	return user, nil
}

func (r *sqliteUserRepo) IDsByNicknames(ctx context.Context, nicknames []string) ([]int64, error) {
	if len(nicknames) == 0 {
		return []int64{}, nil
	}

	placeholders, args := inClause(nicknames)
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM users WHERE nickname COLLATE NOCASE IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve nicknames: %w", err)
	}
	defer rows.Close()

	return collectIDs(rows)
}

func (r *sqliteUserRepo) SearchByNickname(ctx context.Context, term string, excludeID int64, limit int) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE nickname LIKE ? ESCAPE '\' AND id != ?
		ORDER BY nickname COLLATE NOCASE
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, "%"+escapeLike(term)+"%", excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func (r *sqliteUserRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `UPDATE users SET name = ?, last_name = ?, nickname = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, user.Name, user.LastName, user.Nickname, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return pkg.NewValidationError("nickname", "nickname has already been taken")
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: user", pkg.ErrNotFound)
	}

	return nil
}

func (r *sqliteUserRepo) UpdateLastSeen(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_seen_at = ? WHERE id = ?`, at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

func collectUsers(rows *sql.Rows) ([]models.User, error) {
	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}
