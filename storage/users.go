package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Adibmaros/tasks-management/domain"
)

const userColumns = "id, name, email, password_hash, created_at, updated_at"

// ErrEmailInUse is returned when registering an address twice.
var ErrEmailInUse = &domain.ConflictError{Msg: "Email already in use."}

// CreateUser stores a new account. passwordHash must already be hashed.
func (s *Storage) CreateUser(ctx context.Context, name, email, passwordHash string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || passwordHash == "" {
		return domain.User{}, domain.Validationf("email and password are required")
	}

	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM users WHERE email = ?"), email); err != nil {
		return domain.User{}, domain.Persistence("create user", fmt.Errorf("checking email: %w", err))
	}
	if n > 0 {
		return domain.User{}, ErrEmailInUse
	}

	now := s.now()
	u := domain.User{Name: name, Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	err := s.db.GetContext(ctx, &u.ID, s.db.Rebind(
		"INSERT INTO users (name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id"),
		u.Name, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return domain.User{}, domain.Persistence("create user", fmt.Errorf("inserting user: %w", err))
	}
	return u, nil
}

// GetUser looks a user up by id.
func (s *Storage) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByEmail looks a user up by address.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.getUser(ctx, "email", strings.TrimSpace(strings.ToLower(email)))
}

func (s *Storage) getUser(ctx context.Context, column string, value any) (domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE "+column+" = ?"), value)
	if errors.Is(err, sql.ErrNoRows) {
		id, _ := value.(int64)
		return domain.User{}, domain.NotFound("user", id)
	}
	if err != nil {
		return domain.User{}, domain.Persistence("get user", fmt.Errorf("getting user by %s: %w", column, err))
	}
	return u, nil
}

// UpdatePassword replaces the stored hash.
func (s *Storage) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?"),
		passwordHash, s.now(), id)
	if err != nil {
		return domain.Persistence("update password", fmt.Errorf("updating user %d: %w", id, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("user", id)
	}
	return nil
}
