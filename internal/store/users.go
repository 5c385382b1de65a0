package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name, is_active, last_login, created_at
		FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsActive, &u.LastLogin, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name, is_active, last_login, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsActive, &u.LastLogin, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// FindUserConflict reports which of username/email is already taken, if any.
func (s *PostgresStore) FindUserConflict(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, email FROM users WHERE username = $1 OR email = $2
	`, username, email)
	if err != nil {
		return false, false, fmt.Errorf("check user conflict: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var existingUsername, existingEmail string
		if err := rows.Scan(&existingUsername, &existingEmail); err != nil {
			return false, false, fmt.Errorf("scan user conflict: %w", err)
		}
		if existingUsername == username {
			usernameTaken = true
		}
		if existingEmail == email {
			emailTaken = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, false, fmt.Errorf("iterate user conflict: %w", err)
	}
	return usernameTaken, emailTaken, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id
	`, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) TouchLastLogin(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}
