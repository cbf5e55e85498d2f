package store

import (
	"context"

	"barber-booking-api/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, name, is_admin) VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.IsAdmin,
	)
	return mapErr(err)
}

const userCols = `id, email, password_hash, name, is_admin, email_verified, created_at, updated_at`

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.scanUser(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	return s.scanUser(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
}

func (s *Store) scanUser(ctx context.Context, q string, arg string) (*model.User, error) {
	u := &model.User{}
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.IsAdmin, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}
