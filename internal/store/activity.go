package store

import (
	"context"

	"barber-booking-api/internal/model"
)

func (s *Store) RecordActivity(ctx context.Context, n *model.UserActivityNotification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_activity (id, message_type, message, user_type, created_at) VALUES ($1,$2,$3,$4,$5)`,
		n.ID, n.MessageType, n.Message, n.UserType, n.Timestamp,
	)
	return mapErr(err)
}

// RecentActivity returns the newest notifications first.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]model.UserActivityNotification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, message_type, message, user_type, created_at
		 FROM user_activity ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.UserActivityNotification{}
	for rows.Next() {
		var n model.UserActivityNotification
		if err := rows.Scan(&n.ID, &n.MessageType, &n.Message, &n.UserType, &n.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
