package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/content"
)

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*content.User, error) {
	var (
		u    content.User
		tier string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, email, subscription_tier, ayrshare_profile_key FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &tier, &u.AggregatorProfileKey)
	if err != nil {
		return nil, notFoundOr(err, ErrUserNotFound, "get user")
	}
	u.Tier = content.Tier(tier)
	return &u, nil
}

// SetAggregatorProfileKey stores an already encrypted profile key.
func (s *Store) SetAggregatorProfileKey(ctx context.Context, userID uuid.UUID, encrypted string) error {
	return s.exec(ctx, ErrUserNotFound,
		`UPDATE users SET ayrshare_profile_key = $2, updated_at = now() WHERE id = $1`, userID, encrypted)
}

// GetConnection returns the linked account with its token still encrypted.
func (s *Store) GetConnection(ctx context.Context, userID uuid.UUID, platform content.Platform) (*content.Connection, error) {
	var c content.Connection
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, access_token, platform_user_id, platform_username, token_expires_at, connected_at
		FROM platform_connections
		WHERE user_id = $1 AND platform = $2`, userID, string(platform),
	).Scan(&c.ID, &c.UserID, &c.AccessToken, &c.PlatformUserID, &c.PlatformUsername, &c.TokenExpiresAt, &c.ConnectedAt)
	if err != nil {
		return nil, notFoundOr(err, ErrConnectionNotFound, "get connection")
	}
	c.Platform = platform
	return &c, nil
}
