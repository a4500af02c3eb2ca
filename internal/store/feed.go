package store

import (
	"context"
	"errors"
	"time"

	"example.com/socialwall/internal/models"
	"github.com/gocql/gocql"
)

// --- Wall operations ---

// AddPost appends a post to the public wall partition.
// Post IDs are time UUIDs so equal timestamps still cluster by insertion order.
func (s *Store) AddPost(ctx context.Context, post models.Post) error {
	id, err := gocql.ParseUUID(post.ID)
	if err != nil {
		return err
	}
	if err := s.Session.Query(`
		INSERT INTO posts_by_wall (wall, created_at, post_id, user_id, message)
		VALUES (?, ?, ?, ?, ?)`,
		wallPartition, post.CreatedAt, id, post.UserID, post.Message,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added to wall (post content anonymized)")
	return nil
}

// ListPosts returns the whole wall, newest first.
func (s *Store) ListPosts(ctx context.Context) ([]models.Post, error) {
	iter := s.Session.Query(`
		SELECT post_id, user_id, message, created_at
		FROM posts_by_wall WHERE wall = ?`,
		wallPartition,
	).WithContext(ctx).Iter()

	res := []models.Post{}
	var pid gocql.UUID
	var uid, msg string
	var created time.Time

	for iter.Scan(&pid, &uid, &msg, &created) {
		res = append(res, models.Post{
			ID:        pid.String(),
			UserID:    uid,
			Message:   msg,
			CreatedAt: created,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list wall posts", err)
		return nil, err
	}
	return res, nil
}

// --- User info operations ---

// GetUserInfo returns the info row for a name, or models.ErrNotFound.
func (s *Store) GetUserInfo(ctx context.Context, userID string) (models.UserInfo, error) {
	info := models.UserInfo{UserID: userID}
	err := s.Session.Query(
		`SELECT birthdate, location, networks, created_at FROM user_info WHERE user_id = ?`,
		userID,
	).WithContext(ctx).Scan(&info.Birthdate, &info.Location, &info.Networks, &info.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.UserInfo{}, models.ErrNotFound
		}
		logg.Error("store", "Failed to query user info", err)
		return models.UserInfo{}, err
	}
	return info, nil
}

// CreateUserInfo inserts the row with a lightweight transaction so a revisit
// never overwrites what the first visit stored.
func (s *Store) CreateUserInfo(ctx context.Context, info models.UserInfo) (models.UserInfo, bool, error) {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO user_info (user_id, birthdate, location, networks, created_at)
		VALUES (?, ?, ?, ?, ?) IF NOT EXISTS`,
		info.UserID, info.Birthdate, info.Location, info.Networks, info.CreatedAt,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create user info", err)
		return models.UserInfo{}, false, err
	}

	if !applied {
		// Another visit already created this row
		existing, err := s.GetUserInfo(ctx, info.UserID)
		return existing, false, err
	}

	logg.Info("store", "User info created (username anonymized)")
	return info, true, nil
}
