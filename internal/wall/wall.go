// Package wall is the public post feed: one shared, append-only list of short
// messages, newest first, with a live view that re-reads on every change.
package wall

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"example.com/socialwall/internal/broker"
	"example.com/socialwall/internal/logger"
	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/store"
	"github.com/google/uuid"
)

var logg = logger.New()

const (
	// MaxMessageLength counts Unicode code points.
	MaxMessageLength = 280
	// Table is the change-event table posts are announced on.
	Table = "posts"
)

type Service struct {
	store store.StoreInterface
	pub   broker.Publisher
	hub   *broker.Hub
	now   func() time.Time
}

func New(st store.StoreInterface, pub broker.Publisher, hub *broker.Hub) *Service {
	return &Service{store: st, pub: pub, hub: hub, now: time.Now}
}

// ValidateMessage returns the trimmed message or models.ErrValidation.
func ValidateMessage(message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", fmt.Errorf("message is empty: %w", models.ErrValidation)
	}
	if n := utf8.RuneCountInString(message); n > MaxMessageLength {
		return "", fmt.Errorf("message has %d characters, max %d: %w", n, MaxMessageLength, models.ErrValidation)
	}
	return trimmed, nil
}

// Compose appends a post by author and announces it.
func (s *Service) Compose(ctx context.Context, author, message string) (models.Post, error) {
	author = strings.TrimSpace(author)
	if author == "" {
		return models.Post{}, fmt.Errorf("author is empty: %w", models.ErrValidation)
	}
	text, err := ValidateMessage(message)
	if err != nil {
		return models.Post{}, err
	}

	id, err := uuid.NewUUID()
	if err != nil {
		return models.Post{}, fmt.Errorf("generate post id: %w", err)
	}
	post := models.Post{
		ID:        id.String(),
		UserID:    author,
		Message:   text,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.store.AddPost(ctx, post); err != nil {
		logg.Error("wall", "Failed to save post for user="+author, err)
		return models.Post{}, fmt.Errorf("save post: %w", err)
	}
	if err := s.pub.Publish(ctx, broker.NewEvent(Table, broker.Insert)); err != nil {
		logg.Error("wall", "Failed to announce post "+post.ID, err)
		return post, fmt.Errorf("announce post: %w", err)
	}

	logg.Info("wall", "Post created by user="+author)
	return post, nil
}

// Feed returns every post, newest first.
func (s *Service) Feed(ctx context.Context) ([]models.Post, error) {
	posts, err := s.store.ListPosts(ctx)
	if err != nil {
		logg.Error("wall", "Failed to list posts", err)
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// Watch calls fn with the full feed once, then again after every change to
// the posts table, until ctx is done or fn fails. A failed re-read is logged
// and skipped; the next change retries it.
func (s *Service) Watch(ctx context.Context, fn func([]models.Post) error) error {
	sub := s.hub.Subscribe(Table)
	defer sub.Close()

	posts, err := s.Feed(ctx)
	if err != nil {
		return err
	}
	if err := fn(posts); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.C:
			if !ok {
				return nil
			}
			posts, err := s.Feed(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logg.Warn("wall", "Live feed re-read failed", err)
				continue
			}
			if err := fn(posts); err != nil {
				return err
			}
		}
	}
}

// PostCount returns how many posts author has on the wall.
func (s *Service) PostCount(ctx context.Context, author string) (int, error) {
	posts, err := s.Feed(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range posts {
		if p.UserID == author {
			n++
		}
	}
	return n, nil
}
