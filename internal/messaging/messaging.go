// Package messaging serves a user's inbox and sent box. Opening the inbox
// marks what it showed as read.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"example.com/socialwall/internal/logger"
	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/store"
)

var logg = logger.New()

// markReadTimeout bounds a background mark-read call.
const markReadTimeout = 10 * time.Second

type Service struct {
	store store.StoreInterface
	wg    sync.WaitGroup
}

func New(st store.StoreInterface) *Service {
	return &Service{store: st}
}

func requireUser(user string) error {
	if strings.TrimSpace(user) == "" {
		return fmt.Errorf("user is empty: %w", models.ErrValidation)
	}
	return nil
}

// Inbox returns the messages received by user, newest first, as they were
// before this call. Unread ones are then marked read in the background; a
// failure there is logged and otherwise ignored.
func (s *Service) Inbox(ctx context.Context, user string) ([]models.Message, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListInbox(ctx, user)
	if err != nil {
		logg.Error("messaging", "Failed to load inbox for "+user, err)
		return nil, fmt.Errorf("list inbox: %w", err)
	}

	var unread []models.Message
	for _, m := range msgs {
		if !m.IsRead {
			unread = append(unread, m)
		}
	}
	if len(unread) > 0 {
		s.markRead(context.WithoutCancel(ctx), user, unread)
	}
	return msgs, nil
}

func (s *Service) markRead(ctx context.Context, user string, unread []models.Message) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, markReadTimeout)
		defer cancel()
		if err := s.store.MarkMessagesRead(ctx, unread); err != nil {
			logg.Warn("messaging", fmt.Sprintf("Failed to mark %d messages read for %s", len(unread), user), err)
			return
		}
		logg.Debug("messaging", fmt.Sprintf("Marked %d messages read for %s", len(unread), user))
	}()
}

// Wait blocks until background mark-read calls have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Sent returns the messages sent by user, newest first.
func (s *Service) Sent(ctx context.Context, user string) ([]models.Message, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListSent(ctx, user)
	if err != nil {
		logg.Error("messaging", "Failed to load sent box for "+user, err)
		return nil, fmt.Errorf("list sent: %w", err)
	}
	return msgs, nil
}

// UnreadCount returns how many received messages are unread.
func (s *Service) UnreadCount(ctx context.Context, user string) (int, error) {
	if err := requireUser(user); err != nil {
		return 0, err
	}
	msgs, err := s.store.ListInbox(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("list inbox: %w", err)
	}
	n := 0
	for _, m := range msgs {
		if !m.IsRead {
			n++
		}
	}
	return n, nil
}
