package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/socialwall/internal/models"
	"github.com/gocql/gocql"
)

// AddMessage writes the message to both the recipient and the sender partitions.
func (s *Store) AddMessage(ctx context.Context, msg models.Message) error {
	id, err := gocql.ParseUUID(msg.ID)
	if err != nil {
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO messages_by_recipient (recipient_id, created_at, message_id, sender_id, subject, body, item_id, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.RecipientID, msg.CreatedAt, id, msg.SenderID, msg.Subject, msg.Body, msg.ItemID, msg.IsRead)
	batch.Query(`
		INSERT INTO messages_by_sender (sender_id, created_at, message_id, recipient_id, subject, body, item_id, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.SenderID, msg.CreatedAt, id, msg.RecipientID, msg.Subject, msg.Body, msg.ItemID, msg.IsRead)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add message", err)
		return err
	}

	logg.Info("store", "Message stored (participants anonymized)")
	return nil
}

// ListInbox returns the messages addressed to recipientID, newest first.
func (s *Store) ListInbox(ctx context.Context, recipientID string) ([]models.Message, error) {
	return s.listMessages(ctx, `
		SELECT message_id, created_at, sender_id, recipient_id, subject, body, item_id, is_read
		FROM messages_by_recipient WHERE recipient_id = ?`, recipientID)
}

// ListSent returns the messages written by senderID, newest first.
func (s *Store) ListSent(ctx context.Context, senderID string) ([]models.Message, error) {
	return s.listMessages(ctx, `
		SELECT message_id, created_at, sender_id, recipient_id, subject, body, item_id, is_read
		FROM messages_by_sender WHERE sender_id = ?`, senderID)
}

func (s *Store) listMessages(ctx context.Context, stmt, partition string) ([]models.Message, error) {
	iter := s.Session.Query(stmt, partition).WithContext(ctx).Iter()

	res := []models.Message{}
	for {
		var (
			m       models.Message
			id      gocql.UUID
			created time.Time
		)
		if !iter.Scan(&id, &created, &m.SenderID, &m.RecipientID, &m.Subject, &m.Body, &m.ItemID, &m.IsRead) {
			break
		}
		m.ID = id.String()
		m.CreatedAt = created
		res = append(res, m)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list messages", err)
		return nil, err
	}

	if err := s.attachItems(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// attachItems resolves the item summary of every message that references a listing.
// A listing that no longer resolves leaves the summary empty.
func (s *Store) attachItems(ctx context.Context, msgs []models.Message) error {
	cache := make(map[int64]*models.ItemSummary)
	for i := range msgs {
		if msgs[i].ItemID == nil {
			continue
		}
		id := *msgs[i].ItemID
		sum, ok := cache[id]
		if !ok {
			item, err := s.GetItem(ctx, id)
			switch {
			case errors.Is(err, models.ErrNotFound):
				sum = nil
			case err != nil:
				return fmt.Errorf("join item %d: %w", id, err)
			default:
				sum = &models.ItemSummary{Title: item.Title, Price: item.Price, ImageURL: item.ImageURL}
			}
			cache[id] = sum
		}
		msgs[i].Item = sum
	}
	return nil
}

// MarkMessagesRead flips is_read on both copies of every message in one batch.
func (s *Store) MarkMessagesRead(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, m := range msgs {
		id, err := gocql.ParseUUID(m.ID)
		if err != nil {
			return err
		}
		batch.Query(`UPDATE messages_by_recipient SET is_read = true
			WHERE recipient_id = ? AND created_at = ? AND message_id = ?`, m.RecipientID, m.CreatedAt, id)
		batch.Query(`UPDATE messages_by_sender SET is_read = true
			WHERE sender_id = ? AND created_at = ? AND message_id = ?`, m.SenderID, m.CreatedAt, id)
	}

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to mark messages read", err)
		return err
	}
	return nil
}
