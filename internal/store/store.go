package store

import (
	"context"
	"fmt"

	config "example.com/socialwall/internal/init"
	"example.com/socialwall/internal/logger"
	"example.com/socialwall/internal/models"
)

var logg = logger.New()

// StoreInterface is the table side of the backend.
type StoreInterface interface {
	Ping(ctx context.Context) error

	// Wall
	AddPost(ctx context.Context, post models.Post) error
	ListPosts(ctx context.Context) ([]models.Post, error)

	// User info. GetUserInfo returns models.ErrNotFound for an unknown name.
	GetUserInfo(ctx context.Context, userID string) (models.UserInfo, error)
	// CreateUserInfo inserts info unless a row for the name exists.
	// It returns the stored row and whether this call created it.
	CreateUserInfo(ctx context.Context, info models.UserInfo) (models.UserInfo, bool, error)

	// Marketplace. AddItem assigns the item ID.
	AddItem(ctx context.Context, item models.MarketplaceItem) (models.MarketplaceItem, error)
	GetItem(ctx context.Context, id int64) (models.MarketplaceItem, error)
	ListItems(ctx context.Context, q ItemQuery) ([]models.MarketplaceItem, error)

	// Messages. Lists are newest first and carry the item summary when present.
	AddMessage(ctx context.Context, msg models.Message) error
	ListInbox(ctx context.Context, recipientID string) ([]models.Message, error)
	ListSent(ctx context.Context, senderID string) ([]models.Message, error)
	MarkMessagesRead(ctx context.Context, msgs []models.Message) error

	Close()
}

// Open connects the store selected by cfg.StoreDriver and applies migrations.
func Open(ctx context.Context, cfg *config.Config) (StoreInterface, error) {
	switch cfg.StoreDriver {
	case "cassandra":
		return New(cfg)
	case "postgres":
		return NewPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
