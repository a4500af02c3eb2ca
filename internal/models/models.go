package models

import (
	"errors"
	"time"
)

var (
	// ErrValidation marks input rejected before any backend call.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing row or object.
	ErrNotFound = errors.New("not found")
	// ErrExists marks a write refused because the target already exists.
	ErrExists = errors.New("already exists")
)

// Post is a single wall entry. Immutable once created.
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// MarketplaceItem is a listing for sale.
type MarketplaceItem struct {
	ID          int64     `json:"id"`
	SellerID    string    `json:"seller_id"`
	SellerEmail string    `json:"seller_email"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Price       float64   `json:"price"`
	ImageURL    *string   `json:"image_url"`
	Location    *string   `json:"location"`
	Category    *string   `json:"category"`
	Condition   *string   `json:"condition"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemSummary is the part of a listing shown next to a message.
type ItemSummary struct {
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	ImageURL *string `json:"image_url"`
}

// Message is a direct message, optionally about a listing.
// IsRead is the only field that changes after creation.
type Message struct {
	ID          string       `json:"id"`
	SenderID    string       `json:"sender_id"`
	RecipientID string       `json:"recipient_id"`
	Subject     string       `json:"subject"`
	Body        string       `json:"message"`
	ItemID      *int64       `json:"item_id"`
	IsRead      bool         `json:"is_read"`
	CreatedAt   time.Time    `json:"created_at"`
	Item        *ItemSummary `json:"marketplace_item,omitempty"`
}

// UserInfo is the optional profile collected on a name's first visit.
type UserInfo struct {
	UserID    string    `json:"user_id"`
	Birthdate *string   `json:"birthdate"`
	Location  *string   `json:"location"`
	Networks  *string   `json:"networks"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredFile is a directory entry in object storage.
type StoredFile struct {
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
