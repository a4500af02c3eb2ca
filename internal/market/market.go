// Package market is the marketplace: listings with a search form, posting
// with an optional image, and inquiries sent to the seller as messages.
package market

import (
	"context"
	"fmt"
	"math"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"example.com/socialwall/internal/logger"
	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/storage"
	"example.com/socialwall/internal/store"
	"github.com/google/uuid"
)

var logg = logger.New()

// MaxPrice is the largest price a listing can carry, stored with cent precision.
const MaxPrice = 9_999_999_999.99

var (
	Categories = []string{
		"Electronics", "Clothing", "Furniture", "Books", "Sports",
		"Vehicles", "Home & Garden", "Toys & Games", "Other",
	}
	Conditions = []string{"New", "Like New", "Good", "Fair", "Poor"}
)

// Catalog lists the closed sets a listing form offers.
type Catalog struct {
	Categories []string `json:"categories"`
	Conditions []string `json:"conditions"`
}

// NewItem is the listing form as submitted.
type NewItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	Condition   string `json:"condition"`
	SellerEmail string `json:"seller_email"`
}

type Service struct {
	store   store.StoreInterface
	storage storage.Storage
	bucket  string
	now     func() time.Time
}

// New creates the marketplace service; listing images go to bucket.
func New(st store.StoreInterface, files storage.Storage, bucket string) *Service {
	return &Service{store: st, storage: files, bucket: bucket, now: time.Now}
}

func (s *Service) Catalog() Catalog {
	return Catalog{Categories: slices.Clone(Categories), Conditions: slices.Clone(Conditions)}
}

// List returns the listings matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.MarketplaceItem, error) {
	items, err := s.store.ListItems(ctx, f.Query(s.now()))
	if err != nil {
		logg.Error("market", "Failed to list items", err)
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.MarketplaceItem, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return models.MarketplaceItem{}, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

func validate(seller string, in NewItem) (float64, error) {
	if strings.TrimSpace(seller) == "" {
		return 0, fmt.Errorf("seller is empty: %w", models.ErrValidation)
	}
	if strings.TrimSpace(in.Title) == "" {
		return 0, fmt.Errorf("title is required: %w", models.ErrValidation)
	}
	if strings.TrimSpace(in.SellerEmail) == "" {
		return 0, fmt.Errorf("seller email is required: %w", models.ErrValidation)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(in.Price), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("price %q is not a number: %w", in.Price, models.ErrValidation)
	}
	if price < 0 {
		return 0, fmt.Errorf("price must not be negative: %w", models.ErrValidation)
	}
	price = math.Round(price*100) / 100
	if price > MaxPrice {
		return 0, fmt.Errorf("price must not exceed %.2f: %w", MaxPrice, models.ErrValidation)
	}
	if in.Category != "" && !slices.Contains(Categories, in.Category) {
		return 0, fmt.Errorf("unknown category %q: %w", in.Category, models.ErrValidation)
	}
	if in.Condition != "" && !slices.Contains(Conditions, in.Condition) {
		return 0, fmt.Errorf("unknown condition %q: %w", in.Condition, models.ErrValidation)
	}
	return price, nil
}

// Post creates a listing for seller. When image is set it is uploaded first;
// a failed upload aborts the listing.
func (s *Service) Post(ctx context.Context, seller string, in NewItem, image *storage.File) (models.MarketplaceItem, error) {
	price, err := validate(seller, in)
	if err != nil {
		return models.MarketplaceItem{}, err
	}
	now := s.now().UTC()

	item := models.MarketplaceItem{
		SellerID:    seller,
		SellerEmail: strings.TrimSpace(in.SellerEmail),
		Title:       strings.TrimSpace(in.Title),
		Description: models.StringPtr(strings.TrimSpace(in.Description)),
		Price:       price,
		Location:    models.StringPtr(strings.TrimSpace(in.Location)),
		Category:    models.StringPtr(in.Category),
		Condition:   models.StringPtr(in.Condition),
		CreatedAt:   now.Truncate(time.Millisecond),
	}

	if image != nil {
		ext := storage.Ext(image.Name)
		key := path.Join("marketplace", seller, fmt.Sprintf("%d.%s", now.UnixMilli(), ext))
		opts := storage.UploadOptions{ContentType: storage.ContentTypeOf(*image)}
		if err := s.storage.Upload(ctx, s.bucket, key, image.Body, opts); err != nil {
			logg.Error("market", "Image upload failed for listing by "+seller, err)
			return models.MarketplaceItem{}, fmt.Errorf("upload listing image: %w", err)
		}
		url := s.storage.PublicURL(s.bucket, key)
		item.ImageURL = &url
	}

	stored, err := s.store.AddItem(ctx, item)
	if err != nil {
		logg.Error("market", "Failed to save listing by "+seller, err)
		return models.MarketplaceItem{}, fmt.Errorf("save listing: %w", err)
	}
	logg.Info("market", fmt.Sprintf("Listing %d posted by %s", stored.ID, seller))
	return stored, nil
}

// Inquire sends body to the seller of itemID as a message about the listing.
func (s *Service) Inquire(ctx context.Context, sender string, itemID int64, body string) (models.Message, error) {
	if strings.TrimSpace(sender) == "" {
		return models.Message{}, fmt.Errorf("sender is empty: %w", models.ErrValidation)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, fmt.Errorf("message is empty: %w", models.ErrValidation)
	}

	item, err := s.Get(ctx, itemID)
	if err != nil {
		return models.Message{}, err
	}

	id, err := uuid.NewUUID()
	if err != nil {
		return models.Message{}, fmt.Errorf("generate message id: %w", err)
	}
	msg := models.Message{
		ID:          id.String(),
		SenderID:    sender,
		RecipientID: item.SellerID,
		Subject:     "Inquiry about: " + item.Title,
		Body:        body,
		ItemID:      &item.ID,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.AddMessage(ctx, msg); err != nil {
		logg.Error("market", "Failed to send inquiry from "+sender, err)
		return models.Message{}, fmt.Errorf("send inquiry: %w", err)
	}

	logg.Info("market", fmt.Sprintf("Inquiry about listing %d sent by %s", itemID, sender))
	return msg, nil
}
