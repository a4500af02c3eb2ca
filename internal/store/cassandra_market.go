package store

import (
	"context"
	"errors"
	"fmt"

	"example.com/socialwall/internal/models"
	"github.com/gocql/gocql"
)

const maxSequenceAttempts = 10

// nextItemID hands out increasing listing IDs through a compare-and-set counter.
func (s *Store) nextItemID(ctx context.Context) (int64, error) {
	for attempt := 0; attempt < maxSequenceAttempts; attempt++ {
		var cur int64
		err := s.Session.Query(
			`SELECT next_id FROM id_sequences WHERE name = ?`, itemSequence,
		).WithContext(ctx).Scan(&cur)

		result := make(map[string]interface{})
		var applied bool
		switch {
		case errors.Is(err, gocql.ErrNotFound):
			cur = 1
			applied, err = s.Session.Query(`
				INSERT INTO id_sequences (name, next_id) VALUES (?, ?) IF NOT EXISTS`,
				itemSequence, cur+1,
			).WithContext(ctx).MapScanCAS(result)
		case err != nil:
			return 0, err
		default:
			applied, err = s.Session.Query(`
				UPDATE id_sequences SET next_id = ? WHERE name = ? IF next_id = ?`,
				cur+1, itemSequence, cur,
			).WithContext(ctx).MapScanCAS(result)
		}
		if err != nil {
			return 0, err
		}
		if applied {
			return cur, nil
		}
	}
	return 0, fmt.Errorf("item id sequence contended after %d attempts", maxSequenceAttempts)
}

// AddItem writes the listing to the ordered partition and the by-id lookup table in one logged batch.
func (s *Store) AddItem(ctx context.Context, item models.MarketplaceItem) (models.MarketplaceItem, error) {
	id, err := s.nextItemID(ctx)
	if err != nil {
		logg.Error("store", "Failed to allocate item id", err)
		return models.MarketplaceItem{}, err
	}
	item.ID = id

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO marketplace_items (bucket, created_at, item_id, seller_id, seller_email, title,
			description, price, image_url, location, category, item_condition)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		marketPartition, item.CreatedAt, item.ID, item.SellerID, item.SellerEmail, item.Title,
		item.Description, item.Price, item.ImageURL, item.Location, item.Category, item.Condition)
	batch.Query(`
		INSERT INTO items_by_id (item_id, created_at, seller_id, seller_email, title,
			description, price, image_url, location, category, item_condition)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CreatedAt, item.SellerID, item.SellerEmail, item.Title,
		item.Description, item.Price, item.ImageURL, item.Location, item.Category, item.Condition)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add marketplace item", err)
		return models.MarketplaceItem{}, err
	}

	logg.Info("store", fmt.Sprintf("Marketplace item %d created", item.ID))
	return item, nil
}

// GetItem reads one listing by id.
func (s *Store) GetItem(ctx context.Context, id int64) (models.MarketplaceItem, error) {
	item := models.MarketplaceItem{ID: id}
	err := s.Session.Query(`
		SELECT created_at, seller_id, seller_email, title, description, price,
			image_url, location, category, item_condition
		FROM items_by_id WHERE item_id = ?`, id,
	).WithContext(ctx).Scan(&item.CreatedAt, &item.SellerID, &item.SellerEmail, &item.Title,
		&item.Description, &item.Price, &item.ImageURL, &item.Location, &item.Category, &item.Condition)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.MarketplaceItem{}, models.ErrNotFound
		}
		logg.Error("store", "Failed to get marketplace item", err)
		return models.MarketplaceItem{}, err
	}
	return item, nil
}

// ListItems pushes the date bound into the clustering range and evaluates the
// remaining predicates while iterating, since CQL has no substring match.
func (s *Store) ListItems(ctx context.Context, q ItemQuery) ([]models.MarketplaceItem, error) {
	stmt := `
		SELECT item_id, created_at, seller_id, seller_email, title, description, price,
			image_url, location, category, item_condition
		FROM marketplace_items WHERE bucket = ?`
	args := []interface{}{marketPartition}
	if q.CreatedAfter != nil {
		stmt += ` AND created_at >= ?`
		args = append(args, *q.CreatedAfter)
	}

	iter := s.Session.Query(stmt, args...).WithContext(ctx).Iter()

	res := []models.MarketplaceItem{}
	for {
		var it models.MarketplaceItem
		if !iter.Scan(&it.ID, &it.CreatedAt, &it.SellerID, &it.SellerEmail, &it.Title, &it.Description,
			&it.Price, &it.ImageURL, &it.Location, &it.Category, &it.Condition) {
			break
		}
		if q.Match(it) {
			res = append(res, it)
		}
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list marketplace items", err)
		return nil, err
	}
	return res, nil
}
