package store

import (
	"strings"
	"time"

	"example.com/socialwall/internal/models"
)

// ItemQuery is a conjunction of optional listing predicates.
// Zero values mean "no predicate".
type ItemQuery struct {
	Search       string     // case-insensitive substring of title or description
	MinPrice     *float64   // inclusive
	MaxPrice     *float64   // inclusive
	Category     string     // exact
	Condition    string     // exact
	CreatedAfter *time.Time // inclusive lower bound on created_at
	// RequireLocation drops listings without a location string.
	// It is the whole of the "location radius" filter; no distance is computed.
	RequireLocation bool
}

// Match reports whether item satisfies every predicate of q.
// Stores that cannot push a predicate down evaluate it with Match.
func (q ItemQuery) Match(item models.MarketplaceItem) bool {
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		inTitle := strings.Contains(strings.ToLower(item.Title), needle)
		inDesc := strings.Contains(strings.ToLower(models.Deref(item.Description)), needle)
		if !inTitle && !inDesc {
			return false
		}
	}
	if q.MinPrice != nil && item.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && item.Price > *q.MaxPrice {
		return false
	}
	if q.Category != "" && models.Deref(item.Category) != q.Category {
		return false
	}
	if q.Condition != "" && models.Deref(item.Condition) != q.Condition {
		return false
	}
	if q.CreatedAfter != nil && item.CreatedAt.Before(*q.CreatedAfter) {
		return false
	}
	if q.RequireLocation && models.Deref(item.Location) == "" {
		return false
	}
	return true
}

// Filter returns the items matching q, preserving order.
func (q ItemQuery) Filter(items []models.MarketplaceItem) []models.MarketplaceItem {
	res := make([]models.MarketplaceItem, 0, len(items))
	for _, it := range items {
		if q.Match(it) {
			res = append(res, it)
		}
	}
	return res
}
