package market

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/store"
)

// Date range presets accepted by Filter.DateRange.
const (
	RangeToday = "today"
	RangeWeek  = "week"
	RangeMonth = "month"
	RangeYear  = "year"
)

// Filter is the listing search form. Empty fields add no predicate.
type Filter struct {
	Search         string
	MinPrice       *float64
	MaxPrice       *float64
	Category       string
	Condition      string
	DateRange      string
	LocationRadius string
}

// ParseFilter reads a Filter from query parameters.
func ParseFilter(v url.Values) (Filter, error) {
	f := Filter{
		Search:         strings.TrimSpace(v.Get("q")),
		Category:       v.Get("category"),
		Condition:      v.Get("condition"),
		DateRange:      v.Get("date_range"),
		LocationRadius: v.Get("location_radius"),
	}
	var err error
	if f.MinPrice, err = parseBound(v.Get("min_price")); err != nil {
		return Filter{}, fmt.Errorf("min_price: %w", err)
	}
	if f.MaxPrice, err = parseBound(v.Get("max_price")); err != nil {
		return Filter{}, fmt.Errorf("max_price: %w", err)
	}
	return f, nil
}

func parseBound(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%q is not a number: %w", s, models.ErrValidation)
	}
	return &v, nil
}

// Query turns the form into a store query. Date presets are computed against
// now in its own location, so "today" starts at local midnight.
func (f Filter) Query(now time.Time) store.ItemQuery {
	q := store.ItemQuery{
		Search:    f.Search,
		MinPrice:  f.MinPrice,
		MaxPrice:  f.MaxPrice,
		Category:  f.Category,
		Condition: f.Condition,
	}

	var after time.Time
	switch f.DateRange {
	case RangeToday:
		y, m, d := now.Date()
		after = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case RangeWeek:
		after = now.AddDate(0, 0, -7)
	case RangeMonth:
		after = now.AddDate(0, -1, 0)
	case RangeYear:
		after = now.AddDate(-1, 0, 0)
	}
	if !after.IsZero() {
		q.CreatedAfter = &after
	}

	if f.LocationRadius != "" && f.LocationRadius != "any" {
		q.RequireLocation = true
	}
	return q
}
