package store

import (
	"context"
	"testing"
	"time"

	config "example.com/socialwall/internal/init"
	"example.com/socialwall/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(v float64) *float64 { return &v }

func testItems(now time.Time) []models.MarketplaceItem {
	return []models.MarketplaceItem{
		{ID: 1, Title: "Road Bike", Description: models.StringPtr("fast and light"), Price: 250,
			Category: models.StringPtr("Sports"), Condition: models.StringPtr("Good"),
			Location: models.StringPtr("Austin, TX"), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 2, Title: "Laptop", Description: models.StringPtr("barely used BIKE stickers"), Price: 900,
			Category: models.StringPtr("Electronics"), Condition: models.StringPtr("Like New"),
			CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{ID: 3, Title: "Phone", Price: 80,
			Category: models.StringPtr("Electronics"), Condition: models.StringPtr("Fair"),
			Location: models.StringPtr(""), CreatedAt: now.Add(-400 * 24 * time.Hour)},
	}
}

func ids(items []models.MarketplaceItem) []int64 {
	res := make([]int64, len(items))
	for i, it := range items {
		res[i] = it.ID
	}
	return res
}

func TestItemQuery_EmptyMatchesEverything(t *testing.T) {
	items := testItems(time.Now())
	assert.Equal(t, []int64{1, 2, 3}, ids(ItemQuery{}.Filter(items)))
}

func TestItemQuery_SearchIsCaseInsensitiveOverTitleAndDescription(t *testing.T) {
	items := testItems(time.Now())
	assert.Equal(t, []int64{1, 2}, ids(ItemQuery{Search: "bike"}.Filter(items)))
	assert.Equal(t, []int64{3}, ids(ItemQuery{Search: "PHO"}.Filter(items)))
}

func TestItemQuery_PriceBoundsAreInclusive(t *testing.T) {
	items := testItems(time.Now())
	q := ItemQuery{MinPrice: price(80), MaxPrice: price(250)}
	assert.Equal(t, []int64{1, 3}, ids(q.Filter(items)))
}

func TestItemQuery_IsConjunctive(t *testing.T) {
	items := testItems(time.Now())
	q := ItemQuery{Category: "Electronics", MinPrice: price(100)}
	assert.Equal(t, []int64{2}, ids(q.Filter(items)))
}

func TestItemQuery_CreatedAfterAndLocation(t *testing.T) {
	now := time.Now()
	items := testItems(now)
	since := now.Add(-30 * 24 * time.Hour)

	assert.Equal(t, []int64{1, 2}, ids(ItemQuery{CreatedAfter: &since}.Filter(items)))
	assert.Equal(t, []int64{1}, ids(ItemQuery{RequireLocation: true}.Filter(items)))
}

func TestItemSQL(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args := itemSQL(ItemQuery{
		Search:          "50%_off",
		MinPrice:        price(10),
		Category:        "Books",
		CreatedAfter:    &since,
		RequireLocation: true,
	})

	assert.Equal(t,
		` WHERE (title ILIKE $1 OR description ILIKE $1) AND price >= $2 AND category = $3 AND created_at >= $4 AND COALESCE(location, '') <> ''`,
		where)
	require.Len(t, args, 4)
	assert.Equal(t, `%50\%\_off%`, args[0])
	assert.Equal(t, 10.0, args[1])

	where, args = itemSQL(ItemQuery{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestMigrationURLs(t *testing.T) {
	src, db, err := migrationURLs(&config.Config{
		StoreDriver: "postgres", MigrationsDir: "./migrations",
		PostgresDSN: "postgres://u:p@db:5432/wall?sslmode=disable",
	})
	require.NoError(t, err)
	assert.Equal(t, "file://migrations/postgres", src)
	assert.Equal(t, "pgx5://u:p@db:5432/wall?sslmode=disable", db)

	src, db, err = migrationURLs(&config.Config{
		StoreDriver: "cassandra", CassandraHost: "cass", CassandraKeyspace: "socialwall",
	})
	require.NoError(t, err)
	assert.Equal(t, "file://migrations/cassandra", src)
	assert.Contains(t, db, "cassandra://cass/socialwall?")

	_, _, err = migrationURLs(&config.Config{StoreDriver: "sqlite"})
	assert.Error(t, err)
}

func TestMockStore_PostsNewestFirstTiesByInsertion(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.AddPost(ctx, models.Post{ID: "a", CreatedAt: t0}))
	require.NoError(t, m.AddPost(ctx, models.Post{ID: "b", CreatedAt: t0.Add(time.Second)}))
	require.NoError(t, m.AddPost(ctx, models.Post{ID: "c", CreatedAt: t0.Add(time.Second)}))

	posts, err := m.ListPosts(ctx)
	require.NoError(t, err)
	got := []string{posts[0].ID, posts[1].ID, posts[2].ID}
	assert.Equal(t, []string{"c", "b", "a"}, got)
}

func TestMockStore_CreateUserInfoKeepsFirstRow(t *testing.T) {
	ctx := context.Background()
	m := NewMock()

	first, created, err := m.CreateUserInfo(ctx, models.UserInfo{UserID: "alice", Location: models.StringPtr("Paris")})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := m.CreateUserInfo(ctx, models.UserInfo{UserID: "alice", Location: models.StringPtr("Rome")})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)
}
