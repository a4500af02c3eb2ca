package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	config "example.com/socialwall/internal/init"
	"example.com/socialwall/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps every collection in Postgres and pushes every listing predicate into SQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres applies migrations and opens a connection pool.
func NewPostgres(ctx context.Context, cfg *config.Config) (StoreInterface, error) {
	if err := Migrate(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pcfg.MaxConns = 20
	pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	pcfg.ConnConfig.StatementCacheCapacity = 256

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	logg.Info("store", "Connected to Postgres (dsn anonymized)")
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() {
	p.pool.Close()
	logg.Info("store", "Postgres pool closed")
}

// --- Wall ---

func (p *PostgresStore) AddPost(ctx context.Context, post models.Post) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO posts (id, user_id, message, created_at) VALUES ($1, $2, $3, $4)`,
		post.ID, post.UserID, post.Message, post.CreatedAt)
	if err != nil {
		logg.Error("store", "Failed to add post", err)
	}
	return err
}

func (p *PostgresStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id::text, user_id, message, created_at FROM posts ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []models.Post{}
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.UserID, &post.Message, &post.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, post)
	}
	return res, rows.Err()
}

// --- User info ---

func (p *PostgresStore) GetUserInfo(ctx context.Context, userID string) (models.UserInfo, error) {
	info := models.UserInfo{UserID: userID}
	err := p.pool.QueryRow(ctx,
		`SELECT birthdate, location, networks, created_at FROM user_info WHERE user_id = $1`, userID,
	).Scan(&info.Birthdate, &info.Location, &info.Networks, &info.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.UserInfo{}, models.ErrNotFound
	}
	if err != nil {
		return models.UserInfo{}, err
	}
	return info, nil
}

func (p *PostgresStore) CreateUserInfo(ctx context.Context, info models.UserInfo) (models.UserInfo, bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO user_info (user_id, birthdate, location, networks, created_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (user_id) DO NOTHING`,
		info.UserID, info.Birthdate, info.Location, info.Networks, info.CreatedAt)
	if err != nil {
		logg.Error("store", "Failed to create user info", err)
		return models.UserInfo{}, false, err
	}
	if tag.RowsAffected() == 0 {
		existing, err := p.GetUserInfo(ctx, info.UserID)
		return existing, false, err
	}
	return info, true, nil
}

// --- Marketplace ---

const itemColumns = `id, seller_id, seller_email, title, description, price::float8,
	image_url, location, category, condition, created_at`

func scanItem(row pgx.Row) (models.MarketplaceItem, error) {
	var it models.MarketplaceItem
	err := row.Scan(&it.ID, &it.SellerID, &it.SellerEmail, &it.Title, &it.Description, &it.Price,
		&it.ImageURL, &it.Location, &it.Category, &it.Condition, &it.CreatedAt)
	return it, err
}

func (p *PostgresStore) AddItem(ctx context.Context, item models.MarketplaceItem) (models.MarketplaceItem, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO marketplace_items (seller_id, seller_email, title, description, price,
			image_url, location, category, condition, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		item.SellerID, item.SellerEmail, item.Title, item.Description, item.Price,
		item.ImageURL, item.Location, item.Category, item.Condition, item.CreatedAt,
	).Scan(&item.ID)
	if err != nil {
		logg.Error("store", "Failed to add marketplace item", err)
		return models.MarketplaceItem{}, err
	}
	return item, nil
}

func (p *PostgresStore) GetItem(ctx context.Context, id int64) (models.MarketplaceItem, error) {
	it, err := scanItem(p.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM marketplace_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MarketplaceItem{}, models.ErrNotFound
	}
	return it, err
}

// itemSQL renders q as a WHERE clause with positional arguments.
func itemSQL(q ItemQuery) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		args = append(args, pattern)
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(title ILIKE $%d OR description ILIKE $%d)`, n, n))
	}
	if q.MinPrice != nil {
		add(`price >= $%d`, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		add(`price <= $%d`, *q.MaxPrice)
	}
	if q.Category != "" {
		add(`category = $%d`, q.Category)
	}
	if q.Condition != "" {
		add(`condition = $%d`, q.Condition)
	}
	if q.CreatedAfter != nil {
		add(`created_at >= $%d`, *q.CreatedAfter)
	}
	if q.RequireLocation {
		conds = append(conds, `COALESCE(location, '') <> ''`)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (p *PostgresStore) ListItems(ctx context.Context, q ItemQuery) ([]models.MarketplaceItem, error) {
	where, args := itemSQL(q)
	rows, err := p.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM marketplace_items`+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		logg.Error("store", "Failed to list marketplace items", err)
		return nil, err
	}
	defer rows.Close()

	res := []models.MarketplaceItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// --- Messages ---

func (p *PostgresStore) AddMessage(ctx context.Context, msg models.Message) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, subject, message, item_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Subject, msg.Body, msg.ItemID, msg.IsRead, msg.CreatedAt)
	if err != nil {
		logg.Error("store", "Failed to add message", err)
	}
	return err
}

func (p *PostgresStore) ListInbox(ctx context.Context, recipientID string) ([]models.Message, error) {
	return p.listMessages(ctx, "m.recipient_id", recipientID)
}

func (p *PostgresStore) ListSent(ctx context.Context, senderID string) ([]models.Message, error) {
	return p.listMessages(ctx, "m.sender_id", senderID)
}

func (p *PostgresStore) listMessages(ctx context.Context, column, who string) ([]models.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT m.id::text, m.sender_id, m.recipient_id, m.subject, m.message, m.item_id, m.is_read, m.created_at,
			i.title, i.price::float8, i.image_url
		FROM messages m
		LEFT JOIN marketplace_items i ON i.id = m.item_id
		WHERE `+column+` = $1
		ORDER BY m.created_at DESC, m.seq DESC`, who)
	if err != nil {
		logg.Error("store", "Failed to list messages", err)
		return nil, err
	}
	defer rows.Close()

	res := []models.Message{}
	for rows.Next() {
		var (
			m        models.Message
			title    *string
			price    *float64
			imageURL *string
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Subject, &m.Body, &m.ItemID,
			&m.IsRead, &m.CreatedAt, &title, &price, &imageURL); err != nil {
			return nil, err
		}
		if title != nil {
			m.Item = &models.ItemSummary{Title: *title, ImageURL: imageURL}
			if price != nil {
				m.Item.Price = *price
			}
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (p *PostgresStore) MarkMessagesRead(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	_, err := p.pool.Exec(ctx, `UPDATE messages SET is_read = true WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		logg.Error("store", "Failed to mark messages read", err)
	}
	return err
}
