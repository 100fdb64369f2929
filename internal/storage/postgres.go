package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"trendbot/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS posts (
		id           TEXT PRIMARY KEY,
		external_id  TEXT NOT NULL,
		account      TEXT NOT NULL,
		read_account TEXT NOT NULL,
		content      TEXT NOT NULL,
		trends       TEXT[] NOT NULL DEFAULT '{}',
		created_at   TIMESTAMPTZ NOT NULL
	)
`

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	return connect(db)
}

// connect verifies the handle and closes it when the server is unreachable.
func connect(db *sql.DB) (*Postgres, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db}, nil
}

// NewPostgresDB wraps an already opened handle.
func NewPostgresDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) Save(ctx context.Context, post domain.Post) error {
	query := `
		INSERT INTO posts (id, external_id, account, read_account, content, trends, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := p.db.ExecContext(ctx, query,
		post.ID,
		post.ExternalID,
		post.Account,
		post.ReadAccount,
		post.Content,
		pq.Array(post.Trends),
		post.CreatedAt,
	)

	return err
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]domain.Post, error) {
	query := `
		SELECT id, external_id, account, read_account, content, trends, created_at
		FROM posts ORDER BY created_at DESC LIMIT $1
	`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(
			&post.ID,
			&post.ExternalID,
			&post.Account,
			&post.ReadAccount,
			&post.Content,
			pq.Array(&post.Trends),
			&post.CreatedAt,
		); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	return posts, rows.Err()
}
