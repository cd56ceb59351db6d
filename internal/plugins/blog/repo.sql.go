package blog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists blog posts.
type Repository interface {
	List(ctx context.Context, tenantID int64) ([]Post, error)
	Create(ctx context.Context, post Post) (Post, error)
	Stats(ctx context.Context, tenantID int64) (Stats, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, tenantID int64) ([]Post, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, author_id, title, body, created_at
		   FROM blog_posts
		  WHERE tenant_id = $1
		  ORDER BY created_at DESC
		  LIMIT 100`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.TenantID, &p.AuthorID, &p.Title, &p.Body, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *repository) Create(ctx context.Context, post Post) (Post, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO blog_posts (tenant_id, author_id, title, body, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, created_at`,
		post.TenantID, post.AuthorID, post.Title, post.Body,
	).Scan(&post.ID, &post.CreatedAt)
	if err != nil {
		return Post{}, err
	}
	return post, nil
}

func (r *repository) Stats(ctx context.Context, tenantID int64) (Stats, error) {
	var s Stats
	var last *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(created_at) FROM blog_posts WHERE tenant_id = $1`, tenantID,
	).Scan(&s.TotalPosts, &last)
	if err != nil {
		return Stats{}, err
	}
	s.LastPosted = last
	return s, nil
}
