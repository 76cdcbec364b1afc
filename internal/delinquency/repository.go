package delinquency

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrBucketNotFound indicates an unknown bucket id.
var ErrBucketNotFound = errors.New("delinquency: bucket not found")

// Repository loads delinquency bucket configuration.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Bucket fetches a bucket with its ordered ranges.
func (r *Repository) Bucket(ctx context.Context, id int64) (*Bucket, error) {
	b := &Bucket{ID: id}
	err := r.pool.QueryRow(ctx,
		`SELECT name FROM delinquency_buckets WHERE id = $1`, id).Scan(&b.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrBucketNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT min_age_days, max_age_days
		   FROM delinquency_ranges WHERE bucket_id = $1 ORDER BY min_age_days`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rng Range
		if err := rows.Scan(&rng.MinAgeDays, &rng.MaxAgeDays); err != nil {
			return nil, err
		}
		b.Ranges = append(b.Ranges, rng)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
