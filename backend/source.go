package backend

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/winprodai/winprod/backend/data"
)

const placeholderImage = "/placeholder.svg"

type Product struct {
	ID           int32      `json:"id"`
	Name         string     `json:"name"`
	Images       []string   `json:"images"`
	CreationTime time.Time  `json:"createdAt"`
	ReleaseTime  *time.Time `json:"releaseTime,omitempty"`
	Locked       bool       `json:"locked"`
}

// IsUpcoming reports whether p has a release time after now.
func (p *Product) IsUpcoming(now time.Time) bool {
	return p.ReleaseTime != nil && p.ReleaseTime.After(now)
}

// CoverImage is the first image or a placeholder when there are none.
func (p *Product) CoverImage() string {
	if len(p.Images) == 0 || p.Images[0] == "" {
		return placeholderImage
	}
	return p.Images[0]
}

// ProductSource is the remote store of products and saved products.
type ProductSource interface {
	// ListProducts returns up to limit products starting at offset, newest first.
	ListProducts(ctx context.Context, offset, limit int) ([]Product, error)

	// NextReleaseTime returns the earliest release time strictly after after. ok is false when nothing is
	// scheduled.
	NextReleaseTime(ctx context.Context, after time.Time) (t time.Time, ok bool, err error)

	SavedProductIDs(ctx context.Context, userID int32) ([]int32, error)
	InsertSavedProduct(ctx context.Context, userID, productID int32) error
	DeleteSavedProduct(ctx context.Context, userID, productID int32) error
}

type pgxProductSource struct {
	pool *pgxpool.Pool
}

func NewPgxProductSource(pool *pgxpool.Pool) ProductSource {
	return &pgxProductSource{pool: pool}
}

func (s *pgxProductSource) ListProducts(ctx context.Context, offset, limit int) ([]Product, error) {
	rows, err := data.SelectProductsPage(ctx, s.pool, offset, limit)
	if err != nil {
		return nil, err
	}

	products := make([]Product, len(rows))
	for i := range rows {
		products[i] = productFromRow(&rows[i])
	}
	return products, nil
}

func productFromRow(row *data.Product) Product {
	p := Product{
		ID:           row.ID.Int32,
		Name:         row.Name.String,
		Images:       row.Images,
		CreationTime: row.CreationTime.Time,
		Locked:       row.Locked.Valid && row.Locked.Bool,
	}
	if row.ReleaseTime.Valid {
		t := row.ReleaseTime.Time
		p.ReleaseTime = &t
	}
	return p
}

func (s *pgxProductSource) NextReleaseTime(ctx context.Context, after time.Time) (time.Time, bool, error) {
	t, err := data.SelectNextReleaseTime(ctx, s.pool, after)
	if errors.Is(err, data.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *pgxProductSource) SavedProductIDs(ctx context.Context, userID int32) ([]int32, error) {
	return data.SelectSavedProductIDs(ctx, s.pool, userID)
}

func (s *pgxProductSource) InsertSavedProduct(ctx context.Context, userID, productID int32) error {
	return data.InsertSavedProduct(ctx, s.pool, userID, productID)
}

func (s *pgxProductSource) DeleteSavedProduct(ctx context.Context, userID, productID int32) error {
	return data.DeleteSavedProduct(ctx, s.pool, userID, productID)
}
