package data

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgsql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type Product struct {
	ID           pgtype.Int4
	Name         pgtype.Text
	Images       []string
	CreationTime pgtype.Timestamptz
	ReleaseTime  pgtype.Timestamptz
	Locked       pgtype.Bool
}

const selectProductSQL = `select
  "id",
  "name",
  coalesce("images", '{}'),
  "created_at",
  "release_time",
  "locked"
from "products"`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Images,
		&p.CreationTime,
		&p.ReleaseTime,
		&p.Locked,
	)
	return &p, err
}

const selectProductsPageSQL = selectProductSQL + `
order by "created_at" desc, "id" desc
offset $1 limit $2`

// SelectProductsPage returns the window [offset, offset+limit) of products ordered by creation time
// descending. The id tie-break keeps windows from overlapping when creation times collide.
func SelectProductsPage(ctx context.Context, db Queryer, offset, limit int) ([]Product, error) {
	rows, err := db.Query(ctx, selectProductsPageSQL, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	return products, rows.Err()
}

const selectProductByPKSQL = selectProductSQL + ` where "id"=$1`

func SelectProductByPK(ctx context.Context, db Queryer, id int32) (*Product, error) {
	p, err := scanProduct(db.QueryRow(ctx, selectProductByPKSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return p, nil
}

const selectNextReleaseTimeSQL = `select min("release_time") from "products" where "release_time" > $1`

// SelectNextReleaseTime returns the earliest release time strictly after after. ErrNotFound is returned when
// no product is scheduled.
func SelectNextReleaseTime(ctx context.Context, db Queryer, after time.Time) (time.Time, error) {
	var next pgtype.Timestamptz
	err := db.QueryRow(ctx, selectNextReleaseTimeSQL, after).Scan(&next)
	if err != nil {
		return time.Time{}, err
	}
	if !next.Valid {
		return time.Time{}, ErrNotFound
	}

	return next.Time, nil
}

func InsertProduct(ctx context.Context, db Queryer, row *Product) error {
	args := pgsql.Args{}

	var columns, values []string

	columns = append(columns, `name`)
	values = append(values, args.Use(&row.Name).String())
	columns = append(columns, `images`)
	values = append(values, args.Use(row.Images).String())
	if row.CreationTime.Valid {
		columns = append(columns, `created_at`)
		values = append(values, args.Use(&row.CreationTime).String())
	}
	if row.ReleaseTime.Valid {
		columns = append(columns, `release_time`)
		values = append(values, args.Use(&row.ReleaseTime).String())
	}
	if row.Locked.Valid {
		columns = append(columns, `locked`)
		values = append(values, args.Use(&row.Locked).String())
	}

	sql := `insert into "products"(` + strings.Join(columns, ", ") + `)
values(` + strings.Join(values, ",") + `)
returning "id", "created_at"
  `

	return db.QueryRow(ctx, sql, args.Values()...).Scan(&row.ID, &row.CreationTime)
}
