package data

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxrecord"
)

const selectSavedProductIDsSQL = `select product_id from saved_products where user_id=$1 order by creation_time`

func SelectSavedProductIDs(ctx context.Context, db Queryer, userID int32) ([]int32, error) {
	rows, err := db.Query(ctx, selectSavedProductIDsSQL, userID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowTo[int32])
}

const insertSavedProductSQL = `insert into saved_products(user_id, product_id) values($1, $2)`

// InsertSavedProduct bookmarks productID for userID. Saving an already saved product is a
// DuplicationError and saving a missing product is ErrNotFound.
func InsertSavedProduct(ctx context.Context, db Queryer, userID, productID int32) error {
	_, err := db.Exec(ctx, insertSavedProductSQL, userID, productID)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return DuplicationError{Field: "product_id"}
		}
		if foreignKeyViolation(err) {
			return ErrNotFound
		}
		return err
	}

	return nil
}

func DeleteSavedProduct(ctx context.Context, db Queryer, userID, productID int32) error {
	_, err := pgxrecord.ExecRow(ctx, db, `delete from saved_products where user_id=$1 and product_id=$2`, userID, productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	return err
}
