package testdata

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgxutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/scrypt"
)

var counter atomic.Int64

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func digestPassword(password string) (digest, salt []byte, err error) {
	salt = make([]byte, 8)
	_, err = rand.Read(salt)
	if err != nil {
		return nil, nil, err
	}

	digest, err = scrypt.Key([]byte(password), salt, 16384, 8, 1, 32)
	if err != nil {
		return nil, nil, err
	}

	return digest, salt, nil
}

// CreateUser inserts a user. A "password" attribute is replaced by its digest and salt.
func CreateUser(t testing.TB, db DB, ctx context.Context, attrs map[string]any) map[string]any {
	n := counter.Add(1)

	if attrs == nil {
		attrs = make(map[string]any)
	}

	password := "password"
	if pw, ok := attrs["password"]; ok {
		password = fmt.Sprint(pw)
		delete(attrs, "password")
	}
	digest, salt, err := digestPassword(password)
	require.NoError(t, err)
	attrs["password_digest"] = digest
	attrs["password_salt"] = salt

	if _, ok := attrs["name"]; !ok {
		attrs["name"] = fmt.Sprintf("user%v", n)
	}

	user, err := pgxutil.Insert(ctx, db, "users", attrs)
	require.NoError(t, err)

	return user
}

// CreateProduct inserts a product. Products created without a created_at are spaced one second apart in creation
// order so feed order is deterministic.
func CreateProduct(t testing.TB, db DB, ctx context.Context, attrs map[string]any) map[string]any {
	n := counter.Add(1)

	if attrs == nil {
		attrs = make(map[string]any)
	}

	if _, ok := attrs["name"]; !ok {
		attrs["name"] = fmt.Sprintf("Product %v", n)
	}
	if _, ok := attrs["images"]; !ok {
		attrs["images"] = []string{fmt.Sprintf("https://images.example.com/%v.png", n)}
	}
	if _, ok := attrs["created_at"]; !ok {
		attrs["created_at"] = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Second)
	}

	product, err := pgxutil.Insert(ctx, db, "products", attrs)
	require.NoError(t, err)

	return product
}

func CreateSavedProduct(t testing.TB, db DB, ctx context.Context, attrs map[string]any) map[string]any {
	if attrs == nil {
		attrs = make(map[string]any)
	}

	if _, ok := attrs["user_id"]; !ok {
		attrs["user_id"] = CreateUser(t, db, ctx, nil)["id"]
	}
	if _, ok := attrs["product_id"]; !ok {
		attrs["product_id"] = CreateProduct(t, db, ctx, nil)["id"]
	}

	savedProduct, err := pgxutil.Insert(ctx, db, "saved_products", attrs)
	require.NoError(t, err)

	return savedProduct
}
