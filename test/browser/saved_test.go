package browser_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/winprodai/winprod/test/testdata"
)

func TestUserSavesAndUnsavesProduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	serverInstance := startServer(t)
	db := serverInstance.DB.Connect(t, ctx)
	page := TestBrowserManager.Acquire(t).Page()

	user := testdata.CreateUser(t, db, ctx, map[string]any{"name": "john", "password": "secret"})
	createProducts(t, ctx, db, 3)

	login(t, ctx, page, serverInstance.Server.URL, "john", "secret")
	page.HasCount("button.save", 3)

	page.ToggleSave("Product 2")
	page.HasCount("button.saved", 1)
	page.HasContent("li.product", "Product 2[\\s\\S]*Saved")

	countSaved := func() int64 {
		rows, _ := db.Query(ctx, "select count(*) from saved_products where user_id=$1", user["id"])
		n, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
		require.NoError(t, err)
		return n
	}
	require.EqualValues(t, 1, countSaved())

	page.ToggleSave("Product 2")
	page.HasCount("button.saved", 0)
	page.HasCount("button.save", 3)
	require.EqualValues(t, 0, countSaved())
}

func TestAnonymousVisitorSaveRedirectsToLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	serverInstance := startServer(t)
	db := serverInstance.DB.Connect(t, ctx)
	page := TestBrowserManager.Acquire(t).Page()

	createProducts(t, ctx, db, 3)

	page.MustNavigate(serverInstance.Server.URL)
	page.ClickOn("^Save$")

	page.HasContent("label", "User name")
	page.HasContent("label", "Password")
}
