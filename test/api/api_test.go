package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winprodai/winprod/backend"
	"github.com/winprodai/winprod/test/testdata"
	"github.com/winprodai/winprod/test/testutil"
)

var TestDBManager *testdb.Manager

func TestMain(m *testing.M) {
	TestDBManager = testutil.InitTestDBManager(m)
	os.Exit(m.Run())
}

type serverInstanceT struct {
	Server *httptest.Server
	DB     *pgx.Conn
}

func startServer(t *testing.T) *serverInstanceT {
	ctx := context.Background()
	db := TestDBManager.AcquireDB(t, ctx)
	pool := db.PoolConnect(t, ctx)

	app, err := backend.NewAppServer(pool, backend.NewPgxProductSource(pool), backend.DefaultFeedConfig, testutil.Logger())
	require.NoError(t, err)
	t.Cleanup(app.Views().CloseAll)

	server := httptest.NewServer(app)
	t.Cleanup(server.Close)

	return &serverInstanceT{Server: server, DB: db.Connect(t, ctx)}
}

func (s *serverInstanceT) do(t *testing.T, method, path, sessionID string, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, s.Server.URL+path, reader)
	require.NoError(t, err)
	if sessionID != "" {
		req.Header.Set("X-Authentication", sessionID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func createSession(t *testing.T, s *serverInstanceT, name, password string) string {
	t.Helper()

	resp := s.do(t, "POST", "/api/sessions", "", fmt.Sprintf(`{"name": %q, "password": %q}`, name, password))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var session struct {
		Name      string `json:"name"`
		SessionID string `json:"sessionID"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	require.NotEmpty(t, session.SessionID)

	return session.SessionID
}

func TestRegisterHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := startServer(t)

	resp := s.do(t, "POST", "/api/register", "", `{"name": "joe", "email": "joe@example.com", "password": "bigsecret"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var registration struct {
		Name      string `json:"name"`
		SessionID string `json:"sessionID"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registration))
	assert.Equal(t, "joe", registration.Name)

	rows, _ := s.DB.Query(ctx, "select * from users")
	user, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	require.NoError(t, err)
	assert.Equal(t, "joe", user["name"])
	assert.Equal(t, "joe@example.com", user["email"])
	assert.Equal(t, "free", user["subscription_tier"])

	resp = s.do(t, "POST", "/api/register", "", `{"name": "JOE", "password": "bigsecret"}`)
	assert.Equal(t, 422, resp.StatusCode)
	assert.Equal(t, `"name" is already taken`, readBody(t, resp))

	resp = s.do(t, "POST", "/api/register", "", `{"name": "jill", "password": "short"}`)
	assert.Equal(t, 422, resp.StatusCode)

	resp = s.do(t, "POST", "/api/register", "", `{"password": "bigsecret"}`)
	assert.Equal(t, 422, resp.StatusCode)
}

func TestSessionsLifeCycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := startServer(t)

	testdata.CreateUser(t, s.DB, ctx, map[string]any{"name": "john", "password": "secret", "email": "john@example.com", "subscription_tier": "pro"})

	resp := s.do(t, "POST", "/api/sessions", "", `{"name": "john", "password": "wrong"}`)
	assert.Equal(t, 422, resp.StatusCode)

	sessionID := createSession(t, s, "john", "secret")

	resp = s.do(t, "GET", "/api/account", sessionID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var account struct {
		Name             string `json:"name"`
		Email            string `json:"email"`
		SubscriptionTier string `json:"subscriptionTier"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&account))
	assert.Equal(t, "john", account.Name)
	assert.Equal(t, "john@example.com", account.Email)
	assert.Equal(t, "pro", account.SubscriptionTier)

	resp = s.do(t, "DELETE", "/api/sessions/"+sessionID, sessionID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, "GET", "/api/account", sessionID, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSavedProductsHandlers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := startServer(t)

	testdata.CreateUser(t, s.DB, ctx, map[string]any{"name": "john", "password": "secret"})
	product := testdata.CreateProduct(t, s.DB, ctx, nil)
	productPath := fmt.Sprintf("/api/saved_products/%d", product["id"])

	sessionID := createSession(t, s, "john", "secret")

	resp := s.do(t, "POST", productPath, sessionID, "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, "POST", productPath, sessionID, "")
	assert.Equal(t, 422, resp.StatusCode)

	resp = s.do(t, "POST", "/api/saved_products/999999", sessionID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, "POST", "/api/saved_products/abc", sessionID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, "GET", "/api/saved_products", sessionID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ids []int32
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ids))
	assert.Equal(t, []int32{product["id"].(int32)}, ids)

	resp = s.do(t, "DELETE", productPath, sessionID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, "DELETE", productPath, sessionID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeedViewToggleSaved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := startServer(t)

	user := testdata.CreateUser(t, s.DB, ctx, map[string]any{"name": "john", "password": "secret"})
	product := testdata.CreateProduct(t, s.DB, ctx, nil)
	sessionID := createSession(t, s, "john", "secret")

	resp := s.do(t, "POST", "/api/feed_views", sessionID, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var snapshot backend.ViewSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.True(t, snapshot.Authenticated)
	require.Len(t, snapshot.Products, 1)
	assert.False(t, snapshot.Products[0].Saved)

	togglePath := fmt.Sprintf("/api/feed_views/%s/saved/%d", snapshot.ID, product["id"])

	var toggled struct {
		ProductID int32 `json:"productID"`
		Saved     bool  `json:"saved"`
	}
	resp = s.do(t, "POST", togglePath, sessionID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&toggled))
	assert.True(t, toggled.Saved)

	rows, _ := s.DB.Query(ctx, "select product_id from saved_products where user_id=$1", user["id"])
	saved, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	require.NoError(t, err)
	assert.Equal(t, []int32{product["id"].(int32)}, saved)

	resp = s.do(t, "POST", togglePath, sessionID, "")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&toggled))
	assert.False(t, toggled.Saved)
}

func TestTestEndpoints(t *testing.T) {
	t.Setenv("TEST_ENDPOINTS", "1")

	ctx := context.Background()
	s := startServer(t)

	resp := s.do(t, "POST", "/api/test/products", "", `{"name": "Massage Gun", "images": ["gun.png"], "locked": true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var product backend.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&product))
	assert.Equal(t, "Massage Gun", product.Name)
	assert.True(t, product.Locked)

	resp = s.do(t, "GET", fmt.Sprintf("/api/test/products/%d", product.ID), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var selected backend.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&selected))
	assert.Equal(t, []string{"gun.png"}, selected.Images)

	resp = s.do(t, "POST", "/api/test/users", "", `{"name": "jill", "password": "secret"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	createSession(t, s, "jill", "secret")

	resp = s.do(t, "POST", "/api/test/query", "", `{"sql": "select count(*) as n from sessions"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var results []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.EqualValues(t, 1, results[0]["n"])

	var n int64
	require.NoError(t, s.DB.QueryRow(ctx, "select count(*) from products").Scan(&n))
	assert.EqualValues(t, 1, n)
}
