package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/winprodai/winprod/backend/data"
	log "gopkg.in/inconshreveable/log15.v2"
)

// RegisterTestEndpoints adds endpoints that seed and inspect the database for end-to-end tests. Only call this
// when the TEST_ENDPOINTS environment variable is set.
func RegisterTestEndpoints(r chi.Router, pool *pgxpool.Pool, logger log.Logger) {
	r.Post("/test/users", func(w http.ResponseWriter, req *http.Request) {
		var attrs struct {
			Name             string `json:"name"`
			Email            string `json:"email"`
			Password         string `json:"password"`
			SubscriptionTier string `json:"subscriptionTier"`
		}
		if err := json.NewDecoder(req.Body).Decode(&attrs); err != nil {
			http.Error(w, fmt.Sprintf("Error decoding request: %v", err), 400)
			return
		}
		if attrs.Name == "" {
			attrs.Name = "test"
		}

		user := &data.User{
			Name:             pgtype.Text{String: attrs.Name, Valid: true},
			Email:            pgtype.Text{String: attrs.Email, Valid: attrs.Email != ""},
			SubscriptionTier: pgtype.Text{String: attrs.SubscriptionTier, Valid: attrs.SubscriptionTier != ""},
		}
		if err := SetPassword(user, attrs.Password); err != nil {
			http.Error(w, fmt.Sprintf("Failed to hash password: %v", err), 500)
			return
		}

		userID, err := data.CreateUser(req.Context(), pool, user)
		if err != nil {
			logger.Error("Failed to create user", "error", err)
			http.Error(w, fmt.Sprintf("Failed to create user: %v", err), 500)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"id": userID, "name": attrs.Name})
	})

	r.Post("/test/products", func(w http.ResponseWriter, req *http.Request) {
		var attrs struct {
			Name        string     `json:"name"`
			Images      []string   `json:"images"`
			CreatedAt   *time.Time `json:"createdAt"`
			ReleaseTime *time.Time `json:"releaseTime"`
			Locked      bool       `json:"locked"`
		}
		if err := json.NewDecoder(req.Body).Decode(&attrs); err != nil {
			http.Error(w, fmt.Sprintf("Error decoding request: %v", err), 400)
			return
		}

		row := &data.Product{
			Name:   pgtype.Text{String: attrs.Name, Valid: true},
			Images: attrs.Images,
			Locked: pgtype.Bool{Bool: attrs.Locked, Valid: true},
		}
		if row.Images == nil {
			row.Images = []string{}
		}
		if attrs.CreatedAt != nil {
			row.CreationTime = pgtype.Timestamptz{Time: *attrs.CreatedAt, Valid: true}
		}
		if attrs.ReleaseTime != nil {
			row.ReleaseTime = pgtype.Timestamptz{Time: *attrs.ReleaseTime, Valid: true}
		}

		err := data.InsertProduct(req.Context(), pool, row)
		if err != nil {
			logger.Error("Failed to create product", "error", err)
			http.Error(w, fmt.Sprintf("Failed to create product: %v", err), 500)
			return
		}

		writeJSON(w, http.StatusCreated, productFromRow(row))
	})

	r.Get("/test/products/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, ok := parseInt32Param(req, "id")
		if !ok {
			http.NotFound(w, req)
			return
		}

		row, err := data.SelectProductByPK(req.Context(), pool, id)
		if err != nil {
			http.NotFound(w, req)
			return
		}

		writeJSON(w, http.StatusOK, productFromRow(row))
	})

	r.Post("/test/query", func(w http.ResponseWriter, req *http.Request) {
		var query struct {
			SQL    string `json:"sql"`
			Params []any  `json:"params"`
		}
		if err := json.NewDecoder(req.Body).Decode(&query); err != nil {
			http.Error(w, fmt.Sprintf("Error decoding request: %v", err), 400)
			return
		}

		rows, err := pool.Query(req.Context(), query.SQL, query.Params...)
		if err != nil {
			logger.Error("Query failed", "error", err, "sql", query.SQL)
			http.Error(w, fmt.Sprintf("Query failed: %v", err), 500)
			return
		}

		results, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			logger.Error("Failed to collect rows", "error", err)
			http.Error(w, fmt.Sprintf("Failed to collect rows: %v", err), 500)
			return
		}

		writeJSON(w, http.StatusOK, results)
	})
}
