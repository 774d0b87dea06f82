package backend

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/winprodai/winprod/backend/data"
	"github.com/winprodai/winprod/backend/email"
	log "gopkg.in/inconshreveable/log15.v2"
)

const maxProductsLimit = 50

type EnvHandlerFunc func(w http.ResponseWriter, req *http.Request, env *environment)

type environment struct {
	user       *data.User
	pool       *pgxpool.Pool
	source     ProductSource
	views      *ViewRegistry
	feedConfig FeedConfig
	logger     log.Logger
}

func AuthenticatedHandler(f EnvHandlerFunc) EnvHandlerFunc {
	return EnvHandlerFunc(func(w http.ResponseWriter, req *http.Request, env *environment) {
		if env.user == nil {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "Bad or missing X-Authentication header")
			return
		}
		f(w, req, env)
	})
}

func (s *AppServer) envHandler(f EnvHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		env := &environment{
			pool:       s.pool,
			source:     s.source,
			views:      s.views,
			feedConfig: s.feedConfig,
			logger:     s.logger,
		}
		if s.pool != nil {
			env.user = getUserFromSession(req.Context(), req, s.pool)
		}
		f(w, req, env)
	})
}

func newAPIHandler(s *AppServer) http.Handler {
	r := chi.NewRouter()

	r.Method("POST", "/register", s.envHandler(RegisterHandler))
	r.Method("POST", "/sessions", s.envHandler(CreateSessionHandler))
	r.Method("DELETE", "/sessions/{id}", s.envHandler(AuthenticatedHandler(DeleteSessionHandler)))
	r.Method("GET", "/account", s.envHandler(AuthenticatedHandler(GetAccountHandler)))

	r.Method("GET", "/products", s.envHandler(GetProductsHandler))
	r.Method("GET", "/releases/next", s.envHandler(GetNextReleaseHandler))

	r.Method("GET", "/saved_products", s.envHandler(AuthenticatedHandler(GetSavedProductsHandler)))
	r.Method("POST", "/saved_products/{id}", s.envHandler(AuthenticatedHandler(CreateSavedProductHandler)))
	r.Method("DELETE", "/saved_products/{id}", s.envHandler(AuthenticatedHandler(DeleteSavedProductHandler)))

	r.Method("POST", "/feed_views", s.envHandler(CreateFeedViewHandler))
	r.Method("GET", "/feed_views/{id}", s.envHandler(GetFeedViewHandler))
	r.Method("POST", "/feed_views/{id}/sentinel", s.envHandler(FeedViewSentinelHandler))
	r.Method("POST", "/feed_views/{id}/saved/{productID}", s.envHandler(ToggleFeedViewSavedHandler))
	r.Method("DELETE", "/feed_views/{id}", s.envHandler(DeleteFeedViewHandler))

	r.Method("GET", "/email_templates", s.envHandler(GetEmailTemplatesHandler))
	r.Method("GET", "/email_templates/{key}", s.envHandler(GetEmailTemplateHandler))

	if os.Getenv("TEST_ENDPOINTS") != "" && s.pool != nil {
		RegisterTestEndpoints(r, s.pool, s.logger.New("module", "test_endpoints"))
	}

	return r
}

// requestLogger logs every request through log15.
func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, req)
			logger.Info("request", "method", req.Method, "path", req.URL.Path, "status", ww.Status(), "duration", time.Since(start))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseInt32Param(req *http.Request, name string) (int32, bool) {
	n, err := strconv.ParseInt(chi.URLParam(req, name), 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

func hexParam(req *http.Request, name string) ([]byte, error) {
	return hex.DecodeString(chi.URLParam(req, name))
}

func RegisterHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var registration struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(&registration); err != nil {
		w.WriteHeader(422)
		fmt.Fprintf(w, "Error decoding request: %v", err)
		return
	}

	if registration.Name == "" {
		w.WriteHeader(422)
		fmt.Fprintln(w, `Request must include the attribute "name"`)
		return
	}

	if len(registration.Name) > 30 {
		w.WriteHeader(422)
		fmt.Fprintln(w, `"name" must be less than 30 characters`)
		return
	}

	err := validatePassword(registration.Password)
	if err != nil {
		w.WriteHeader(422)
		fmt.Fprintln(w, err)
		return
	}

	user := &data.User{}
	user.Name = pgtype.Text{String: registration.Name, Valid: true}
	user.Email = pgtype.Text{String: registration.Email, Valid: registration.Email != ""}
	if err := SetPassword(user, registration.Password); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	userID, err := data.CreateUser(req.Context(), env.pool, user)
	if err != nil {
		var dupErr data.DuplicationError
		if errors.As(err, &dupErr) {
			w.WriteHeader(422)
			fmt.Fprintf(w, `"%s" is already taken`, dupErr.Field)
			return
		}
		env.logger.Error("CreateUser failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	sessionID, err := createSession(req.Context(), env.pool, userID)
	if err != nil {
		env.logger.Error("createSession failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var response struct {
		Name      string `json:"name"`
		SessionID string `json:"sessionID"`
	}
	response.Name = registration.Name
	response.SessionID = sessionID

	writeJSON(w, http.StatusCreated, response)
}

func CreateSessionHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var credentials struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(&credentials); err != nil {
		w.WriteHeader(422)
		fmt.Fprintf(w, "Error decoding request: %v", err)
		return
	}

	if credentials.Name == "" {
		w.WriteHeader(422)
		fmt.Fprintln(w, `Request must include the attribute "name"`)
		return
	}

	if credentials.Password == "" {
		w.WriteHeader(422)
		fmt.Fprintln(w, `Request must include the attribute "password"`)
		return
	}

	user, err := data.SelectUserByName(req.Context(), env.pool, credentials.Name)
	if err != nil {
		w.WriteHeader(422)
		fmt.Fprintln(w, "Bad user name or password")
		return
	}

	if !IsPassword(user, credentials.Password) {
		w.WriteHeader(422)
		fmt.Fprintln(w, "Bad user name or password")
		return
	}

	sessionID, err := createSession(req.Context(), env.pool, user.ID.Int32)
	if err != nil {
		env.logger.Error("createSession failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "session", Value: sessionID, Path: "/", HttpOnly: true})

	var response struct {
		Name      string `json:"name"`
		SessionID string `json:"sessionID"`
	}
	response.Name = user.Name.String
	response.SessionID = sessionID

	writeJSON(w, http.StatusCreated, response)
}

func DeleteSessionHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	sessionID, err := hexParam(req, "id")
	if err != nil {
		http.NotFound(w, req)
		return
	}

	err = data.DeleteSession(req.Context(), env.pool, sessionID)
	if errors.Is(err, data.ErrNotFound) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "session", Value: "logged out", Path: "/", Expires: time.Unix(0, 0)})
}

func GetAccountHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var user struct {
		ID               int32  `json:"id"`
		Name             string `json:"name"`
		Email            string `json:"email"`
		SubscriptionTier string `json:"subscriptionTier"`
	}

	user.ID = env.user.ID.Int32
	user.Name = env.user.Name.String
	user.Email = env.user.Email.String
	user.SubscriptionTier = env.user.SubscriptionTier.String

	writeJSON(w, http.StatusOK, user)
}

func GetProductsHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	offset, limit := 0, env.feedConfig.PageSize

	if s := req.URL.Query().Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			w.WriteHeader(422)
			fmt.Fprintln(w, `"offset" must be a non-negative integer`)
			return
		}
		offset = n
	}

	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxProductsLimit {
			w.WriteHeader(422)
			fmt.Fprintf(w, `"limit" must be between 1 and %d`, maxProductsLimit)
			return
		}
		limit = n
	}

	products, err := env.source.ListProducts(req.Context(), offset, limit)
	if err != nil {
		env.logger.Error("ListProducts failed", "offset", offset, "limit", limit, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

func GetNextReleaseHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	now := time.Now()
	next, ok, err := env.source.NextReleaseTime(req.Context(), now)
	if err != nil {
		env.logger.Error("NextReleaseTime failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		next = now.Add(defaultReleaseDelay)
	}

	var response struct {
		ReleaseTime time.Time     `json:"releaseTime"`
		Scheduled   bool          `json:"scheduled"`
		Remaining   TimeRemaining `json:"remaining"`
	}
	response.ReleaseTime = next
	response.Scheduled = ok
	response.Remaining = TimeRemainingUntil(next, now)

	writeJSON(w, http.StatusOK, response)
}

func GetSavedProductsHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	ids, err := env.source.SavedProductIDs(req.Context(), env.user.ID.Int32)
	if err != nil {
		env.logger.Error("SavedProductIDs failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []int32{}
	}

	writeJSON(w, http.StatusOK, ids)
}

func CreateSavedProductHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	productID, ok := parseInt32Param(req, "id")
	if !ok {
		// If not an integer it clearly can't be found
		http.NotFound(w, req)
		return
	}

	err := env.source.InsertSavedProduct(req.Context(), env.user.ID.Int32, productID)
	if errors.Is(err, data.ErrNotFound) {
		http.NotFound(w, req)
		return
	}
	var dupErr data.DuplicationError
	if errors.As(err, &dupErr) {
		w.WriteHeader(422)
		fmt.Fprintln(w, "Product is already saved")
		return
	}
	if err != nil {
		env.logger.Error("InsertSavedProduct failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func DeleteSavedProductHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	productID, ok := parseInt32Param(req, "id")
	if !ok {
		http.NotFound(w, req)
		return
	}

	err := env.source.DeleteSavedProduct(req.Context(), env.user.ID.Int32, productID)
	if errors.Is(err, data.ErrNotFound) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		env.logger.Error("DeleteSavedProduct failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func CreateFeedViewHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	view, err := env.views.Open(req.Context(), env.user)
	if err != nil {
		env.logger.Error("Open feed view failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, view.Snapshot(req.Context(), env.user, time.Now()))
}

func lookupView(w http.ResponseWriter, req *http.Request, env *environment) (*FeedView, bool) {
	view, ok := env.views.Get(chi.URLParam(req, "id"))
	if !ok {
		http.NotFound(w, req)
	}
	return view, ok
}

func GetFeedViewHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	view, ok := lookupView(w, req, env)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, view.Snapshot(req.Context(), env.user, time.Now()))
}

func FeedViewSentinelHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	view, ok := lookupView(w, req, env)
	if !ok {
		return
	}

	var signal struct {
		ProductID int32 `json:"productID"`
	}

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(&signal); err != nil {
		w.WriteHeader(422)
		fmt.Fprintf(w, "Error decoding request: %v", err)
		return
	}

	view.SentinelVisible(req.Context(), signal.ProductID)

	writeJSON(w, http.StatusOK, view.Snapshot(req.Context(), env.user, time.Now()))
}

func ToggleFeedViewSavedHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	view, ok := lookupView(w, req, env)
	if !ok {
		return
	}

	productID, ok := parseInt32Param(req, "productID")
	if !ok {
		http.NotFound(w, req)
		return
	}

	saved, err := view.ToggleSaved(req.Context(), env.user, productID)
	if errors.Is(err, ErrLoginRequired) {
		http.Redirect(w, req, "/login", http.StatusSeeOther)
		return
	}

	// Save buttons on the home page are plain form posts
	if strings.Contains(req.Header.Get("Accept"), "text/html") {
		http.Redirect(w, req, "/?view="+view.ID, http.StatusSeeOther)
		return
	}

	var response struct {
		ProductID int32 `json:"productID"`
		Saved     bool  `json:"saved"`
	}
	response.ProductID = productID
	response.Saved = saved

	writeJSON(w, http.StatusOK, response)
}

func DeleteFeedViewHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	if !env.views.Close(chi.URLParam(req, "id")) {
		http.NotFound(w, req)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func GetEmailTemplatesHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	writeJSON(w, http.StatusOK, email.Templates())
}

func GetEmailTemplateHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	tmpl, ok := email.Lookup(chi.URLParam(req, "key"))
	if !ok {
		http.NotFound(w, req)
		return
	}

	var response struct {
		*email.Template
		Placeholders []string `json:"placeholders"`
	}
	response.Template = tmpl
	response.Placeholders = tmpl.Placeholders()

	writeJSON(w, http.StatusOK, response)
}
