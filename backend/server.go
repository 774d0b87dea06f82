package backend

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
	log "gopkg.in/inconshreveable/log15.v2"
)

type HTTPConfig struct {
	ListenAddress string
	ListenPort    string
}

type AppServer struct {
	pool       *pgxpool.Pool
	source     ProductSource
	views      *ViewRegistry
	feedConfig FeedConfig
	logger     log.Logger
	pages      *template.Template

	handler http.Handler
}

// NewAppServer builds the HTTP handler for the site. pool may be nil, in which case every request is
// anonymous and the account endpoints are unavailable.
func NewAppServer(pool *pgxpool.Pool, source ProductSource, feedConfig FeedConfig, logger log.Logger) (*AppServer, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &AppServer{
		pool:       pool,
		source:     source,
		views:      NewViewRegistry(source, feedConfig, logger.New("module", "views")),
		feedConfig: feedConfig,
		logger:     logger,
		pages:      pages,
	}

	r := chi.NewRouter()
	r.Use(requestLogger(logger.New("module", "http")))
	r.Use(middleware.Recoverer)

	r.Method("GET", "/", s.envHandler(s.HomeHandler))
	r.Method("GET", "/login", s.envHandler(s.LoginPageHandler))
	r.Get("/placeholder.svg", PlaceholderImageHandler)
	r.Mount("/api", newAPIHandler(s))

	s.handler = r
	return s, nil
}

func (s *AppServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.handler.ServeHTTP(w, req)
}

func (s *AppServer) Views() *ViewRegistry {
	return s.views
}

// Serve listens on listenAt until ctx is canceled. Idle feed views are reaped in the background and all
// views are closed on return.
func (s *AppServer) Serve(ctx context.Context, listenAt string) error {
	server := &http.Server{
		Addr:              listenAt,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.views.KeepClean(ctx)
		return nil
	})

	g.Go(func() error {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
