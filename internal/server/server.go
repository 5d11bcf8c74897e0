// Package server exposes kvsearch tables over HTTP.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /v1/tables
//	POST   /v1/tables                    create a table from a descriptor
//	PUT    /v1/tables/:table/rows        upsert one row or an array of rows
//	DELETE /v1/tables/:table/rows        delete the row with the given key columns
//	POST   /v1/tables/:table/search
//	POST   /v1/tables/:table/explain
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hupe1980/kvsearch"
	"github.com/hupe1980/kvsearch/catalog"
)

// Options configures a Server.
type Options struct {
	// Catalog, when set, enables table creation over HTTP.
	Catalog *catalog.Catalog
	// TableOptions are applied to tables created over HTTP.
	TableOptions []kvsearch.Option
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *kvsearch.Logger
	// MaxBodyBytes caps request bodies. Zero means 8 MiB.
	MaxBodyBytes int64
	// RequestsPerSec limits the request rate. Zero disables limiting.
	RequestsPerSec float64
	Burst          int
}

// Server routes HTTP requests to registered tables.
type Server struct {
	opts   Options
	engine *gin.Engine
	logger *kvsearch.Logger

	mu     sync.RWMutex
	tables map[string]*kvsearch.Table
}

// New creates a server without tables.
func New(optFns ...func(o *Options)) *Server {
	opts := Options{MaxBodyBytes: 8 << 20}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = kvsearch.NoopLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 << 20
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		opts:   opts,
		engine: gin.New(),
		logger: opts.Logger,
		tables: make(map[string]*kvsearch.Table),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger))
	if s.opts.RequestsPerSec > 0 {
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(s.opts.RequestsPerSec), max(s.opts.Burst, 1))))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/v1", limitBody(s.opts.MaxBodyBytes))
	api.GET("/tables", s.listTables)
	api.POST("/tables", s.createTable)

	tables := api.Group("/tables/:table", s.lookup)
	tables.PUT("/rows", s.upsertRows)
	tables.DELETE("/rows", s.deleteRow)
	tables.POST("/search", s.search)
	tables.POST("/explain", s.explain)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.engine }

// Register serves t under its name, replacing a table of the same name.
func (s *Server) Register(t *kvsearch.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.Name()] = t
}

// Table returns the registered table with name.
func (s *Server) Table(name string) (*kvsearch.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	return t, ok
}

// Names returns the names of the registered tables in order.
func (s *Server) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout and closes the registered tables.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr), zap.Strings("tables", s.Names()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	return errors.Join(err, s.Close())
}

// Close closes every registered table.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, t := range s.tables {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
