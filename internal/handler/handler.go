// Package handler serves GraphQL over HTTP. Every operation runs inside a
// database transaction that commits when the result has no errors.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	gql "github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	gqlhandler "github.com/graphql-go/handler"
	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/config"
	"github.com/devplatform/modelgraph/internal/graphql"
	"github.com/devplatform/modelgraph/internal/orm"
)

// maxBodyBytes bounds a request body
const maxBodyBytes = 4 << 20

// Handler is the HTTP entry point of the GraphQL service
type Handler struct {
	manager *graphql.Manager
	db      *orm.DB
	cfg     *config.Config
	logger  *logrus.Logger
}

// New creates a handler
func New(manager *graphql.Manager, db *orm.DB, cfg *config.Config, logger *logrus.Logger) *Handler {
	return &Handler{
		manager: manager,
		db:      db,
		cfg:     cfg,
		logger:  logger,
	}
}

// Routes returns the router with every endpoint and middleware
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(loggingMiddleware(h.logger))
	r.Use(recoveryMiddleware(h.logger))
	r.Use(corsMiddleware(h.cfg.CORSOrigins))

	r.Post("/graphql", h.serveGraphQL)
	r.Post("/graphql/{schema}", h.serveGraphQL)
	if h.cfg.GraphiQL {
		r.Get("/graphql", h.serveGraphiQL)
		r.Get("/graphql/{schema}", h.serveGraphiQL)
	}
	r.Get("/sdl", h.serveSDL)
	r.Get("/sdl/{schema}", h.serveSDL)
	r.Get("/health", h.serveHealth)
	r.Get("/ready", h.serveReady)
	return r
}

// ============================================================================
// GRAPHQL
// ============================================================================

func schemaName(r *http.Request) string {
	if schema := chi.URLParam(r, "schema"); schema != "" {
		return schema
	}
	return config.DefaultSchema
}

func (h *Handler) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	schema := schemaName(r)
	logger := h.logger.WithFields(logrus.Fields{
		"request_id": RequestID(r.Context()),
		"schema":     schema,
	})

	reqs, batch, err := decodeRequests(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// build before any transaction so introspection runs on the pool
	if _, err := h.manager.Schema(r.Context(), schema); err != nil {
		if errors.Is(err, graphql.ErrUnknownSchema) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.WithError(err).Error("Failed to build schema")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var results []*gql.Result
	if batch && h.cfg.BatchTransaction == config.BatchWhole {
		results = h.executeBatch(r.Context(), logger, schema, reqs)
	} else {
		results = make([]*gql.Result, 0, len(reqs))
		for _, req := range reqs {
			results = append(results, h.executeOne(r.Context(), logger, schema, req))
		}
	}

	for _, res := range results {
		if len(res.Errors) > 0 {
			logger.WithField("errors", res.Errors).Warn("GraphQL errors")
		}
	}
	if batch {
		h.writeJSON(w, http.StatusOK, results)
		return
	}
	h.writeJSON(w, http.StatusOK, results[0])
}

// executeOne runs one operation in its own transaction
func (h *Handler) executeOne(ctx context.Context, logger *logrus.Entry, schema string, req graphql.Request) *gql.Result {
	tx, err := h.db.Begin(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to begin transaction")
		return internalResult()
	}

	res, err := h.manager.Execute(orm.NewContext(ctx, tx.DB), schema, req)
	if err != nil {
		tx.Rollback()
		logger.WithError(err).Error("Failed to execute operation")
		return internalResult()
	}
	if len(res.Errors) > 0 {
		if err := tx.Rollback(); err != nil {
			logger.WithError(err).Error("Failed to roll back transaction")
		}
		return res
	}
	if err := tx.Commit(); err != nil {
		logger.WithError(err).Error("Failed to commit transaction")
		return internalResult()
	}
	return res
}

// executeBatch runs every operation in one transaction that is rolled back
// when any of them fails
func (h *Handler) executeBatch(ctx context.Context, logger *logrus.Entry, schema string, reqs []graphql.Request) []*gql.Result {
	results := make([]*gql.Result, len(reqs))
	tx, err := h.db.Begin(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to begin transaction")
		for i := range results {
			results[i] = internalResult()
		}
		return results
	}

	txCtx := orm.NewContext(ctx, tx.DB)
	failed := false
	for i, req := range reqs {
		res, err := h.manager.Execute(txCtx, schema, req)
		if err != nil {
			logger.WithError(err).Error("Failed to execute operation")
			res = internalResult()
		}
		if len(res.Errors) > 0 {
			failed = true
		}
		results[i] = res
	}

	if failed {
		if err := tx.Rollback(); err != nil {
			logger.WithError(err).Error("Failed to roll back transaction")
		}
		return results
	}
	if err := tx.Commit(); err != nil {
		logger.WithError(err).Error("Failed to commit transaction")
		for i := range results {
			results[i] = internalResult()
		}
	}
	return results
}

// decodeRequests reads one operation or a JSON array of operations
func decodeRequests(body io.Reader) ([]graphql.Request, bool, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read request body: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false, errors.New("empty request body")
	}

	if data[0] == '[' {
		var reqs []graphql.Request
		if err := json.Unmarshal(data, &reqs); err != nil {
			return nil, true, fmt.Errorf("invalid batch request: %w", err)
		}
		if len(reqs) == 0 {
			return nil, true, errors.New("empty batch request")
		}
		return reqs, true, nil
	}

	var req graphql.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, false, fmt.Errorf("invalid request: %w", err)
	}
	return []graphql.Request{req}, false, nil
}

// serveGraphiQL renders the in-browser IDE. The page posts its operations
// back to the same route, so nothing is executed over GET.
func (h *Handler) serveGraphiQL(w http.ResponseWriter, r *http.Request) {
	schema, err := h.manager.Schema(r.Context(), schemaName(r))
	if err != nil {
		if errors.Is(err, graphql.ErrUnknownSchema) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to build schema")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	page := r.Clone(r.Context())
	page.URL.RawQuery = ""
	page.Header.Set("Accept", "text/html")
	gqlhandler.New(&gqlhandler.Config{
		Schema:   schema,
		GraphiQL: true,
	}).ServeHTTP(w, page)
}

// serveSDL returns the type definitions of a schema as plain text
func (h *Handler) serveSDL(w http.ResponseWriter, r *http.Request) {
	sdl, err := h.manager.SDL(r.Context(), schemaName(r))
	if err != nil {
		if errors.Is(err, graphql.ErrUnknownSchema) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to build schema")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, sdl)
}

func internalResult() *gql.Result {
	return &gql.Result{Errors: []gqlerrors.FormattedError{{Message: "internal server error"}}}
}

// ============================================================================
// PROBES
// ============================================================================

// serveHealth is the liveness probe
func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveReady is the readiness probe
func (h *Handler) serveReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Readiness check failed")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ============================================================================
// RESPONSES
// ============================================================================

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, &gql.Result{Errors: []gqlerrors.FormattedError{{Message: message}}})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var (
		data []byte
		err  error
	)
	if h.cfg.PrettyJSON {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	for name, value := range h.cfg.ResponseHeaders {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
