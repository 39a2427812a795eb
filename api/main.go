package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/extract-label/internal/config"
	"github.com/DeafMist/extract-label/internal/elasticsearch"
	"github.com/DeafMist/extract-label/internal/logger"
	"github.com/DeafMist/extract-label/internal/models"
	"github.com/DeafMist/extract-label/internal/nlp"
	"github.com/DeafMist/extract-label/internal/processing"
)

const (
	maxBodyBytes = 8 << 20
	maxFrom      = 10_000
)

type recordLabeler interface {
	Process(rec models.Record) (models.OutputRecord, error)
}

type labelStore interface {
	Health(ctx context.Context) error
	IndexLabel(ctx context.Context, doc models.LabelDocument) error
	SearchLabels(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	proc, err := nlp.NewProcessor(cfg.Limits)
	if err != nil {
		log.Error("init nlp", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ensureCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := esClient.EnsureIndex(ensureCtx); err != nil {
		log.Warn("ensure label index", slog.Any("err", err))
	}
	cancel()

	srv := &server{log: log, cfg: cfg, labeler: proc, store: esClient}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log     *slog.Logger
	cfg     *config.API
	labeler recordLabeler
	store   labelStore
}

type errorResponse struct {
	Error string `json:"error"`
}

type labelResponse struct {
	ID string `json:"id"`
	models.OutputRecord
	Indexed bool `json:"indexed"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Post("/label", s.handleLabel)
	r.Get("/labels", s.handleSearch)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleLabel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var rec models.Record
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid record: " + err.Error()})
		return
	}

	out, err := s.labeler.Process(rec)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, processing.ErrMalformedRecord) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	resp := labelResponse{ID: processing.BuildRecordID(rec), OutputRecord: out}

	if index, _ := strconv.ParseBool(r.URL.Query().Get("index")); index {
		source := strings.TrimSpace(rec.Source)
		if source == "" {
			source = "api"
		}
		doc := models.LabelDocument{
			ID:           resp.ID,
			Source:       source,
			Timestamp:    time.Now().UTC(),
			LabelCount:   len(out.ExtractLabel),
			OutputRecord: out,
		}
		if err := s.store.IndexLabel(ctx, doc); err != nil {
			s.log.Warn("index label", slog.String("id", resp.ID), slog.Any("err", err))
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		}
		resp.Indexed = true
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:     strings.TrimSpace(q.Get("q")),
		Source:    strings.TrimSpace(q.Get("source")),
		MinLabels: queryInt(q, "min_labels", 0, s.cfg.Limits.MaxLabels),
		From:      queryInt(q, "from", 0, maxFrom),
		Size:      queryInt(q, "size", s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:      strings.TrimSpace(q.Get("sort")),
		Start:     queryTime(q, "start"),
		End:       queryTime(q, "end"),
	}

	result, err := s.store.SearchLabels(ctx, params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryTime accepts RFC 3339 timestamps or bare dates. Anything else means unbounded.
func queryTime(q url.Values, key string) *time.Time {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

// queryInt reads a positive integer capped at limit. Missing, invalid and
// non-positive values give fallback.
func queryInt(q url.Values, key string, fallback, limit int) int {
	value, err := strconv.Atoi(strings.TrimSpace(q.Get(key)))
	if err != nil || value <= 0 {
		return fallback
	}
	return min(value, limit)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
