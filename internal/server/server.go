// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"gopkg.in/go-playground/validator.v9"
	en_translations "gopkg.in/go-playground/validator.v9/translations/en"

	"github.com/bryan-buckman/ideaboard/internal/auth"
	"github.com/bryan-buckman/ideaboard/internal/database"
	"github.com/bryan-buckman/ideaboard/internal/feed"
	"github.com/bryan-buckman/ideaboard/internal/ideas"
	"github.com/bryan-buckman/ideaboard/internal/model"
)

const (
	maxImportSize   = 10 << 20
	shutdownTimeout = 10 * time.Second
	feedTitle       = "Ideaboard"
)

// Options configures a Server.
type Options struct {
	// AuthSecret enables bearer token checks on POST routes when non-empty.
	AuthSecret      []byte
	LeaderboardSize int
}

// Server is the main HTTP server.
type Server struct {
	db         database.Store
	store      *ideas.Store
	svc        *ideas.Service
	importer   *feed.Importer
	translator ut.Translator
	opts       Options
	router     chi.Router
}

// New creates a new server.
func New(db database.Store, store *ideas.Store, svc *ideas.Service, importer *feed.Importer, opts Options) (*Server, error) {
	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(svc.Validator(), trans); err != nil {
		return nil, fmt.Errorf("register translations: %w", err)
	}
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = ideas.DefaultLeaderboardSize
	}

	s := &Server{
		db:         db,
		store:      store,
		svc:        svc,
		importer:   importer,
		translator: trans,
		opts:       opts,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ideas", s.handleListIdeas)
		r.Get("/ideas/{ideaID}/share", s.handleShare)
		r.Get("/votes", s.handleListVotes)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/export.rss", s.handleExportRSS)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/ideas", s.handleSubmit)
			r.Post("/ideas/{ideaID}/vote", s.handleVote)
			r.Post("/import", s.handleImport)
		})
	})

	s.router = r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr, "database", s.db.DatabaseType())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	if len(s.opts.AuthSecret) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := auth.FromRequest(s.opts.AuthSecret, r)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, err.Error())
			return
		}
		slog.Debug("authorized", "device", claims.Device, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": s.db.DatabaseType(),
	})
}

func (s *Server) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	key, err := ideas.ParseSortKey(r.URL.Query().Get("sort"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.store.ListIdeas(r.Context())
	if err != nil {
		storageFailure(w, "Failed to load ideas", err)
		return
	}
	votes, err := s.store.ListUserVotes(r.Context())
	if err != nil {
		storageFailure(w, "Failed to load votes", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"ideas": nonNil(ideas.SortIdeas(list, key)),
		"votes": nonNil(votes),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub ideas.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	idea, err := s.svc.Submit(r.Context(), sub)
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		s.validationError(w, verrs)
		return
	case err != nil:
		storageFailure(w, "Failed to save idea. Please try again.", err)
		return
	}
	jsonResponse(w, http.StatusCreated, idea)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	id, ok := ideaID(w, r)
	if !ok {
		return
	}
	idea, ok, err := s.findIdea(r.Context(), id)
	if err != nil {
		storageFailure(w, "Failed to load ideas", err)
		return
	}
	if !ok {
		errorResponse(w, http.StatusNotFound, "idea not found")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"text": ideas.ShareText(idea)})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := ideaID(w, r)
	if !ok {
		return
	}
	recorded, err := s.store.Vote(r.Context(), id)
	if err != nil {
		storageFailure(w, "Failed to record vote. Please try again.", err)
		return
	}
	message := "Vote recorded!"
	if !recorded {
		message = "Already voted"
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"recorded": recorded,
		"message":  message,
	})
}

func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := s.store.ListUserVotes(r.Context())
	if err != nil {
		storageFailure(w, "Failed to load votes", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"votes": nonNil(votes)})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.LeaderboardSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	list, err := s.store.ListIdeas(r.Context())
	if err != nil {
		storageFailure(w, "Failed to load ideas", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"leaderboard": nonNil(ideas.Leaderboard(list, limit)),
	})
}

func (s *Server) handleExportRSS(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListIdeas(r.Context())
	if err != nil {
		storageFailure(w, "Failed to load ideas", err)
		return
	}
	data, err := feed.Export(feedTitle, "http://"+r.Host, list, time.Now())
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to export")
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=ideaboard.rss")
	w.Write(data)
}

// handleImport accepts a multipart "feed" file or a "url" form value.
// URL imports make the server fetch on the caller's behalf, so they are only
// served when token auth is on.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	var (
		res feed.Result
		err error
	)
	file, _, ferr := r.FormFile("feed")
	switch {
	case ferr == nil:
		defer file.Close()
		res, err = s.importer.ImportReader(r.Context(), file)
	case r.FormValue("url") != "":
		if len(s.opts.AuthSecret) == 0 {
			errorResponse(w, http.StatusForbidden, "URL import requires AUTH_SECRET")
			return
		}
		feedURL, uerr := url.Parse(r.FormValue("url"))
		if uerr != nil || (feedURL.Scheme != "http" && feedURL.Scheme != "https") || feedURL.Host == "" {
			errorResponse(w, http.StatusBadRequest, "url must be an absolute http or https URL")
			return
		}
		res, err = s.importer.ImportURL(r.Context(), feedURL.String())
	default:
		errorResponse(w, http.StatusBadRequest, "No feed provided")
		return
	}

	var serr *ideas.StorageError
	switch {
	case errors.As(err, &serr):
		storageFailure(w, "Import stopped. Please try again.", err)
		return
	case err != nil:
		errorResponse(w, http.StatusBadRequest, fmt.Sprintf("Failed to import feed: %v", err))
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// --- Helpers ---

// ideaID returns the unescaped {ideaID} path parameter. chi matches on the
// raw path, so an id sent as "a%2Fb" arrives still escaped.
func ideaID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "ideaID"))
	if err != nil || id == "" {
		errorResponse(w, http.StatusBadRequest, "invalid idea id")
		return "", false
	}
	return id, true
}

func (s *Server) findIdea(ctx context.Context, id string) (model.Idea, bool, error) {
	list, err := s.store.ListIdeas(ctx)
	if err != nil {
		return model.Idea{}, false, err
	}
	for _, idea := range list {
		if idea.ID == id {
			return idea, true, nil
		}
	}
	return model.Idea{}, false, nil
}

func (s *Server) validationError(w http.ResponseWriter, verrs validator.ValidationErrors) {
	translated := verrs.Translate(s.translator)
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = translated[fe.Namespace()]
	}
	jsonResponse(w, http.StatusBadRequest, map[string]interface{}{
		"error":   http.StatusText(http.StatusBadRequest),
		"message": "Please fill in all fields",
		"fields":  fields,
	})
}

func storageFailure(w http.ResponseWriter, message string, err error) {
	slog.Error(message, "error", err)
	errorResponse(w, http.StatusInternalServerError, message)
}

func jsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, statusCode int, message string) {
	jsonResponse(w, statusCode, map[string]string{
		"error":   http.StatusText(statusCode),
		"message": message,
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
