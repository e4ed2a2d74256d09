package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gh "github.com/google/go-github/v80/github"

	"ctxpipe/internal/adapter/github"
)

// Repository is the GitHub surface exposed as tools.
type Repository interface {
	Repo() string
	ListContents(ctx context.Context, path, ref string) ([]*gh.RepositoryContent, error)
	ListIssues(ctx context.Context, q github.IssueQuery) ([]*gh.Issue, error)
	CreateIssue(ctx context.Context, title, body string, labels []string) (*gh.Issue, error)
	CommentIssue(ctx context.Context, number int, body string) (*gh.IssueComment, error)
	ListPulls(ctx context.Context, state string, perPage int) ([]*gh.PullRequest, error)
}

var _ Repository = (*github.Client)(nil)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// Server exposes repository tools over HTTP.
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	repo       Repository
	logger     *slog.Logger
}

// NewServer creates the tool server listening on addr.
func NewServer(repo Repository, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: http.NewServeMux(),
		repo:   repo,
		logger: logger,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	s.router.HandleFunc("POST /tools/listContents", s.handleListContents)
	s.router.HandleFunc("POST /tools/listIssues", s.handleListIssues)
	s.router.HandleFunc("POST /tools/createIssue", s.handleCreateIssue)
	s.router.HandleFunc("POST /tools/commentIssue", s.handleCommentIssue)
	s.router.HandleFunc("POST /tools/listPulls", s.handleListPulls)
}

// Handler returns the routed handler with recovery and request logging.
func (s *Server) Handler() http.Handler {
	return s.logging(s.recovery(s.router))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting github tool server", "addr", s.httpServer.Addr, "repo", s.repo.Repo())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down github tool server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start))
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
