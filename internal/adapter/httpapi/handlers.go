package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"ctxpipe/internal/adapter/github"
	"ctxpipe/internal/domain"
)

const (
	defaultState   = "open"
	defaultPerPage = 20
)

// Request bodies.

type listContentsRequest struct {
	Path string `json:"path"`
	Ref  string `json:"ref"`
}

type listIssuesRequest struct {
	State   string `json:"state"`
	Labels  string `json:"labels"` // comma separated
	PerPage int    `json:"per_page"`
}

type createIssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

type commentIssueRequest struct {
	IssueNumber int    `json:"issue_number"`
	Body        string `json:"body"`
}

type listPullsRequest struct {
	State   string `json:"state"`
	PerPage int    `json:"per_page"`
}

type healthResponse struct {
	OK   bool   `json:"ok"`
	Repo string `json:"repo"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Repo: s.repo.Repo()})
}

func (s *Server) handleListContents(w http.ResponseWriter, r *http.Request) {
	var req listContentsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	contents, err := s.repo.ListContents(r.Context(), req.Path, req.Ref)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contents)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	var req listIssuesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	q := github.IssueQuery{
		State:   orDefault(req.State, defaultState),
		Labels:  splitLabels(req.Labels),
		PerPage: req.PerPage,
	}
	if q.PerPage <= 0 {
		q.PerPage = defaultPerPage
	}

	issues, err := s.repo.ListIssues(r.Context(), q)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	issue, err := s.repo.CreateIssue(r.Context(), req.Title, req.Body, req.Labels)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) handleCommentIssue(w http.ResponseWriter, r *http.Request) {
	var req commentIssueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IssueNumber <= 0 {
		writeError(w, http.StatusBadRequest, "issue_number must be a positive integer")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	comment, err := s.repo.CommentIssue(r.Context(), req.IssueNumber, req.Body)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (s *Server) handleListPulls(w http.ResponseWriter, r *http.Request) {
	var req listPullsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	pulls, err := s.repo.ListPulls(r.Context(), orDefault(req.State, defaultState), perPage)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pulls)
}

// writeUpstreamError surfaces the GitHub status code when there is one.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	var remote *domain.RemoteError
	if errors.As(err, &remote) && remote.Status >= 400 {
		writeError(w, remote.Status, remote.Message)
		return
	}
	s.logger.Warn("github request failed", "error", err)
	writeError(w, http.StatusBadGateway, err.Error())
}

// decodeBody reads a JSON body. An empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func splitLabels(s string) []string {
	var out []string
	for _, l := range strings.Split(s, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
